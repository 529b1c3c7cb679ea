package beneficiaries

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists beneficiaries. Rows are never hard-deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, beneficiary *models.Beneficiary) error
	FindActiveBySellerID(ctx context.Context, sellerID uuid.UUID) (*models.Beneficiary, error)
	FindActiveBySellerIDs(ctx context.Context, sellerIDs []uuid.UUID) (map[uuid.UUID]models.Beneficiary, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error
	SoftDelete(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	FindBankAccount(ctx context.Context, sellerID uuid.UUID) (*models.SellerBankAccount, error)
}

type StatusUpdate struct {
	Status    enums.BeneficiaryStatus
	Reason    *string
	CheckedAt time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, beneficiary *models.Beneficiary) error {
	if err := r.db.WithContext(ctx).Create(beneficiary).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create beneficiary")
	}
	return nil
}

func (r *repository) FindActiveBySellerID(ctx context.Context, sellerID uuid.UUID) (*models.Beneficiary, error) {
	var beneficiary models.Beneficiary
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND deleted_at IS NULL", sellerID).
		Order("created_at DESC").
		First(&beneficiary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "beneficiary not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beneficiary")
	}
	return &beneficiary, nil
}

func (r *repository) FindActiveBySellerIDs(ctx context.Context, sellerIDs []uuid.UUID) (map[uuid.UUID]models.Beneficiary, error) {
	out := make(map[uuid.UUID]models.Beneficiary, len(sellerIDs))
	if len(sellerIDs) == 0 {
		return out, nil
	}
	var rows []models.Beneficiary
	if err := r.db.WithContext(ctx).
		Where("seller_id IN ? AND deleted_at IS NULL", sellerIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beneficiaries")
	}
	for _, row := range rows {
		out[row.SellerID] = row
	}
	return out, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error {
	updates := map[string]any{
		"status":          update.Status,
		"status_reason":   update.Reason,
		"last_checked_at": update.CheckedAt,
	}
	if update.Status == enums.BeneficiaryStatusVerified {
		updates["verified_at"] = update.CheckedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.Beneficiary{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update beneficiary status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "beneficiary not found")
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Beneficiary{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"status":         enums.BeneficiaryStatusDeleted,
			"deleted_at":     at,
			"deleted_reason": reason,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "soft delete beneficiary")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "beneficiary not found")
	}
	return nil
}

func (r *repository) FindBankAccount(ctx context.Context, sellerID uuid.UUID) (*models.SellerBankAccount, error) {
	var account models.SellerBankAccount
	err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller bank account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller bank account")
	}
	return &account, nil
}
