package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/db"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists payouts and their batches. Payout status writes are
// guarded by the row version.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, batch *models.PayoutBatch) error
	FindBatch(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error)
	SaveBatch(ctx context.Context, batch *models.PayoutBatch) error
	CreatePayout(ctx context.Context, payout *models.Payout) error
	FindPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindPayoutByTransferID(ctx context.Context, transferID string) (*models.Payout, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Payout, error)
	ListInFlight(ctx context.Context, limit int) ([]models.Payout, error)
	ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.Payout, error)
	SavePayout(ctx context.Context, payout *models.Payout, expectedVersion int64) error
}

var inFlightStatuses = []enums.PayoutStatus{
	enums.PayoutStatusPending,
	enums.PayoutStatusInitiated,
	enums.PayoutStatusProcessing,
	enums.PayoutStatusApprovalPending,
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

func (r *repository) CreateBatch(ctx context.Context, batch *models.PayoutBatch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout batch")
	}
	return nil
}

func (r *repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout batch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout batch")
	}
	return &batch, nil
}

func (r *repository) SaveBatch(ctx context.Context, batch *models.PayoutBatch) error {
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutBatch{}).
		Where("id = ?", batch.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(batch).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payout batch")
	}
	return nil
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.Payout) error {
	if payout.Version == 0 {
		payout.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(payout).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payout already exists for order")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}
	return nil
}

func (r *repository) FindPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindPayoutByTransferID(ctx context.Context, transferID string) (*models.Payout, error) {
	return r.findOne(ctx, "transfer_id = ?", transferID)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where(query, arg).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return &payout, nil
}

func (r *repository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Payout, error) {
	var payouts []models.Payout
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&payouts).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batch payouts")
	}
	return payouts, nil
}

// ListInFlight returns payouts awaiting a provider outcome, least recently
// checked first.
func (r *repository) ListInFlight(ctx context.Context, limit int) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", inFlightStatuses).
		Order("COALESCE(last_checked_at, created_at) ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list in-flight payouts")
	}
	return payouts, nil
}

// ListRetryable returns retryable failures under the attempt cap together
// with pending payouts staged at or before staleBefore. A pending row that
// old was never acknowledged by its submitter.
func (r *repository) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).
		Where("(status = ? AND retryable = ? AND processing_attempts < ?) OR (status = ? AND (staged_at IS NULL OR staged_at <= ?))",
			enums.PayoutStatusFailed, true, maxAttempts, enums.PayoutStatusPending, staleBefore).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list retryable payouts")
	}
	return payouts, nil
}

// SavePayout writes the full row when the stored version still matches and
// bumps the version.
func (r *repository) SavePayout(ctx context.Context, payout *models.Payout, expectedVersion int64) error {
	payout.Version = expectedVersion + 1
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND version = ?", payout.ID, expectedVersion).
		Select("*").
		Omit("id", "order_id", "transfer_id", "created_at").
		Updates(payout)
	if res.Error != nil {
		payout.Version = expectedVersion
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "save payout")
	}
	if res.RowsAffected == 0 {
		payout.Version = expectedVersion
		return pkgerrors.New(pkgerrors.CodeConflict, "payout was modified concurrently").
			WithDetails(map[string]any{"payout_id": payout.ID.String(), "expected_version": expectedVersion})
	}
	return nil
}
