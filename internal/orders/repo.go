package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/commission"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists orders. Lifecycle columns are written only through
// SaveTransition, which is guarded by the optimistic version. Payout snapshot
// columns are written only through the Payout* methods, each guarded by the
// payout state it expects.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	SaveTransition(ctx context.Context, order *models.Order, expectedVersion int64) error
	AppendStatusHistory(ctx context.Context, entries ...models.OrderStatusHistory) error
	AppendReturnHistory(ctx context.Context, entries ...models.OrderReturnHistory) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	ListReturnHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderReturnHistory, error)
	ListDueForAutoApproval(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListPayoutCandidates(ctx context.Context, filter CandidateFilter) ([]models.Order, error)
	UpdatePayoutEligibility(ctx context.Context, orderID uuid.UUID, update EligibilityUpdate) (bool, error)
	MarkPayoutSubmitted(ctx context.Context, orderID uuid.UUID, submission PayoutSubmission) (bool, error)
	MarkPayoutFailed(ctx context.Context, orderID uuid.UUID, failure PayoutFailure) (bool, error)
	MirrorPayoutStatus(ctx context.Context, orderID uuid.UUID, mirror PayoutMirror) error
	CancelPayout(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// CandidateFilter narrows delivered, unsettled orders.
type CandidateFilter struct {
	SellerIDs       []uuid.UUID
	OrderIDs        []uuid.UUID
	PayoutStatuses  []enums.OrderPayoutStatus
	DeliveredBefore *time.Time
	// AfterID switches to keyset paging by primary key. Pass uuid.Nil for
	// the first page.
	AfterID *uuid.UUID
	Limit   int
}

// EligibilityUpdate is the snapshot written by the eligibility evaluator.
type EligibilityUpdate struct {
	Status    enums.OrderPayoutStatus
	Breakdown commission.Breakdown
	Reasons   []string
	CheckedAt time.Time
}

// PayoutSubmission links the order to the transfer the provider accepted.
type PayoutSubmission struct {
	PayoutRef  uuid.UUID
	TransferID string
	BatchID    *uuid.UUID
	Breakdown  commission.Breakdown
}

type PayoutFailure struct {
	Code      string
	Message   string
	Retryable bool
}

// PayoutMirror copies a reconciled payout status onto the order.
type PayoutMirror struct {
	Status      enums.OrderPayoutStatus
	Processed   bool
	CompletedAt *time.Time
	Failure     *PayoutFailure
	// Submission re-links the order to its transfer when the provider
	// reports a payout the order never recorded as submitted.
	Submission *PayoutSubmission
}

var payoutColumns = []string{
	"payout_status",
	"payout_platform_commission",
	"payout_gst_amount",
	"payout_total_commission",
	"payout_seller_amount",
	"payout_processed",
	"payout_ref",
	"payout_transfer_id",
	"payout_batch_id",
	"payout_error_code",
	"payout_error_message",
	"payout_error_retryable",
	"payout_eligibility_checked_at",
	"payout_completed_at",
	"payout_not_eligible_reasons",
}

var defaultCandidateStatuses = []enums.OrderPayoutStatus{
	enums.OrderPayoutStatusNotEligible,
	enums.OrderPayoutStatusEligible,
	enums.OrderPayoutStatusFailed,
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []models.Order
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	return orders, nil
}

func (r *repository) SaveTransition(ctx context.Context, order *models.Order, expectedVersion int64) error {
	order.Version = expectedVersion + 1
	omit := append([]string{"id", "created_at"}, payoutColumns...)
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, expectedVersion).
		Select("*").
		Omit(omit...).
		Updates(order)
	if res.Error != nil {
		order.Version = expectedVersion
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "save order transition")
	}
	if res.RowsAffected == 0 {
		order.Version = expectedVersion
		return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently").
			WithDetails(map[string]any{"order_id": order.ID.String(), "expected_version": expectedVersion})
	}
	return nil
}

func (r *repository) AppendStatusHistory(ctx context.Context, entries ...models.OrderStatusHistory) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}
	return nil
}

func (r *repository) AppendReturnHistory(ctx context.Context, entries ...models.OrderReturnHistory) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append return history")
	}
	return nil
}

func (r *repository) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var entries []models.OrderStatusHistory
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at ASC").
		Find(&entries).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list status history")
	}
	return entries, nil
}

func (r *repository) ListReturnHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderReturnHistory, error) {
	var entries []models.OrderReturnHistory
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at ASC").
		Order("seq ASC").
		Find(&entries).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return history")
	}
	return entries, nil
}

func (r *repository) ListDueForAutoApproval(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("approval_status = ?", enums.ApprovalStatusPending).
		Where("approval_auto_approval_deadline <= ?", now).
		Where("fulfillment_status <> ?", enums.FulfillmentStatusCancelled).
		Order("approval_auto_approval_deadline ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders due for auto approval")
	}
	return orders, nil
}

func (r *repository) ListPayoutCandidates(ctx context.Context, filter CandidateFilter) ([]models.Order, error) {
	statuses := filter.PayoutStatuses
	if len(statuses) == 0 {
		statuses = defaultCandidateStatuses
	}
	query := r.db.WithContext(ctx).
		Where("fulfillment_status = ?", enums.FulfillmentStatusDelivered).
		Where("payout_processed = ?", false).
		Where("payout_status IN ?", statuses)
	if len(filter.SellerIDs) > 0 {
		query = query.Where("seller_id IN ?", filter.SellerIDs)
	}
	if len(filter.OrderIDs) > 0 {
		query = query.Where("id IN ?", filter.OrderIDs)
	}
	if filter.DeliveredBefore != nil {
		query = query.Where("delivered_at <= ?", *filter.DeliveredBefore)
	}
	if filter.AfterID != nil {
		query = query.Where("id > ?", *filter.AfterID).Order("id ASC")
	} else {
		query = query.Order("seller_id ASC").Order("delivered_at ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout candidates")
	}
	return orders, nil
}

func (r *repository) UpdatePayoutEligibility(ctx context.Context, orderID uuid.UUID, update EligibilityUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("payout_processed = ?", false).
		Where("payout_status IN ?", []enums.OrderPayoutStatus{enums.OrderPayoutStatusNotEligible, enums.OrderPayoutStatusEligible}).
		Updates(map[string]any{
			"payout_status":                 update.Status,
			"payout_platform_commission":    update.Breakdown.PlatformCommission,
			"payout_gst_amount":             update.Breakdown.GST,
			"payout_total_commission":       update.Breakdown.TotalCommission,
			"payout_seller_amount":          update.Breakdown.SellerAmount,
			"payout_not_eligible_reasons":   encodeReasons(update.Reasons),
			"payout_eligibility_checked_at": update.CheckedAt,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update payout eligibility")
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkPayoutSubmitted(ctx context.Context, orderID uuid.UUID, submission PayoutSubmission) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("payout_processed = ?", false).
		Updates(map[string]any{
			"payout_status":              enums.OrderPayoutStatusProcessing,
			"payout_processed":           true,
			"payout_ref":                 submission.PayoutRef,
			"payout_transfer_id":         submission.TransferID,
			"payout_batch_id":            submission.BatchID,
			"payout_platform_commission": submission.Breakdown.PlatformCommission,
			"payout_gst_amount":          submission.Breakdown.GST,
			"payout_total_commission":    submission.Breakdown.TotalCommission,
			"payout_seller_amount":       submission.Breakdown.SellerAmount,
			"payout_error_code":          nil,
			"payout_error_message":       nil,
			"payout_error_retryable":     false,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark payout submitted")
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkPayoutFailed(ctx context.Context, orderID uuid.UUID, failure PayoutFailure) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("payout_processed = ?", false).
		Updates(map[string]any{
			"payout_status":          enums.OrderPayoutStatusFailed,
			"payout_error_code":      failure.Code,
			"payout_error_message":   failure.Message,
			"payout_error_retryable": failure.Retryable,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark payout failed")
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MirrorPayoutStatus(ctx context.Context, orderID uuid.UUID, mirror PayoutMirror) error {
	updates := map[string]any{
		"payout_status":    mirror.Status,
		"payout_processed": mirror.Processed,
	}
	if mirror.CompletedAt != nil {
		updates["payout_completed_at"] = *mirror.CompletedAt
	}
	if mirror.Failure != nil {
		updates["payout_error_code"] = mirror.Failure.Code
		updates["payout_error_message"] = mirror.Failure.Message
		updates["payout_error_retryable"] = mirror.Failure.Retryable
	}
	if sub := mirror.Submission; sub != nil {
		updates["payout_ref"] = sub.PayoutRef
		updates["payout_transfer_id"] = sub.TransferID
		updates["payout_batch_id"] = sub.BatchID
		updates["payout_platform_commission"] = sub.Breakdown.PlatformCommission
		updates["payout_gst_amount"] = sub.Breakdown.GST
		updates["payout_total_commission"] = sub.Breakdown.TotalCommission
		updates["payout_seller_amount"] = sub.Breakdown.SellerAmount
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mirror payout status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}

func (r *repository) CancelPayout(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("payout_processed = ?", false).
		Updates(map[string]any{"payout_status": enums.OrderPayoutStatusCancelled})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "cancel payout")
	}
	return res.RowsAffected > 0, nil
}

// encodeReasons matches the json serializer on the reasons column, which map
// based updates bypass.
func encodeReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(reasons)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
