package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Service is the only writer of the eligible/not_eligible payout snapshot.
type Service interface {
	UpdateOrderPayoutEligibility(ctx context.Context, orderID uuid.UUID) (Result, error)
	RefreshEligibility(ctx context.Context) (RefreshSummary, error)
}

// RefreshSummary counts what a sweep did.
type RefreshSummary struct {
	Scanned     int
	Eligible    int
	NotEligible int
	Unchanged   int
}

type ServiceParams struct {
	Orders    orders.Repository
	Evaluator *Evaluator
	Logger    *logger.Logger
	BatchSize int
	Now       func() time.Time
}

type service struct {
	orders    orders.Repository
	evaluator *Evaluator
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

var snapshotStatuses = []enums.OrderPayoutStatus{
	enums.OrderPayoutStatusNotEligible,
	enums.OrderPayoutStatusEligible,
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Evaluator == nil {
		return nil, fmt.Errorf("evaluator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &service{
		orders:    params.Orders,
		evaluator: params.Evaluator,
		logg:      params.Logger,
		batchSize: batchSize,
		now:       now,
	}, nil
}

func (s *service) UpdateOrderPayoutEligibility(ctx context.Context, orderID uuid.UUID) (Result, error) {
	if orderID == uuid.Nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	result, _, err := s.write(ctx, order.ID, s.evaluator.Evaluate(*order, s.now()))
	return result, err
}

// RefreshEligibility walks every unsettled order in id order, one page of
// batchSize at a time.
func (s *service) RefreshEligibility(ctx context.Context) (RefreshSummary, error) {
	now := s.now()
	var summary RefreshSummary
	var errs error
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		cursor := after
		page, err := s.orders.ListPayoutCandidates(ctx, orders.CandidateFilter{
			PayoutStatuses: snapshotStatuses,
			AfterID:        &cursor,
			Limit:          s.batchSize,
		})
		if err != nil {
			return summary, multierr.Append(errs, err)
		}
		summary.Scanned += len(page)
		for _, order := range page {
			result, written, err := s.write(ctx, order.ID, s.evaluator.Evaluate(order, now))
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
				continue
			}
			switch {
			case !written:
				summary.Unchanged++
			case result.Eligible:
				summary.Eligible++
			default:
				summary.NotEligible++
			}
		}
		if len(page) < s.batchSize {
			break
		}
		after = page[len(page)-1].ID
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"scanned":      summary.Scanned,
		"eligible":     summary.Eligible,
		"not_eligible": summary.NotEligible,
		"unchanged":    summary.Unchanged,
	})
	s.logg.Info(logCtx, "payout eligibility refreshed")
	return summary, errs
}

func (s *service) write(ctx context.Context, orderID uuid.UUID, result Result) (Result, bool, error) {
	status := enums.OrderPayoutStatusNotEligible
	if result.Eligible {
		status = enums.OrderPayoutStatusEligible
	}
	written, err := s.orders.UpdatePayoutEligibility(ctx, orderID, orders.EligibilityUpdate{
		Status:    status,
		Breakdown: result.Breakdown,
		Reasons:   result.Reasons,
		CheckedAt: s.now(),
	})
	if err != nil {
		return result, false, err
	}
	if !written {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Debug(logCtx, "payout snapshot not in an evaluable state, skipped")
	}
	return result, written, nil
}
