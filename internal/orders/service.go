package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/ledger"
	"github.com/angelmondragon/marketplace-payouts/internal/notify"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the order lifecycle. Every mutation loads the current
// snapshot, runs a pure transition and persists the result together with its
// history entry in one transaction.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	History(ctx context.Context, id uuid.UUID) ([]models.OrderStatusHistory, error)
	Approve(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Reject(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	Advance(ctx context.Context, orderID uuid.UUID, actor Actor, to enums.FulfillmentStatus) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	AssignDeliveryAgent(ctx context.Context, orderID uuid.UUID, actor Actor, agentID uuid.UUID) (*models.Order, error)
	AcceptAssignment(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	RejectAssignment(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	CompletePickup(ctx context.Context, orderID uuid.UUID, actor Actor, proof Proof) (*models.Order, error)
	MarkLocationReached(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	CompleteDelivery(ctx context.Context, orderID uuid.UUID, actor Actor, input DeliveryInput) (*models.Order, error)
	AutoApproveSweep(ctx context.Context) (SweepResult, error)
}

// SweepResult summarizes one auto-approval pass.
type SweepResult struct {
	Scanned  int
	Approved int
	Skipped  int
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Ledger    ledger.Service
	Notifier  notify.Notifier
	Logger    *logger.Logger
	BatchSize int
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	ledger    ledger.Service
	notifier  notify.Notifier
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

type transitionFunc func(order models.Order, now time.Time) (Transition, error)

// NewService builds the order lifecycle service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		ledger:    params.Ledger,
		notifier:  notify.NewSafe(notifier, params.Logger),
		logg:      params.Logger,
		batchSize: batchSize,
		now:       now,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]models.OrderStatusHistory, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.repo.ListStatusHistory(ctx, id)
}

func (s *service) Approve(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventOrderApproval, func(order models.Order, now time.Time) (Transition, error) {
		return Approve(order, actor, now)
	}, nil)
}

func (s *service) Reject(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventOrderApproval, func(order models.Order, now time.Time) (Transition, error) {
		return RejectApproval(order, actor, reason, now)
	}, nil)
}

func (s *service) Advance(ctx context.Context, orderID uuid.UUID, actor Actor, to enums.FulfillmentStatus) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventOrderStatusChanged, func(order models.Order, now time.Time) (Transition, error) {
		return Advance(order, actor, to, now)
	}, nil)
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventOrderStatusChanged, func(order models.Order, now time.Time) (Transition, error) {
		return Cancel(order, actor, reason, now)
	}, nil)
}

func (s *service) AssignDeliveryAgent(ctx context.Context, orderID uuid.UUID, actor Actor, agentID uuid.UUID) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventAssignmentChanged, func(order models.Order, now time.Time) (Transition, error) {
		return AssignAgent(order, actor, agentID, now)
	}, nil)
}

func (s *service) AcceptAssignment(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventAssignmentChanged, func(order models.Order, now time.Time) (Transition, error) {
		return AcceptAssignment(order, actor, now)
	}, nil)
}

func (s *service) RejectAssignment(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventAssignmentChanged, func(order models.Order, now time.Time) (Transition, error) {
		return RejectAssignment(order, actor, reason, now)
	}, nil)
}

func (s *service) CompletePickup(ctx context.Context, orderID uuid.UUID, actor Actor, proof Proof) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventOrderStatusChanged, func(order models.Order, now time.Time) (Transition, error) {
		return CompletePickup(order, actor, proof, now)
	}, nil)
}

func (s *service) MarkLocationReached(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventAssignmentChanged, func(order models.Order, now time.Time) (Transition, error) {
		return MarkLocationReached(order, actor, now)
	}, nil)
}

func (s *service) CompleteDelivery(ctx context.Context, orderID uuid.UUID, actor Actor, input DeliveryInput) (*models.Order, error) {
	return s.apply(ctx, orderID, notify.EventOrderStatusChanged, func(order models.Order, now time.Time) (Transition, error) {
		return CompleteDelivery(order, actor, input, now)
	}, func(ctx context.Context, tx *gorm.DB, before, after models.Order) error {
		if !after.IsCOD() || !after.CollectedAmount.Valid {
			return nil
		}
		_, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:   after.ID,
			SellerID:  after.SellerID,
			ActorID:   actor.idPtr(),
			ActorRole: actor.Role,
			Type:      enums.LedgerEventTypeCashCollected,
			Amount:    after.CollectedAmount.Decimal,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cash collection")
		}
		return nil
	})
}

func (s *service) AutoApproveSweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	due, err := s.repo.ListDueForAutoApproval(ctx, now, s.batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(due)}
	var errs error
	for _, candidate := range due {
		order := candidate
		_, err := s.persist(ctx, order, notify.EventOrderApproval, func(order models.Order, _ time.Time) (Transition, error) {
			return AutoApprove(order, now)
		}, nil)
		switch {
		case err == nil:
			result.Approved++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// an admin decided or the order moved on since it was listed
			result.Skipped++
		default:
			result.Skipped++
			errs = multierr.Append(errs, fmt.Errorf("auto approve order %s: %w", order.ID, err))
		}
	}

	if result.Approved > 0 || errs != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"scanned":  result.Scanned,
			"approved": result.Approved,
			"skipped":  result.Skipped,
		})
		s.logg.Info(logCtx, "order auto approval sweep finished")
	}
	return result, errs
}

type afterTransition func(ctx context.Context, tx *gorm.DB, before, after models.Order) error

func (s *service) apply(ctx context.Context, orderID uuid.UUID, eventType notify.EventType, fn transitionFunc, after afterTransition) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, *order, eventType, fn, after)
}

func (s *service) persist(ctx context.Context, current models.Order, eventType notify.EventType, fn transitionFunc, after afterTransition) (*models.Order, error) {
	now := s.now()
	transition, err := fn(current, now)
	if err != nil {
		return nil, err
	}
	next := transition.Order

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SaveTransition(ctx, &next, current.Version); err != nil {
			return err
		}
		if transition.History != nil {
			if err := repo.AppendStatusHistory(ctx, *transition.History); err != nil {
				return err
			}
		}
		if after != nil {
			return after(ctx, tx, current, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, next.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"fulfillment_status": next.FulfillmentStatus,
		"approval_status":    next.AdminApproval.Status,
		"assignment_status":  next.Assignment.Status,
	})
	s.logg.Info(logCtx, "order transition applied")

	_ = s.notifier.Notify(ctx, orderEvent(eventType, next, now))
	return &next, nil
}

func orderEvent(eventType notify.EventType, order models.Order, now time.Time) notify.Event {
	status := string(order.FulfillmentStatus)
	switch eventType {
	case notify.EventOrderApproval:
		status = string(order.AdminApproval.Status)
	case notify.EventAssignmentChanged:
		status = string(order.Assignment.Status)
	}
	buyer := order.BuyerID
	return notify.Event{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		SellerID:    order.SellerID,
		BuyerID:     &buyer,
		AgentID:     order.Assignment.AgentID,
		Status:      status,
		Amount:      order.TotalAmount.StringFixed(2),
		OccurredAt:  now,
	}
}

