package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/ledger"
	"github.com/angelmondragon/marketplace-payouts/internal/notify"
	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service persists return transitions next to the order they belong to.
type Service interface {
	Request(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error)
	AdminReject(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error)
	AssignAgent(ctx context.Context, orderID uuid.UUID, actor orders.Actor, agentID uuid.UUID) (*models.Order, error)
	Accept(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	AgentReject(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error)
	Pickup(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	DeliverToSeller(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderReturnHistory, error)
}

type ServiceParams struct {
	Orders   orders.Repository
	Tx       txRunner
	Ledger   ledger.Service
	Notifier notify.Notifier
	Logger   *logger.Logger
	Window   time.Duration
	Now      func() time.Time
}

type service struct {
	orders   orders.Repository
	tx       txRunner
	ledger   ledger.Service
	notifier notify.Notifier
	logg     *logger.Logger
	window   time.Duration
	now      func() time.Time
}

type transitionFunc func(order models.Order, now time.Time) (Transition, error)

type inTxFn func(ctx context.Context, tx *gorm.DB, next models.Order) error

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
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
	if params.Window <= 0 {
		return nil, fmt.Errorf("return window must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		orders:   params.Orders,
		tx:       params.Tx,
		ledger:   params.Ledger,
		notifier: notify.NewSafe(params.Notifier, params.Logger),
		logg:     params.Logger,
		window:   params.Window,
		now:      now,
	}, nil
}

func (s *service) Request(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return Request(order, actor, reason, s.window, now)
	}, nil)
}

func (s *service) AdminReject(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return AdminReject(order, actor, reason, now)
	}, nil)
}

func (s *service) AssignAgent(ctx context.Context, orderID uuid.UUID, actor orders.Actor, agentID uuid.UUID) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return AssignAgent(order, actor, agentID, now)
	}, nil)
}

func (s *service) Accept(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return Accept(order, actor, now)
	}, nil)
}

func (s *service) AgentReject(ctx context.Context, orderID uuid.UUID, actor orders.Actor, reason string) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return AgentReject(order, actor, reason, now)
	}, nil)
}

func (s *service) Pickup(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return Pickup(order, actor, now)
	}, nil)
}

func (s *service) DeliverToSeller(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return DeliverToSeller(order, actor, now)
	}, nil)
}

// Complete also withdraws the order from settlement and books the refund.
func (s *service) Complete(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, func(order models.Order, now time.Time) (Transition, error) {
		return Complete(order, actor, now)
	}, func(ctx context.Context, tx *gorm.DB, next models.Order) error {
		cancelled, err := s.orders.WithTx(tx).CancelPayout(ctx, next.ID)
		if err != nil {
			return err
		}
		if !cancelled {
			return pkgerrors.StateConflict("payout not yet submitted", false, true)
		}
		_, err = s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:   next.ID,
			SellerID:  next.SellerID,
			ActorID:   actorID(actor),
			ActorRole: actor.Role,
			Type:      enums.LedgerEventTypeRefund,
			Amount:    next.TotalAmount,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}
		return nil
	})
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderReturnHistory, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.orders.ListReturnHistory(ctx, orderID)
}

func (s *service) apply(ctx context.Context, orderID uuid.UUID, fn transitionFunc, after inTxFn) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	transition, err := fn(*current, now)
	if err != nil {
		return nil, err
	}
	next := transition.Order

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.SaveTransition(ctx, &next, current.Version); err != nil {
			return err
		}
		if err := repo.AppendReturnHistory(ctx, transition.History...); err != nil {
			return err
		}
		if after != nil {
			return after(ctx, tx, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, next.ID.String())
	logCtx = s.logg.WithField(logCtx, "return_status", next.Return.Status)
	s.logg.Info(logCtx, "return transition applied")

	buyer := next.BuyerID
	_ = s.notifier.Notify(ctx, notify.Event{
		Type:        notify.EventReturnStatusChanged,
		OrderID:     next.ID,
		OrderNumber: next.OrderNumber,
		SellerID:    next.SellerID,
		BuyerID:     &buyer,
		AgentID:     next.Return.AgentID,
		Status:      string(next.Return.Status),
		Amount:      next.TotalAmount.StringFixed(2),
		OccurredAt:  now,
	})
	return &next, nil
}

func actorID(actor orders.Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}
