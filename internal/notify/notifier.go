package notify

import (
	"context"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderStatusChanged  EventType = "order.status_changed"
	EventOrderApproval       EventType = "order.approval_changed"
	EventAssignmentChanged   EventType = "order.assignment_changed"
	EventReturnStatusChanged EventType = "order.return_status_changed"
	EventPayoutInitiated     EventType = "payout.initiated"
	EventPayoutCompleted     EventType = "payout.completed"
	EventPayoutFailed        EventType = "payout.failed"
	EventPayoutReversed      EventType = "payout.reversed"
)

// Event is the trigger contract handed to the notification service. Delivery
// channels (email, SMS, sockets) live on the consuming side.
type Event struct {
	Type        EventType  `json:"type"`
	OrderID     uuid.UUID  `json:"order_id"`
	OrderNumber string     `json:"order_number,omitempty"`
	SellerID    uuid.UUID  `json:"seller_id"`
	BuyerID     *uuid.UUID `json:"buyer_id,omitempty"`
	AgentID     *uuid.UUID `json:"agent_id,omitempty"`
	PayoutID    *uuid.UUID `json:"payout_id,omitempty"`
	Status      string     `json:"status"`
	Amount      string     `json:"amount,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Noop drops every event. Used when no topic is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }

// Safe wraps a notifier so failures are logged and never surface to callers.
type Safe struct {
	next Notifier
	logg *logger.Logger
}

func NewSafe(next Notifier, logg *logger.Logger) *Safe {
	if next == nil {
		next = Noop{}
	}
	return &Safe{next: next, logg: logg}
}

func (s *Safe) Notify(ctx context.Context, event Event) error {
	if err := s.next.Notify(ctx, event); err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_type": event.Type,
			"order_id":   event.OrderID.String(),
			"status":     event.Status,
		})
		s.logg.Error(logCtx, "notification dispatch failed", err)
	}
	return nil
}
