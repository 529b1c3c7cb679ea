// Package returns drives the post-delivery return workflow stored on the
// order's return sub-record.
package returns

import (
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/google/uuid"
)

// ReasonWindowExpired is reported when a buyer asks too late.
const ReasonWindowExpired = "window expired"

// Transition carries the next order snapshot and the return history rows to
// insert with it, in order.
type Transition struct {
	Order   models.Order
	History []models.OrderReturnHistory
}

// Request opens a return. Requests are approved immediately, so two history
// entries are produced.
func Request(order models.Order, actor orders.Actor, reason string, window time.Duration, now time.Time) (Transition, error) {
	if actor.Role != enums.ActorRoleBuyer || actor.ID != order.BuyerID {
		return Transition{}, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may request a return")
	}
	reason, err := requireReason(reason)
	if err != nil {
		return Transition{}, err
	}
	if order.FulfillmentStatus != enums.FulfillmentStatusDelivered || order.DeliveredAt == nil {
		return Transition{}, pkgerrors.StateConflict("order delivered",
			enums.FulfillmentStatusDelivered, order.FulfillmentStatus)
	}
	if now.Sub(*order.DeliveredAt) >= window {
		return Transition{}, pkgerrors.StateConflict(ReasonWindowExpired,
			order.DeliveredAt.Add(window), now)
	}
	switch order.Return.Status {
	case "", enums.ReturnStatusEligible:
	default:
		return Transition{}, pkgerrors.StateConflict("return status eligible",
			enums.ReturnStatusEligible, order.Return.Status)
	}
	if order.Payout.Processed {
		return Transition{}, pkgerrors.StateConflict("payout not yet submitted", false, true)
	}

	next := order
	next.Return = models.ReturnDetails{
		Status:      enums.ReturnStatusApproved,
		Reason:      &reason,
		RequestedAt: timePtr(now),
		ApprovedAt:  timePtr(now),
	}
	from := order.Return.Status
	return Transition{
		Order: next,
		History: []models.OrderReturnHistory{
			entry(order.ID, from, enums.ReturnStatusRequested, actor, &reason, now, 0),
			entry(order.ID, enums.ReturnStatusRequested, enums.ReturnStatusApproved, orders.SystemActor, nil, now, 1),
		},
	}, nil
}

// AdminReject closes a return before any agent is involved.
func AdminReject(order models.Order, actor orders.Actor, reason string, now time.Time) (Transition, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return Transition{}, err
	}
	reason, err := requireReason(reason)
	if err != nil {
		return Transition{}, err
	}
	if err := requireStatus(order, enums.ReturnStatusRequested, enums.ReturnStatusApproved); err != nil {
		return Transition{}, err
	}
	next := order
	next.Return.RejectedAt = timePtr(now)
	next.Return.RejectedBy = actor.Role
	next.Return.RejectionReason = &reason
	return move(next, order.Return.Status, enums.ReturnStatusRejected, actor, &reason, now), nil
}

// AssignAgent hands an approved return to a pickup agent.
func AssignAgent(order models.Order, actor orders.Actor, agentID uuid.UUID, now time.Time) (Transition, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return Transition{}, err
	}
	if agentID == uuid.Nil {
		return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	if err := requireStatus(order, enums.ReturnStatusApproved); err != nil {
		return Transition{}, err
	}
	next := order
	agent := agentID
	next.Return.AgentID = &agent
	next.Return.AssignedAt = timePtr(now)
	next.Return.AcceptedAt = nil
	return move(next, order.Return.Status, enums.ReturnStatusAssigned, actor, nil, now), nil
}

func Accept(order models.Order, actor orders.Actor, now time.Time) (Transition, error) {
	if err := requireReturnAgent(order, actor); err != nil {
		return Transition{}, err
	}
	if err := requireStatus(order, enums.ReturnStatusAssigned); err != nil {
		return Transition{}, err
	}
	next := order
	next.Return.AcceptedAt = timePtr(now)
	return move(next, order.Return.Status, enums.ReturnStatusAccepted, actor, nil, now), nil
}

// AgentReject declines a return pickup. Declining an assignment puts the
// return back in the approved pool. Declining after acceptance ends it.
func AgentReject(order models.Order, actor orders.Actor, reason string, now time.Time) (Transition, error) {
	if err := requireReturnAgent(order, actor); err != nil {
		return Transition{}, err
	}
	reason, err := requireReason(reason)
	if err != nil {
		return Transition{}, err
	}
	next := order
	switch order.Return.Status {
	case enums.ReturnStatusAssigned:
		next.Return.AgentID = nil
		next.Return.AssignedAt = nil
		return move(next, order.Return.Status, enums.ReturnStatusApproved, actor, &reason, now), nil
	case enums.ReturnStatusAccepted:
		next.Return.RejectedAt = timePtr(now)
		next.Return.RejectedBy = actor.Role
		next.Return.RejectionReason = &reason
		return move(next, order.Return.Status, enums.ReturnStatusRejected, actor, &reason, now), nil
	default:
		return Transition{}, pkgerrors.StateConflict("return status assigned or accepted",
			[]enums.ReturnStatus{enums.ReturnStatusAssigned, enums.ReturnStatusAccepted}, order.Return.Status)
	}
}

func Pickup(order models.Order, actor orders.Actor, now time.Time) (Transition, error) {
	if err := requireReturnAgent(order, actor); err != nil {
		return Transition{}, err
	}
	if err := requireStatus(order, enums.ReturnStatusAccepted); err != nil {
		return Transition{}, err
	}
	next := order
	next.Return.PickedUpAt = timePtr(now)
	return move(next, order.Return.Status, enums.ReturnStatusPickedUp, actor, nil, now), nil
}

func DeliverToSeller(order models.Order, actor orders.Actor, now time.Time) (Transition, error) {
	if err := requireReturnAgent(order, actor); err != nil {
		return Transition{}, err
	}
	if err := requireStatus(order, enums.ReturnStatusPickedUp); err != nil {
		return Transition{}, err
	}
	next := order
	next.Return.ReturnedAt = timePtr(now)
	return move(next, order.Return.Status, enums.ReturnStatusReturnedToSeller, actor, nil, now), nil
}

// Complete closes the return and withdraws the order from settlement. Payout
// columns are persisted through orders.Repository.CancelPayout in the same
// transaction.
func Complete(order models.Order, actor orders.Actor, now time.Time) (Transition, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return Transition{}, err
	}
	if err := requireStatus(order, enums.ReturnStatusReturnedToSeller); err != nil {
		return Transition{}, err
	}
	next := order
	next.Return.CompletedAt = timePtr(now)
	next.PaymentStatus = enums.PaymentStatusRefunded
	next.Payout.Status = enums.OrderPayoutStatusCancelled
	return move(next, order.Return.Status, enums.ReturnStatusCompleted, actor, nil, now), nil
}

func move(next models.Order, from, to enums.ReturnStatus, actor orders.Actor, note *string, now time.Time) Transition {
	next.Return.Status = to
	return Transition{
		Order:   next,
		History: []models.OrderReturnHistory{entry(next.ID, from, to, actor, note, now, 0)},
	}
}

func entry(orderID uuid.UUID, from, to enums.ReturnStatus, actor orders.Actor, note *string, now time.Time, seq int) models.OrderReturnHistory {
	var actorID *uuid.UUID
	if actor.ID != uuid.Nil {
		id := actor.ID
		actorID = &id
	}
	return models.OrderReturnHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		ActorRole:  actor.Role,
		Note:       note,
		OccurredAt: now,
		Seq:        seq,
	}
}

func requireStatus(order models.Order, allowed ...enums.ReturnStatus) error {
	for _, status := range allowed {
		if order.Return.Status == status {
			return nil
		}
	}
	var expected any = allowed
	if len(allowed) == 1 {
		expected = allowed[0]
	}
	return pkgerrors.StateConflict("return status "+joinStatuses(allowed), expected, order.Return.Status)
}

func joinStatuses(statuses []enums.ReturnStatus) string {
	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, string(status))
	}
	return strings.Join(parts, " or ")
}

func requireRole(actor orders.Actor, role enums.ActorRole) error {
	if actor.Role != role {
		return pkgerrors.New(pkgerrors.CodeForbidden, "actor role not permitted").
			WithDetails(map[string]any{"allowed": role, "role": actor.Role})
	}
	return nil
}

func requireReturnAgent(order models.Order, actor orders.Actor) error {
	if err := requireRole(actor, enums.ActorRoleDeliveryAgent); err != nil {
		return err
	}
	if order.Return.AgentID == nil || *order.Return.AgentID != actor.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "return is not assigned to this agent")
	}
	return nil
}

func requireReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	return trimmed, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
