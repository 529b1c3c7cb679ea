package orders

import (
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor identifies who requested a transition.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// SystemActor drives scheduled transitions.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

func (a Actor) idPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

// Proof is the evidence an agent captures at a handoff.
type Proof struct {
	Latitude     *float64
	Longitude    *float64
	Notes        *string
	OTPReference *string
}

// Transition is the result of a pure transition function: the next order
// snapshot plus the audit entry to persist alongside it. History is nil when
// the fulfillment status did not change.
type Transition struct {
	Order   models.Order
	History *models.OrderStatusHistory
}

// NewOrderInput carries what checkout hands over when an order is placed.
type NewOrderInput struct {
	OrderNumber         string
	BuyerID             uuid.UUID
	SellerID            uuid.UUID
	PaymentMethod       enums.PaymentMethod
	TotalAmount         decimal.Decimal
	IsPaid              bool
	EstimatedDeliveryAt *time.Time
}

// NewOrder builds the initial snapshot of an order.
func NewOrder(input NewOrderInput, now time.Time, autoApprovalWindow time.Duration) (models.Order, error) {
	if strings.TrimSpace(input.OrderNumber) == "" {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if input.BuyerID == uuid.Nil || input.SellerID == uuid.Nil {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller required")
	}
	if !input.PaymentMethod.IsValid() {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if !input.TotalAmount.IsPositive() {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	paymentStatus := enums.PaymentStatusPending
	if input.IsPaid {
		paymentStatus = enums.PaymentStatusCompleted
	}

	return models.Order{
		ID:                  uuid.New(),
		OrderNumber:         input.OrderNumber,
		BuyerID:             input.BuyerID,
		SellerID:            input.SellerID,
		FulfillmentStatus:   enums.FulfillmentStatusPending,
		PaymentMethod:       input.PaymentMethod,
		PaymentStatus:       paymentStatus,
		IsPaid:              input.IsPaid,
		TotalAmount:         input.TotalAmount.Round(2),
		EstimatedDeliveryAt: input.EstimatedDeliveryAt,
		AdminApproval: models.AdminApproval{
			Status:               enums.ApprovalStatusPending,
			AutoApprovalDeadline: now.Add(autoApprovalWindow),
		},
		Assignment: models.DeliveryAssignment{Status: enums.AssignmentStatusUnassigned},
		Payout:     models.OrderPayout{Status: enums.OrderPayoutStatusNotEligible},
		Version:    1,
	}, nil
}

// Approve grants the admin gate.
func Approve(order models.Order, actor Actor, now time.Time) (Transition, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return Transition{}, err
	}
	if err := requireApprovalPending(order); err != nil {
		return Transition{}, err
	}
	next := order
	next.AdminApproval.Status = enums.ApprovalStatusApproved
	next.AdminApproval.DecidedBy = actor.idPtr()
	next.AdminApproval.DecidedAt = timePtr(now)
	return Transition{Order: next}, nil
}

// RejectApproval denies the admin gate and cancels the order with the admin
// recorded as the canceller.
func RejectApproval(order models.Order, actor Actor, reason string, now time.Time) (Transition, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return Transition{}, err
	}
	reason, err := requireReason(reason)
	if err != nil {
		return Transition{}, err
	}
	if err := requireApprovalPending(order); err != nil {
		return Transition{}, err
	}
	if !order.FulfillmentStatus.IsCancellable() {
		return Transition{}, pkgerrors.StateConflict("fulfillment status allows cancellation",
			[]enums.FulfillmentStatus{enums.FulfillmentStatusPending, enums.FulfillmentStatusProcessing},
			order.FulfillmentStatus)
	}

	next := order
	next.AdminApproval.Status = enums.ApprovalStatusRejected
	next.AdminApproval.DecidedBy = actor.idPtr()
	next.AdminApproval.DecidedAt = timePtr(now)
	next.AdminApproval.RejectionReason = &reason
	next.Cancellation = models.Cancellation{
		CancelledBy: actor.idPtr(),
		Role:        actor.Role,
		Reason:      &reason,
		CancelledAt: timePtr(now),
	}
	return moveFulfillment(next, order.FulfillmentStatus, enums.FulfillmentStatusCancelled, actor, &reason, now), nil
}

// AutoApprove releases orders nobody reviewed before the deadline.
func AutoApprove(order models.Order, now time.Time) (Transition, error) {
	if err := requireApprovalPending(order); err != nil {
		return Transition{}, err
	}
	if order.FulfillmentStatus == enums.FulfillmentStatusCancelled {
		return Transition{}, pkgerrors.StateConflict("order not cancelled", "not Cancelled", order.FulfillmentStatus)
	}
	if now.Before(order.AdminApproval.AutoApprovalDeadline) {
		return Transition{}, pkgerrors.StateConflict("auto approval deadline reached",
			order.AdminApproval.AutoApprovalDeadline, now)
	}
	next := order
	next.AdminApproval.Status = enums.ApprovalStatusAutoApproved
	next.AdminApproval.DecidedBy = nil
	next.AdminApproval.DecidedAt = timePtr(now)
	return Transition{Order: next}, nil
}

// Advance moves an order through the seller-driven steps
// Pending -> Processing -> Shipped.
func Advance(order models.Order, actor Actor, to enums.FulfillmentStatus, now time.Time) (Transition, error) {
	if err := requireRole(actor, enums.ActorRoleSeller, enums.ActorRoleAdmin); err != nil {
		return Transition{}, err
	}
	if actor.Role == enums.ActorRoleSeller && actor.ID != order.SellerID {
		return Transition{}, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
	}
	expected, ok := manualProgression[to]
	if !ok {
		return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, "fulfillment status cannot be set directly").
			WithDetails(map[string]any{"to": to})
	}
	if order.FulfillmentStatus != expected {
		return Transition{}, pkgerrors.StateConflict("fulfillment status precedes target", expected, order.FulfillmentStatus)
	}
	return moveFulfillment(order, order.FulfillmentStatus, to, actor, nil, now), nil
}

var manualProgression = map[enums.FulfillmentStatus]enums.FulfillmentStatus{
	enums.FulfillmentStatusProcessing: enums.FulfillmentStatusPending,
	enums.FulfillmentStatusShipped:    enums.FulfillmentStatusProcessing,
}

// Cancel stops an order before it leaves the seller. Any actor may cancel
// with a reason. Once a payout has been submitted nothing is rolled back.
func Cancel(order models.Order, actor Actor, reason string, now time.Time) (Transition, error) {
	if !actor.Role.IsValid() {
		return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, "actor role required")
	}
	reason, err := requireReason(reason)
	if err != nil {
		return Transition{}, err
	}
	if !order.FulfillmentStatus.IsCancellable() {
		return Transition{}, pkgerrors.StateConflict("fulfillment status allows cancellation",
			[]enums.FulfillmentStatus{enums.FulfillmentStatusPending, enums.FulfillmentStatusProcessing},
			order.FulfillmentStatus)
	}
	if order.Payout.Processed {
		return Transition{}, pkgerrors.StateConflict("payout not yet submitted", false, true)
	}

	next := order
	next.Cancellation = models.Cancellation{
		CancelledBy: actor.idPtr(),
		Role:        actor.Role,
		Reason:      &reason,
		CancelledAt: timePtr(now),
	}
	return moveFulfillment(next, order.FulfillmentStatus, enums.FulfillmentStatusCancelled, actor, &reason, now), nil
}

// AssignAgent hands the order to a delivery agent. Reassignment after an
// agent declined is allowed while the order waits at Pickup_Ready.
func AssignAgent(order models.Order, actor Actor, agentID uuid.UUID, now time.Time) (Transition, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return Transition{}, err
	}
	if agentID == uuid.Nil {
		return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	if !order.AdminApproval.Status.IsGranted() {
		return Transition{}, pkgerrors.StateConflict("admin approval granted",
			[]enums.ApprovalStatus{enums.ApprovalStatusApproved, enums.ApprovalStatusAutoApproved},
			order.AdminApproval.Status)
	}
	if order.Assignment.Status != enums.AssignmentStatusUnassigned {
		return Transition{}, pkgerrors.StateConflict("delivery assignment unassigned",
			enums.AssignmentStatusUnassigned, order.Assignment.Status)
	}
	switch order.FulfillmentStatus {
	case enums.FulfillmentStatusProcessing, enums.FulfillmentStatusShipped, enums.FulfillmentStatusPickupReady:
	default:
		return Transition{}, pkgerrors.StateConflict("fulfillment status allows assignment",
			[]enums.FulfillmentStatus{enums.FulfillmentStatusProcessing, enums.FulfillmentStatusShipped, enums.FulfillmentStatusPickupReady},
			order.FulfillmentStatus)
	}

	next := order
	agent := agentID
	next.Assignment = models.DeliveryAssignment{
		AgentID:    &agent,
		Status:     enums.AssignmentStatusAssigned,
		AssignedBy: actor.idPtr(),
		AssignedAt: timePtr(now),
	}
	if order.FulfillmentStatus == enums.FulfillmentStatusPickupReady {
		return Transition{Order: next}, nil
	}
	return moveFulfillment(next, order.FulfillmentStatus, enums.FulfillmentStatusPickupReady, actor, nil, now), nil
}

// AcceptAssignment confirms the assigned agent will pick the order up.
func AcceptAssignment(order models.Order, actor Actor, now time.Time) (Transition, error) {
	if err := requireAssignedAgent(order, actor); err != nil {
		return Transition{}, err
	}
	if order.Assignment.Status != enums.AssignmentStatusAssigned {
		return Transition{}, pkgerrors.StateConflict("delivery assignment assigned",
			enums.AssignmentStatusAssigned, order.Assignment.Status)
	}
	next := order
	next.Assignment.Status = enums.AssignmentStatusAccepted
	next.Assignment.AcceptedAt = timePtr(now)
	return Transition{Order: next}, nil
}

// RejectAssignment releases the order back to the unassigned pool. The
// fulfillment status is left untouched so an admin can reassign.
func RejectAssignment(order models.Order, actor Actor, reason string, now time.Time) (Transition, error) {
	if err := requireAssignedAgent(order, actor); err != nil {
		return Transition{}, err
	}
	reason, err := requireReason(reason)
	if err != nil {
		return Transition{}, err
	}
	if order.Assignment.Status != enums.AssignmentStatusAssigned {
		return Transition{}, pkgerrors.StateConflict("delivery assignment assigned",
			enums.AssignmentStatusAssigned, order.Assignment.Status)
	}
	next := order
	next.Assignment = models.DeliveryAssignment{
		Status:          enums.AssignmentStatusUnassigned,
		RejectedAt:      timePtr(now),
		RejectionReason: &reason,
	}
	return Transition{Order: next}, nil
}

// CompletePickup records the handoff from seller to agent.
func CompletePickup(order models.Order, actor Actor, proof Proof, now time.Time) (Transition, error) {
	if err := requireAssignedAgent(order, actor); err != nil {
		return Transition{}, err
	}
	if order.FulfillmentStatus != enums.FulfillmentStatusPickupReady {
		return Transition{}, pkgerrors.StateConflict("fulfillment status Pickup_Ready",
			enums.FulfillmentStatusPickupReady, order.FulfillmentStatus)
	}
	if order.Assignment.Status != enums.AssignmentStatusAccepted {
		return Transition{}, pkgerrors.StateConflict("delivery assignment accepted",
			enums.AssignmentStatusAccepted, order.Assignment.Status)
	}
	next := order
	next.Assignment.Status = enums.AssignmentStatusPickupCompleted
	next.Pickup = handoff(proof, now)
	return moveFulfillment(next, order.FulfillmentStatus, enums.FulfillmentStatusOutForDelivery, actor, proof.Notes, now), nil
}

// MarkLocationReached notes the agent arrived at the buyer.
func MarkLocationReached(order models.Order, actor Actor, now time.Time) (Transition, error) {
	if err := requireAssignedAgent(order, actor); err != nil {
		return Transition{}, err
	}
	if order.FulfillmentStatus != enums.FulfillmentStatusOutForDelivery {
		return Transition{}, pkgerrors.StateConflict("fulfillment status Out_for_Delivery",
			enums.FulfillmentStatusOutForDelivery, order.FulfillmentStatus)
	}
	if order.Assignment.Status != enums.AssignmentStatusPickupCompleted {
		return Transition{}, pkgerrors.StateConflict("delivery assignment pickup_completed",
			enums.AssignmentStatusPickupCompleted, order.Assignment.Status)
	}
	next := order
	next.Assignment.Status = enums.AssignmentStatusLocationReached
	return Transition{Order: next}, nil
}

// DeliveryInput is what the agent submits at the door.
type DeliveryInput struct {
	Proof           Proof
	CollectedAmount *decimal.Decimal
}

// CompleteDelivery closes the fulfillment flow. Cash orders must report the
// collected amount, which must match the order total.
func CompleteDelivery(order models.Order, actor Actor, input DeliveryInput, now time.Time) (Transition, error) {
	if err := requireAssignedAgent(order, actor); err != nil {
		return Transition{}, err
	}
	if order.FulfillmentStatus != enums.FulfillmentStatusOutForDelivery {
		return Transition{}, pkgerrors.StateConflict("fulfillment status Out_for_Delivery",
			enums.FulfillmentStatusOutForDelivery, order.FulfillmentStatus)
	}
	switch order.Assignment.Status {
	case enums.AssignmentStatusPickupCompleted, enums.AssignmentStatusLocationReached:
	default:
		return Transition{}, pkgerrors.StateConflict("delivery assignment picked up",
			[]enums.AssignmentStatus{enums.AssignmentStatusPickupCompleted, enums.AssignmentStatusLocationReached},
			order.Assignment.Status)
	}

	next := order
	if order.IsCOD() {
		if input.CollectedAmount == nil {
			return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, "collected amount required for cash on delivery")
		}
		collected := input.CollectedAmount.Round(2)
		if !collected.Equal(order.TotalAmount) {
			return Transition{}, pkgerrors.New(pkgerrors.CodeValidation, "collected amount does not match order total").
				WithDetails(map[string]any{"expected": order.TotalAmount.String(), "collected": collected.String()})
		}
		next.CollectedAmount = decimal.NewNullDecimal(collected)
		next.IsPaid = true
		next.PaymentStatus = enums.PaymentStatusCompleted
	}

	next.DeliveredAt = timePtr(now)
	if order.EstimatedDeliveryAt != nil {
		onTime := !now.After(*order.EstimatedDeliveryAt)
		next.DeliveredOnTime = &onTime
	}
	next.Assignment.Status = enums.AssignmentStatusDeliveryCompleted
	next.Delivery = handoff(input.Proof, now)
	next.Return = models.ReturnDetails{Status: enums.ReturnStatusEligible}
	return moveFulfillment(next, order.FulfillmentStatus, enums.FulfillmentStatusDelivered, actor, input.Proof.Notes, now), nil
}

func moveFulfillment(next models.Order, from, to enums.FulfillmentStatus, actor Actor, note *string, now time.Time) Transition {
	next.FulfillmentStatus = to
	return Transition{
		Order: next,
		History: &models.OrderStatusHistory{
			OrderID:    next.ID,
			FromStatus: from,
			ToStatus:   to,
			ActorID:    actor.idPtr(),
			ActorRole:  actor.Role,
			Note:       note,
			OccurredAt: now,
		},
	}
}

func handoff(proof Proof, now time.Time) models.Handoff {
	return models.Handoff{
		Completed:    true,
		CompletedAt:  timePtr(now),
		Latitude:     proof.Latitude,
		Longitude:    proof.Longitude,
		Notes:        proof.Notes,
		OTPReference: proof.OTPReference,
	}
}

func requireApprovalPending(order models.Order) error {
	if order.AdminApproval.Status != enums.ApprovalStatusPending {
		return pkgerrors.StateConflict("admin approval pending", enums.ApprovalStatusPending, order.AdminApproval.Status)
	}
	return nil
}

func requireRole(actor Actor, allowed ...enums.ActorRole) error {
	for _, role := range allowed {
		if actor.Role == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "actor role not permitted").
		WithDetails(map[string]any{"allowed": allowed, "role": actor.Role})
}

func requireAssignedAgent(order models.Order, actor Actor) error {
	if err := requireRole(actor, enums.ActorRoleDeliveryAgent); err != nil {
		return err
	}
	if order.Assignment.AgentID == nil || *order.Assignment.AgentID != actor.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this agent")
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
