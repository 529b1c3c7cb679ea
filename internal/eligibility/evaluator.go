// Package eligibility decides whether a delivered order may be settled.
package eligibility

import (
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/commission"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	"github.com/shopspring/decimal"
)

// Reasons reported when an order is held back.
const (
	ReasonNotDelivered       = "order not delivered"
	ReasonNotPaid            = "payment not completed"
	ReasonAlreadyProcessed   = "payout already processed"
	ReasonTerminalFailure    = "previous payout failed with a non-retryable error"
	ReasonPayoutCancelled    = "payout cancelled"
	ReasonDeliveryDateAbsent = "delivery date missing"
	ReasonCoolingOff         = "payout delay not elapsed"
	ReasonBelowMinimum       = "seller amount below minimum payout"
	ReasonReturnInProgress   = "return in progress or completed"
)

// Result is the outcome of one evaluation. Reasons is empty when eligible.
type Result struct {
	Eligible  bool
	Reasons   []string
	Breakdown commission.Breakdown
}

// Evaluator is stateless and never mutates the order it inspects.
type Evaluator struct {
	engine  *commission.Engine
	minimum decimal.Decimal
	delay   time.Duration
}

func NewEvaluator(engine *commission.Engine, minimum decimal.Decimal, delay time.Duration) *Evaluator {
	return &Evaluator{engine: engine, minimum: minimum, delay: delay}
}

// Evaluate checks every rule and collects all failing reasons rather than
// stopping at the first one.
func (e *Evaluator) Evaluate(order models.Order, now time.Time) Result {
	var reasons []string

	if order.FulfillmentStatus != enums.FulfillmentStatusDelivered {
		reasons = append(reasons, ReasonNotDelivered)
	}
	if !order.IsPaid || order.PaymentStatus != enums.PaymentStatusCompleted {
		reasons = append(reasons, ReasonNotPaid)
	}
	if order.Payout.Processed {
		reasons = append(reasons, ReasonAlreadyProcessed)
	}
	if order.Payout.Status == enums.OrderPayoutStatusFailed && !order.Payout.ErrorRetryable {
		reasons = append(reasons, ReasonTerminalFailure)
	}
	if order.Payout.Status == enums.OrderPayoutStatusCancelled {
		reasons = append(reasons, ReasonPayoutCancelled)
	}
	switch {
	case order.DeliveredAt == nil:
		reasons = append(reasons, ReasonDeliveryDateAbsent)
	case now.Sub(*order.DeliveredAt) < e.delay:
		reasons = append(reasons, ReasonCoolingOff)
	}
	if order.Return.Status.BlocksPayout() {
		reasons = append(reasons, ReasonReturnInProgress)
	}

	breakdown := e.engine.Calculate(order.TotalAmount)
	if breakdown.SellerAmount.LessThan(e.minimum) {
		reasons = append(reasons, ReasonBelowMinimum)
	}

	return Result{
		Eligible:  len(reasons) == 0,
		Reasons:   reasons,
		Breakdown: breakdown,
	}
}

func (e *Evaluator) IsEligibleForPayout(order models.Order, now time.Time) bool {
	return e.Evaluate(order, now).Eligible
}

// Engine exposes the commission engine used for the breakdown.
func (e *Evaluator) Engine() *commission.Engine {
	return e.engine
}
