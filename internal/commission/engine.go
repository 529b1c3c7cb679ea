package commission

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places every money amount is rounded to.
const Scale int32 = 2

var hundred = decimal.NewFromInt(100)

// Breakdown splits an order amount into platform and seller shares.
type Breakdown struct {
	OrderAmount        decimal.Decimal `json:"order_amount"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	GST                decimal.Decimal `json:"gst"`
	TotalCommission    decimal.Decimal `json:"total_commission"`
	SellerAmount       decimal.Decimal `json:"seller_amount"`
}

// Engine computes commission with fixed percentage rates. The zero value is
// not usable; build one with NewEngine.
type Engine struct {
	commissionRatePct decimal.Decimal
	gstRatePct        decimal.Decimal
}

// NewEngine validates the configured percentages.
func NewEngine(commissionRatePct, gstRatePct decimal.Decimal) (*Engine, error) {
	if commissionRatePct.IsNegative() || commissionRatePct.GreaterThan(hundred) {
		return nil, fmt.Errorf("commission rate must be between 0 and 100, got %s", commissionRatePct)
	}
	if gstRatePct.IsNegative() || gstRatePct.GreaterThan(hundred) {
		return nil, fmt.Errorf("gst rate must be between 0 and 100, got %s", gstRatePct)
	}
	return &Engine{commissionRatePct: commissionRatePct, gstRatePct: gstRatePct}, nil
}

func (e *Engine) CommissionRatePct() decimal.Decimal { return e.commissionRatePct }

func (e *Engine) GSTRatePct() decimal.Decimal { return e.gstRatePct }

// Calculate is deterministic. Each component is rounded half away from zero
// to the cent, and the seller amount is the exact remainder so that
// SellerAmount + TotalCommission == OrderAmount.
func (e *Engine) Calculate(orderAmount decimal.Decimal) Breakdown {
	amount := Round(orderAmount)
	platform := Round(amount.Mul(e.commissionRatePct).Div(hundred))
	gst := Round(platform.Mul(e.gstRatePct).Div(hundred))
	total := platform.Add(gst)

	return Breakdown{
		OrderAmount:        amount,
		PlatformCommission: platform,
		GST:                gst,
		TotalCommission:    total,
		SellerAmount:       amount.Sub(total),
	}
}

// CalculateChecked rejects negative order amounts before calculating.
func (e *Engine) CalculateChecked(orderAmount decimal.Decimal) (Breakdown, error) {
	if orderAmount.IsNegative() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "order amount must not be negative").
			WithDetails(map[string]any{"order_amount": orderAmount.String()})
	}
	return e.Calculate(orderAmount), nil
}

// Round rounds to the cent boundary, half away from zero.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}
