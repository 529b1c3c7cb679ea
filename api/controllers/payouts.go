package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-payouts/api/middleware"
	"github.com/angelmondragon/marketplace-payouts/api/responses"
	"github.com/angelmondragon/marketplace-payouts/api/validators"
	"github.com/angelmondragon/marketplace-payouts/internal/settlement"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
)

// PayoutAdminService is the settlement surface operators can drive by hand.
type PayoutAdminService interface {
	ProcessManualBatchPayout(ctx context.Context, filters settlement.Filters) (settlement.Summary, error)
	RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
}

type manualBatchRequest struct {
	SellerIDs []uuid.UUID `json:"seller_ids" validate:"omitempty,max=500"`
	OrderIDs  []uuid.UUID `json:"order_ids" validate:"omitempty,max=1000"`
	Force     bool        `json:"force"`
}

type payoutResponse struct {
	ID                 uuid.UUID  `json:"id"`
	OrderID            uuid.UUID  `json:"order_id"`
	SellerID           uuid.UUID  `json:"seller_id"`
	TransferID         string     `json:"transfer_id"`
	Status             string     `json:"status"`
	PayoutAmount       string     `json:"payout_amount"`
	ProcessingAttempts int        `json:"processing_attempts"`
	ErrorCode          *string    `json:"error_code,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	Retryable          bool       `json:"retryable"`
	InitiatedAt        *time.Time `json:"initiated_at,omitempty"`
}

// AdminCreatePayoutBatch runs a manual settlement for the selected sellers or
// orders. Empty filters settle everything eligible.
func AdminCreatePayoutBatch(svc PayoutAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		var req manualBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		adminID := middleware.AdminIDFromContext(ctx)
		filters := settlement.Filters{
			SellerIDs: req.SellerIDs,
			OrderIDs:  req.OrderIDs,
			Force:     req.Force,
		}
		if adminID != uuid.Nil {
			filters.InitiatedBy = &adminID
		}

		summary, err := svc.ProcessManualBatchPayout(ctx, filters)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, summary)
	}
}

// AdminRetryPayout resubmits one failed payout under its original transfer id.
func AdminRetryPayout(svc PayoutAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		payoutID, err := uuid.Parse(chi.URLParam(r, "payoutId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout id"))
			return
		}

		payout, err := svc.RetryPayout(ctx, payoutID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPayoutResponse(payout))
	}
}

func toPayoutResponse(p *models.Payout) payoutResponse {
	return payoutResponse{
		ID:                 p.ID,
		OrderID:            p.OrderID,
		SellerID:           p.SellerID,
		TransferID:         p.TransferID,
		Status:             string(p.Status),
		PayoutAmount:       p.PayoutAmount.StringFixed(2),
		ProcessingAttempts: p.ProcessingAttempts,
		ErrorCode:          p.ErrorCode,
		ErrorMessage:       p.ErrorMessage,
		Retryable:          p.Retryable,
		InitiatedAt:        p.InitiatedAt,
	}
}
