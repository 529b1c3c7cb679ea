package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/marketplace-payouts/api/responses"
	"github.com/angelmondragon/marketplace-payouts/internal/reconciliation"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
)

const maxWebhookBody = 1 << 20

type PayoutWebhookService interface {
	VerifyWebhook(raw []byte, signature string) error
	HandleWebhook(ctx context.Context, raw []byte, signature string) (reconciliation.WebhookResult, error)
}

type PayoutWebhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryKey string) (bool, error)
	Delete(ctx context.Context, deliveryKey string) error
}

// PayoutWebhook handles transfer status callbacks from the payout provider.
func PayoutWebhook(svc PayoutWebhookService, guard PayoutWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(payoutgateway.SignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if err := svc.VerifyWebhook(payload, signature); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		deliveryKey, err := reconciliation.DeliveryKey(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "delivery_key", deliveryKey)
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, deliveryKey)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				logg.Debug(ctx, "duplicate payout webhook acknowledged")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		result, err := svc.HandleWebhook(ctx, payload, signature)
		if err != nil {
			_ = guard.Delete(ctx, deliveryKey)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"applied":   result.Applied,
				"unchanged": result.Unchanged,
				"unknown":   result.Unknown,
			}), "payout webhook processed")
		}
		responses.WriteSuccess(w, result)
	}
}
