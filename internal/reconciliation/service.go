// Package reconciliation converges payout and order state onto what the
// provider reports, whether pushed by webhook or pulled by polling.
package reconciliation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/ledger"
	"github.com/angelmondragon/marketplace-payouts/internal/notify"
	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/internal/settlement"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/metrics"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"

	codeReversed = "REVERSED"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Settler is the part of settlement reconciliation drives.
type Settler interface {
	RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	RecomputeBatch(ctx context.Context, batchID uuid.UUID) (*models.PayoutBatch, error)
}

type Service interface {
	ApplyTransferStatus(ctx context.Context, payout *models.Payout, update StatusUpdate) (Outcome, error)
	VerifyWebhook(raw []byte, signature string) error
	HandleWebhook(ctx context.Context, raw []byte, signature string) (WebhookResult, error)
	PollPending(ctx context.Context) (PollSummary, error)
	RetryFailed(ctx context.Context) (RetrySummary, error)
}

// StatusUpdate is one provider observation of a transfer.
type StatusUpdate struct {
	TransferID         string
	ProviderTransferID string
	RawStatus          string
	Status             enums.PayoutStatus
	StatusCode         string
	Description        string
	UTR                string
	Source             string
}

type Outcome struct {
	Payout   *models.Payout
	Changed  bool
	Conflict bool
	Notified bool
}

type WebhookResult struct {
	Applied   int `json:"applied"`
	Unchanged int `json:"unchanged"`
	Unknown   int `json:"unknown"`
}

type PollSummary struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

type RetrySummary struct {
	Selected int `json:"selected"`
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
}

type ServiceParams struct {
	Orders        orders.Repository
	Payouts       settlement.Repository
	Settlement    Settler
	Tx            txRunner
	Ledger        ledger.Service
	Provider      payoutgateway.Client
	Notifier      notify.Notifier
	Metrics       *metrics.SettlementMetrics
	Logger        *logger.Logger
	WebhookSecret string
	MaxAttempts   int
	BatchSize     int
	PendingGrace  time.Duration
	Now           func() time.Time
}

type service struct {
	orders        orders.Repository
	payouts       settlement.Repository
	settlement    Settler
	tx            txRunner
	ledger        ledger.Service
	provider      payoutgateway.Client
	notifier      notify.Notifier
	metrics       *metrics.SettlementMetrics
	logg          *logger.Logger
	webhookSecret string
	maxAttempts   int
	batchSize     int
	pendingGrace  time.Duration
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Payouts == nil:
		return nil, fmt.Errorf("payout repository required")
	case params.Settlement == nil:
		return nil, fmt.Errorf("settlement service required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Provider == nil:
		return nil, fmt.Errorf("payout provider required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.WebhookSecret == "":
		return nil, fmt.Errorf("webhook secret required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	grace := params.PendingGrace
	if grace <= 0 {
		grace = settlement.DefaultPendingGrace
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		orders:        params.Orders,
		payouts:       params.Payouts,
		settlement:    params.Settlement,
		tx:            params.Tx,
		ledger:        params.Ledger,
		provider:      params.Provider,
		notifier:      notify.NewSafe(params.Notifier, params.Logger),
		metrics:       params.Metrics,
		logg:          params.Logger,
		webhookSecret: params.WebhookSecret,
		maxAttempts:   maxAttempts,
		batchSize:     batchSize,
		pendingGrace:  grace,
		now:           now,
	}, nil
}

// ApplyTransferStatus is the only place provider outcomes are written. It is
// safe to call repeatedly with the same update.
func (s *service) ApplyTransferStatus(ctx context.Context, payout *models.Payout, update StatusUpdate) (Outcome, error) {
	if payout == nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payout required")
	}
	if update.Status == "" {
		update.Status = payoutgateway.ClassifyStatus(update.RawStatus)
	}

	current := payout
	outcome, err := s.apply(ctx, current, update)
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		current, err = s.payouts.FindPayout(ctx, payout.ID)
		if err != nil {
			return Outcome{}, err
		}
		outcome, err = s.apply(ctx, current, update)
	}
	if err != nil {
		return Outcome{}, err
	}
	if !outcome.Changed {
		return outcome, nil
	}

	next := outcome.Payout
	s.metrics.ObserveReconciled(update.Source, string(next.Status))
	if outcome.Notified {
		s.notifyTerminal(ctx, next)
	}
	if next.BatchID != nil {
		if _, err := s.settlement.RecomputeBatch(ctx, *next.BatchID); err != nil {
			s.logg.Error(s.logg.WithBatchID(ctx, next.BatchID.String()), "recompute batch", err)
		}
	}
	return outcome, nil
}

func (s *service) apply(ctx context.Context, current *models.Payout, update StatusUpdate) (Outcome, error) {
	logCtx := s.logg.WithPayoutID(s.logg.WithOrderID(ctx, current.OrderID.String()), current.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"transfer_id": current.TransferID,
		"source":      update.Source,
	})

	if current.Status == update.Status {
		s.logg.Debug(logCtx, "payout status unchanged")
		return Outcome{Payout: current}, nil
	}
	if current.Status.IsTerminal() && !update.Status.IsTerminal() {
		s.logg.Warn(s.logg.WithField(logCtx, "provider_status", update.Status), "stale provider status ignored")
		return Outcome{Payout: current}, nil
	}
	conflict := current.Status.IsTerminal()
	if conflict {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"stored_status":   current.Status,
			"provider_status": update.Status,
		}), "provider reported a different terminal status, applying provider state")
	}

	now := s.now()
	next := *current
	next.Status = update.Status
	next.LastCheckedAt = &now
	if raw := strings.TrimSpace(update.RawStatus); raw != "" {
		next.ProviderStatus = &raw
	}
	if update.ProviderTransferID != "" {
		providerID := update.ProviderTransferID
		next.ProviderTransferID = &providerID
	}

	submission := settlement.SubmissionOf(&next)
	mirror := orders.PayoutMirror{Status: enums.OrderPayoutStatusProcessing, Processed: true, Submission: &submission}
	switch update.Status {
	case enums.PayoutStatusCompleted:
		if update.UTR != "" {
			utr := update.UTR
			next.TransferUTR = &utr
		}
		next.CompletedAt = &now
		next.ErrorCode, next.ErrorMessage, next.Retryable = nil, nil, false
		mirror = orders.PayoutMirror{Status: enums.OrderPayoutStatusCompleted, Processed: true, CompletedAt: &now, Submission: &submission}
	case enums.PayoutStatusFailed, enums.PayoutStatusReversed, enums.PayoutStatusCancelled:
		failure := failureOf(update)
		next.ErrorCode = &failure.Code
		next.ErrorMessage = &failure.Message
		next.Retryable = failure.Retryable
		mirror = orders.PayoutMirror{Status: enums.OrderPayoutStatusFailed, Processed: false, Failure: &failure}
		if update.Status == enums.PayoutStatusCancelled {
			mirror.Status = enums.OrderPayoutStatusCancelled
		}
	}

	notified := next.Status.IsTerminal() && next.NotifiedStatus != next.Status
	if notified {
		next.NotifiedStatus = next.Status
		next.NotifiedAt = &now
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.payouts.WithTx(tx).SavePayout(ctx, &next, current.Version); err != nil {
			return err
		}
		if err := s.orders.WithTx(tx).MirrorPayoutStatus(ctx, next.OrderID, mirror); err != nil {
			return err
		}
		if next.Status != enums.PayoutStatusCompleted {
			return nil
		}
		ledgerTx := s.ledger.WithTx(tx)
		recorded, err := ledgerTx.HasEvent(ctx, next.OrderID, enums.LedgerEventTypeVendorPayout)
		if err != nil {
			return err
		}
		if recorded {
			return nil
		}
		payoutID := next.ID
		_, err = ledgerTx.RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:   next.OrderID,
			SellerID:  next.SellerID,
			PayoutID:  &payoutID,
			ActorRole: enums.ActorRoleSystem,
			Type:      enums.LedgerEventTypeVendorPayout,
			Amount:    next.PayoutAmount,
		})
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"from_status": current.Status,
		"to_status":   next.Status,
	}), "payout status reconciled")
	return Outcome{Payout: &next, Changed: true, Conflict: conflict, Notified: notified}, nil
}

// VerifyWebhook checks the HMAC signature of a raw callback body.
func (s *service) VerifyWebhook(raw []byte, signature string) error {
	if !payoutgateway.VerifySignature(raw, signature, s.webhookSecret) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

// HandleWebhook verifies and applies a provider callback. Unknown transfers
// are acknowledged so the provider stops redelivering them.
func (s *service) HandleWebhook(ctx context.Context, raw []byte, signature string) (WebhookResult, error) {
	if err := s.VerifyWebhook(raw, signature); err != nil {
		return WebhookResult{}, err
	}
	payload, err := decodeWebhook(raw)
	if err != nil {
		return WebhookResult{}, err
	}

	var result WebhookResult
	var errs error
	for _, event := range payload.events() {
		update := event.update(SourceWebhook)
		logCtx := s.logg.WithField(ctx, "transfer_id", update.TransferID)
		payout, err := s.payouts.FindPayoutByTransferID(ctx, update.TransferID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				s.logg.Warn(logCtx, "webhook for unknown transfer acknowledged")
				result.Unknown++
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		outcome, err := s.ApplyTransferStatus(ctx, payout, update)
		if err != nil {
			s.logg.Error(logCtx, "apply webhook status", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if outcome.Changed {
			result.Applied++
		} else {
			result.Unchanged++
		}
	}
	return result, errs
}

// PollPending asks the provider about every in-flight payout.
func (s *service) PollPending(ctx context.Context) (PollSummary, error) {
	payouts, err := s.payouts.ListInFlight(ctx, s.batchSize)
	if err != nil {
		return PollSummary{}, err
	}
	var summary PollSummary
	var errs error
	for i := range payouts {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		payout := &payouts[i]
		summary.Checked++
		logCtx := s.logg.WithPayoutID(ctx, payout.ID.String())

		status, err := s.provider.GetTransferStatus(ctx, payout.TransferID)
		if perr, ok := payoutgateway.AsProviderError(err); ok && perr.StatusCode == http.StatusNotFound && payout.Status == enums.PayoutStatusPending {
			s.logg.Debug(logCtx, "pending payout not yet known to provider")
			continue
		}
		if err != nil {
			summary.Failed++
			s.logg.Error(s.logg.WithField(logCtx, "transfer_id", payout.TransferID), "read transfer status", err)
			errs = multierr.Append(errs, err)
			continue
		}
		outcome, err := s.ApplyTransferStatus(ctx, payout, StatusUpdate{
			TransferID:         payout.TransferID,
			ProviderTransferID: status.ProviderTransferID,
			RawStatus:          status.RawStatus,
			Status:             status.Status,
			StatusCode:         status.StatusCode,
			Description:        status.StatusDescription,
			UTR:                status.UTR,
			Source:             SourcePoll,
		})
		if err != nil {
			summary.Failed++
			errs = multierr.Append(errs, err)
			continue
		}
		if outcome.Changed {
			summary.Changed++
		}
	}
	return summary, errs
}

// RetryFailed resubmits failed payouts that may still succeed, and pending
// payouts whose submitter never recorded an outcome.
func (s *service) RetryFailed(ctx context.Context) (RetrySummary, error) {
	payouts, err := s.payouts.ListRetryable(ctx, s.maxAttempts, s.now().Add(-s.pendingGrace), s.batchSize)
	if err != nil {
		return RetrySummary{}, err
	}
	summary := RetrySummary{Selected: len(payouts)}
	var errs error
	for _, payout := range payouts {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		retried, err := s.settlement.RetryPayout(ctx, payout.ID)
		if err != nil {
			summary.Failed++
			if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				errs = multierr.Append(errs, err)
			}
			s.logg.Warn(s.logg.WithFields(s.logg.WithPayoutID(ctx, payout.ID.String()), map[string]any{
				"error": err.Error(),
			}), "payout retry skipped")
			continue
		}
		if retried.Status == enums.PayoutStatusFailed {
			summary.Failed++
			continue
		}
		summary.Accepted++
	}
	return summary, errs
}

func (s *service) notifyTerminal(ctx context.Context, payout *models.Payout) {
	eventType := notify.EventPayoutFailed
	switch payout.Status {
	case enums.PayoutStatusCompleted:
		eventType = notify.EventPayoutCompleted
	case enums.PayoutStatusReversed:
		eventType = notify.EventPayoutReversed
	}
	payoutID := payout.ID
	occurred := s.now()
	if payout.NotifiedAt != nil {
		occurred = *payout.NotifiedAt
	}
	_ = s.notifier.Notify(ctx, notify.Event{
		Type:       eventType,
		OrderID:    payout.OrderID,
		SellerID:   payout.SellerID,
		PayoutID:   &payoutID,
		Status:     string(payout.Status),
		Amount:     payout.PayoutAmount.StringFixed(2),
		OccurredAt: occurred,
	})
}

func failureOf(update StatusUpdate) orders.PayoutFailure {
	code := strings.TrimSpace(update.StatusCode)
	if code == "" {
		code = strings.ToUpper(strings.TrimSpace(update.RawStatus))
	}
	if update.Status == enums.PayoutStatusReversed {
		code = codeReversed
	}
	message := update.Description
	if message == "" {
		message = "provider reported " + strings.ToLower(string(update.Status))
	}
	return orders.PayoutFailure{
		Code:      code,
		Message:   message,
		Retryable: update.Status == enums.PayoutStatusFailed && payoutgateway.IsRetryableCode(code),
	}
}
