// Package settlement turns eligible orders into provider transfers, one batch
// per seller per run.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/commission"
	"github.com/angelmondragon/marketplace-payouts/internal/eligibility"
	"github.com/angelmondragon/marketplace-payouts/internal/notify"
	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/metrics"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SourceDaily  = "daily"
	SourceManual = "manual"

	SellerStatusSubmitted = "submitted"
	SellerStatusSkipped   = "skipped"
	SellerStatusFailed    = "failed"

	pathBatch = "batch"
	pathRetry = "retry"

	codeSubmitTimeout = "SUBMIT_TIMEOUT"
)

// Batches only pick up orders that have never reached the provider. Failed
// payouts go through RetryPayout.
var batchCandidateStatuses = []enums.OrderPayoutStatus{
	enums.OrderPayoutStatusNotEligible,
	enums.OrderPayoutStatusEligible,
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BeneficiaryResolver returns the seller's active beneficiary.
type BeneficiaryResolver interface {
	EnsureVerified(ctx context.Context, sellerID uuid.UUID) (*models.Beneficiary, error)
}

type Service interface {
	ProcessManualBatchPayout(ctx context.Context, filters Filters) (Summary, error)
	ProcessDailyBatchPayouts(ctx context.Context, date time.Time) (Summary, error)
	RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	RecomputeBatch(ctx context.Context, batchID uuid.UUID) (*models.PayoutBatch, error)
}

// Filters narrow a manual run. Force settles sellers whose beneficiary is
// not verified yet.
type Filters struct {
	SellerIDs   []uuid.UUID
	OrderIDs    []uuid.UUID
	Force       bool
	InitiatedBy *uuid.UUID
}

// Summary reports a run. Partial success is normal.
type Summary struct {
	Source    string         `json:"source"`
	BatchDate time.Time      `json:"batch_date"`
	Eligible  int            `json:"eligible"`
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Sellers   []SellerResult `json:"sellers"`
}

type SellerResult struct {
	SellerID  uuid.UUID       `json:"seller_id"`
	BatchID   *uuid.UUID      `json:"batch_id,omitempty"`
	Status    string          `json:"status"`
	Orders    int             `json:"orders"`
	Processed int             `json:"processed"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
}

type ServiceParams struct {
	Orders         orders.Repository
	Payouts        Repository
	Tx             txRunner
	Evaluator      *eligibility.Evaluator
	Beneficiaries  BeneficiaryResolver
	Provider       payoutgateway.Client
	Notifier       notify.Notifier
	Metrics        *metrics.SettlementMetrics
	Logger         *logger.Logger
	TransferPrefix string
	MaxAttempts    int
	SubmitTimeout  time.Duration
	PendingGrace   time.Duration
	Now            func() time.Time
}

type service struct {
	orders         orders.Repository
	payouts        Repository
	tx             txRunner
	evaluator      *eligibility.Evaluator
	beneficiaries  BeneficiaryResolver
	provider       payoutgateway.Client
	notifier       notify.Notifier
	metrics        *metrics.SettlementMetrics
	logg           *logger.Logger
	transferPrefix string
	maxAttempts    int
	submitTimeout  time.Duration
	pendingGrace   time.Duration
	now            func() time.Time
}

// DefaultPendingGrace is how long a staged payout may stay pending before
// the retry sweep treats its submitter as gone.
const DefaultPendingGrace = 15 * time.Minute

type candidate struct {
	order     models.Order
	breakdown commission.Breakdown
}

type runInput struct {
	source  string
	date    time.Time
	filters Filters
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Payouts == nil:
		return nil, fmt.Errorf("payout repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Evaluator == nil:
		return nil, fmt.Errorf("eligibility evaluator required")
	case params.Beneficiaries == nil:
		return nil, fmt.Errorf("beneficiary resolver required")
	case params.Provider == nil:
		return nil, fmt.Errorf("payout provider required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	timeout := params.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	grace := params.PendingGrace
	if grace <= 0 {
		grace = DefaultPendingGrace
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		orders:         params.Orders,
		payouts:        params.Payouts,
		tx:             params.Tx,
		evaluator:      params.Evaluator,
		beneficiaries:  params.Beneficiaries,
		provider:       params.Provider,
		notifier:       notify.NewSafe(params.Notifier, params.Logger),
		metrics:        params.Metrics,
		logg:           params.Logger,
		transferPrefix: params.TransferPrefix,
		maxAttempts:    maxAttempts,
		submitTimeout:  timeout,
		pendingGrace:   grace,
		now:            now,
	}, nil
}

// TransferID is the provider idempotency key for an order. It never changes
// across retries.
func TransferID(prefix string, orderID uuid.UUID) string {
	return prefix + orderID.String()
}

func (s *service) ProcessManualBatchPayout(ctx context.Context, filters Filters) (Summary, error) {
	return s.run(ctx, runInput{source: SourceManual, date: s.now(), filters: filters})
}

func (s *service) ProcessDailyBatchPayouts(ctx context.Context, date time.Time) (Summary, error) {
	if date.IsZero() {
		date = s.now()
	}
	return s.run(ctx, runInput{source: SourceDaily, date: date})
}

func (s *service) run(ctx context.Context, in runInput) (Summary, error) {
	now := s.now()
	summary := Summary{
		Source:    in.source,
		BatchDate: time.Date(in.date.Year(), in.date.Month(), in.date.Day(), 0, 0, 0, 0, in.date.Location()),
		Sellers:   []SellerResult{},
	}

	list, err := s.orders.ListPayoutCandidates(ctx, orders.CandidateFilter{
		SellerIDs:      in.filters.SellerIDs,
		OrderIDs:       in.filters.OrderIDs,
		PayoutStatuses: batchCandidateStatuses,
	})
	if err != nil {
		return summary, err
	}

	groups := make(map[uuid.UUID][]candidate)
	for _, order := range list {
		result := s.evaluator.Evaluate(order, now)
		if !result.Eligible {
			summary.Skipped++
			continue
		}
		summary.Eligible++
		groups[order.SellerID] = append(groups[order.SellerID], candidate{order: order, breakdown: result.Breakdown})
	}

	sellerIDs := make([]uuid.UUID, 0, len(groups))
	for sellerID := range groups {
		sellerIDs = append(sellerIDs, sellerID)
	}
	sort.Slice(sellerIDs, func(i, j int) bool { return sellerIDs[i].String() < sellerIDs[j].String() })

	for _, sellerID := range sellerIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result := s.settleSeller(ctx, in, sellerID, groups[sellerID], now)
		summary.Processed += result.Processed
		summary.Skipped += result.Skipped
		summary.Failed += result.Failed
		summary.Sellers = append(summary.Sellers, result)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"source":    summary.Source,
		"eligible":  summary.Eligible,
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"sellers":   len(summary.Sellers),
	})
	s.logg.Info(logCtx, "payout batch run finished")
	return summary, nil
}

func (s *service) settleSeller(ctx context.Context, in runInput, sellerID uuid.UUID, group []candidate, now time.Time) SellerResult {
	result := SellerResult{SellerID: sellerID, Orders: len(group), Amount: decimal.Zero}
	logCtx := s.logg.WithSellerID(ctx, sellerID.String())

	beneficiary, err := s.beneficiaries.EnsureVerified(ctx, sellerID)
	if err != nil {
		s.logg.Error(logCtx, "resolve beneficiary", err)
		return skipped(result, "beneficiary unavailable")
	}
	if !beneficiary.IsVerified() && !in.filters.Force {
		s.logg.Warn(s.logg.WithField(logCtx, "beneficiary_status", beneficiary.Status), "seller skipped, beneficiary not verified")
		return skipped(result, "beneficiary not verified")
	}

	batch := &models.PayoutBatch{
		ID:          uuid.New(),
		BatchDate:   time.Date(in.date.Year(), in.date.Month(), in.date.Day(), 0, 0, 0, 0, in.date.Location()),
		Source:      in.source,
		InitiatedBy: in.filters.InitiatedBy,
		SellerID:    &sellerID,
		Status:      enums.PayoutBatchStatusPending,
	}
	var staged []*models.Payout
	var superseded []uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		staged, superseded = nil, nil
		repo := s.payouts.WithTx(tx)
		for _, c := range group {
			payout, previous, err := s.stagePayout(ctx, repo, batch.ID, beneficiary.BeneficiaryID, c, now)
			if err != nil {
				return err
			}
			if payout == nil {
				continue
			}
			staged = append(staged, payout)
			if previous != nil && *previous != batch.ID {
				superseded = append(superseded, *previous)
			}
		}
		if len(staged) == 0 {
			return nil
		}
		batch.TotalPayouts = len(staged)
		batch.PendingPayouts = len(staged)
		batch.TotalAmount = sumPayouts(staged)
		return repo.CreateBatch(ctx, batch)
	})
	if err != nil {
		s.logg.Error(logCtx, "persist payout intent", err)
		result.Status = SellerStatusFailed
		result.Failed = len(group)
		result.Reason = "could not persist payouts"
		return result
	}
	result.Skipped = len(group) - len(staged)
	if len(staged) == 0 {
		return skipped(result, "no payouts to submit")
	}
	batchID := batch.ID
	result.BatchID = &batchID
	result.Amount = batch.TotalAmount
	logCtx = s.logg.WithBatchID(logCtx, batchID.String())

	transfers := make([]payoutgateway.Transfer, 0, len(staged))
	for _, payout := range staged {
		transfers = append(transfers, transferFor(payout))
	}
	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	res, submitErr := s.provider.CreateBatchTransfer(submitCtx, batchID.String(), transfers)
	cancel()

	if submitErr != nil && !isDuplicate(submitErr) {
		failure := failureFrom(submitErr)
		s.logg.Error(s.logg.WithField(logCtx, "error_code", failure.Code), "batch submission failed", submitErr)
		if err := s.markFailed(ctx, batch, staged, failure, now); err != nil {
			s.logg.Error(logCtx, "record batch failure", err)
		}
		s.metrics.ObserveFailed(pathBatch, len(staged), failure.Retryable)
		result.Status = SellerStatusFailed
		result.Failed = len(staged)
		result.Reason = failure.Message
	} else {
		if submitErr != nil {
			s.logg.Warn(logCtx, "provider already holds this batch, treating as accepted")
		}
		if err := s.markAccepted(ctx, batch, staged, res.ProviderBatchID, providerIDs(res.Transfers), res.RawStatus, now); err != nil {
			s.logg.Error(logCtx, "record batch acceptance", err)
			result.Status = SellerStatusFailed
			result.Failed = len(staged)
			result.Reason = "accepted by provider but not recorded"
		} else {
			s.metrics.ObserveSubmitted(pathBatch, len(staged), batch.TotalAmount.InexactFloat64())
			result.Status = SellerStatusSubmitted
			result.Processed = len(staged)
			s.notifyInitiated(ctx, staged, now)
		}
	}

	if _, err := s.RecomputeBatch(ctx, batchID); err != nil {
		s.logg.Error(logCtx, "recompute batch", err)
	}
	s.recomputeSuperseded(logCtx, superseded)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"status":    result.Status,
		"processed": result.Processed,
		"failed":    result.Failed,
	}), "seller batch settled")
	return result
}

// stagePayout creates the pending payout for an order, or reuses the row
// already holding its transfer ID and reports the batch it was moved out of.
// Rows the provider already has are left alone and come back nil.
func (s *service) stagePayout(ctx context.Context, repo Repository, batchID uuid.UUID, beneficiaryID string, c candidate, now time.Time) (*models.Payout, *uuid.UUID, error) {
	transferID := TransferID(s.transferPrefix, c.order.ID)
	existing, err := repo.FindPayoutByTransferID(ctx, transferID)
	switch {
	case err == nil:
		switch {
		case existing.Status == enums.PayoutStatusFailed && existing.Retryable:
		case existing.Status == enums.PayoutStatusPending:
		default:
			return nil, nil, nil
		}
		if existing.ProcessingAttempts >= s.maxAttempts {
			return nil, nil, nil
		}
		previous := existing.BatchID
		expected := existing.Version
		existing.BatchID = &batchID
		existing.BeneficiaryID = beneficiaryID
		applyBreakdown(existing, c.breakdown)
		existing.Status = enums.PayoutStatusPending
		existing.ProcessingAttempts++
		existing.StagedAt = &now
		clearFailure(existing)
		if err := repo.SavePayout(ctx, existing, expected); err != nil {
			return nil, nil, err
		}
		return existing, previous, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		payout := &models.Payout{
			OrderID:            c.order.ID,
			SellerID:           c.order.SellerID,
			BeneficiaryID:      beneficiaryID,
			TransferID:         transferID,
			Status:             enums.PayoutStatusPending,
			BatchID:            &batchID,
			ProcessingAttempts: 1,
			StagedAt:           &now,
		}
		applyBreakdown(payout, c.breakdown)
		if err := repo.CreatePayout(ctx, payout); err != nil {
			return nil, nil, err
		}
		return payout, nil, nil
	default:
		return nil, nil, err
	}
}

// recomputeSuperseded refreshes batches whose payouts were restaged into a
// newer batch. A batch left with no payouts ends up superseded.
func (s *service) recomputeSuperseded(ctx context.Context, batchIDs []uuid.UUID) {
	seen := make(map[uuid.UUID]struct{}, len(batchIDs))
	for _, id := range batchIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.RecomputeBatch(ctx, id); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Error(s.logg.WithBatchID(ctx, id.String()), "recompute superseded batch", err)
		}
	}
}

// RetryPayout resubmits one failed payout under its original transfer ID. A
// payout left pending past the grace period is resumed without spending
// another attempt.
func (s *service) RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	payout, err := s.payouts.FindPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resume := payout.Status == enums.PayoutStatusPending
	switch {
	case resume:
		if payout.StagedAt != nil && now.Sub(*payout.StagedAt) < s.pendingGrace {
			return nil, pkgerrors.StateConflict("pending payout past grace period", s.pendingGrace.String(), now.Sub(*payout.StagedAt).String())
		}
	case payout.Status != enums.PayoutStatusFailed || !payout.Retryable:
		return nil, pkgerrors.StateConflict("payout failed and retryable", enums.PayoutStatusFailed, payout.Status)
	case payout.ProcessingAttempts >= s.maxAttempts:
		return nil, pkgerrors.StateConflict("attempts below maximum", s.maxAttempts, payout.ProcessingAttempts)
	}

	order, err := s.orders.FindByID(ctx, payout.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Payout.Processed {
		return nil, pkgerrors.StateConflict("order payout not processed", false, true)
	}
	evaluation := s.evaluator.Evaluate(*order, now)
	if !evaluation.Eligible {
		return nil, pkgerrors.StateConflict("order eligible for payout", true, evaluation.Reasons)
	}
	beneficiary, err := s.beneficiaries.EnsureVerified(ctx, payout.SellerID)
	if err != nil {
		return nil, err
	}
	if !beneficiary.IsVerified() {
		return nil, pkgerrors.StateConflict("beneficiary verified", enums.BeneficiaryStatusVerified, beneficiary.Status)
	}

	logCtx := s.logg.WithPayoutID(s.logg.WithOrderID(ctx, order.ID.String()), payout.ID.String())
	expected := payout.Version
	if !resume {
		payout.ProcessingAttempts++
	}
	payout.Status = enums.PayoutStatusPending
	payout.StagedAt = &now
	payout.BeneficiaryID = beneficiary.BeneficiaryID
	applyBreakdown(payout, evaluation.Breakdown)
	clearFailure(payout)
	if err := s.payouts.SavePayout(ctx, payout, expected); err != nil {
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	res, submitErr := s.provider.CreateTransfer(submitCtx, transferFor(payout))
	cancel()

	staged := []*models.Payout{payout}
	if submitErr != nil && !isDuplicate(submitErr) {
		failure := failureFrom(submitErr)
		s.logg.Error(s.logg.WithFields(logCtx, map[string]any{
			"error_code": failure.Code,
			"attempts":   payout.ProcessingAttempts,
		}), "payout retry failed", submitErr)
		if err := s.markFailed(ctx, nil, staged, failure, now); err != nil {
			return nil, err
		}
		s.metrics.ObserveFailed(pathRetry, 1, failure.Retryable)
	} else {
		ids := map[string]string{}
		if res.ProviderTransferID != "" {
			ids[res.TransferID] = res.ProviderTransferID
		}
		if err := s.markAccepted(ctx, nil, staged, "", ids, res.RawStatus, now); err != nil {
			return nil, err
		}
		s.metrics.ObserveSubmitted(pathRetry, 1, payout.PayoutAmount.InexactFloat64())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"attempts": payout.ProcessingAttempts,
			"resumed":  resume,
		}), "payout retry accepted")
		s.notifyInitiated(ctx, staged, now)
	}

	if payout.BatchID != nil {
		if _, err := s.RecomputeBatch(ctx, *payout.BatchID); err != nil {
			s.logg.Error(logCtx, "recompute batch", err)
		}
	}
	return payout, nil
}

// RecomputeBatch derives the batch counters and status from its payouts.
func (s *service) RecomputeBatch(ctx context.Context, batchID uuid.UUID) (*models.PayoutBatch, error) {
	batch, err := s.payouts.FindBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	payouts, err := s.payouts.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	Summarize(batch, payouts, s.now())
	if err := s.payouts.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Summarize recomputes the aggregate fields of batch in place. A batch whose
// payouts were all restaged elsewhere is superseded.
func Summarize(batch *models.PayoutBatch, payouts []models.Payout, now time.Time) {
	if len(payouts) == 0 {
		batch.TotalPayouts = 0
		batch.TotalAmount = decimal.Zero
		batch.SuccessfulPayouts = 0
		batch.FailedPayouts = 0
		batch.PendingPayouts = 0
		batch.Status = enums.PayoutBatchStatusSuperseded
		if batch.CompletedAt == nil {
			batch.CompletedAt = &now
		}
		return
	}
	var succeeded, failed, unsent, inFlight int
	total := decimal.Zero
	for _, payout := range payouts {
		total = total.Add(payout.PayoutAmount)
		switch payout.Status {
		case enums.PayoutStatusCompleted:
			succeeded++
		case enums.PayoutStatusFailed, enums.PayoutStatusCancelled, enums.PayoutStatusReversed:
			failed++
		case enums.PayoutStatusPending:
			unsent++
		default:
			inFlight++
		}
	}
	pending := unsent + inFlight
	batch.TotalPayouts = len(payouts)
	batch.TotalAmount = commission.Round(total)
	batch.SuccessfulPayouts = succeeded
	batch.FailedPayouts = failed
	batch.PendingPayouts = pending

	switch {
	case pending == 0 && failed == 0:
		batch.Status = enums.PayoutBatchStatusCompleted
	case pending == 0:
		batch.Status = enums.PayoutBatchStatusPartiallyFailed
	case inFlight == 0 && failed == 0 && batch.SubmittedAt == nil:
		batch.Status = enums.PayoutBatchStatusPending
	default:
		batch.Status = enums.PayoutBatchStatusInitiated
	}
	if pending == 0 && batch.CompletedAt == nil {
		batch.CompletedAt = &now
	}
	if pending > 0 {
		batch.CompletedAt = nil
	}
}

// markAccepted moves staged payouts to initiated and snapshots the transfer
// onto each order in one transaction. A nil batch means the single-order path.
func (s *service) markAccepted(ctx context.Context, batch *models.PayoutBatch, staged []*models.Payout, providerBatchID string, ids map[string]string, raw string, now time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payoutRepo := s.payouts.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		for _, payout := range staged {
			expected := payout.Version
			payout.Status = enums.PayoutStatusInitiated
			payout.InitiatedAt = &now
			payout.LastCheckedAt = &now
			if raw != "" {
				rawStatus := raw
				payout.ProviderStatus = &rawStatus
			}
			if id, ok := ids[payout.TransferID]; ok {
				providerID := id
				payout.ProviderTransferID = &providerID
			}
			if err := payoutRepo.SavePayout(ctx, payout, expected); err != nil {
				return err
			}
			updated, err := orderRepo.MarkPayoutSubmitted(ctx, payout.OrderID, SubmissionOf(payout))
			if err != nil {
				return err
			}
			if !updated {
				s.logg.Warn(s.logg.WithOrderID(ctx, payout.OrderID.String()), "order already marked processed")
			}
		}
		if batch == nil {
			return nil
		}
		batch.Status = enums.PayoutBatchStatusInitiated
		batch.SubmittedAt = &now
		if providerBatchID != "" {
			batch.ProviderBatchID = &providerBatchID
		}
		return payoutRepo.SaveBatch(ctx, batch)
	})
}

func (s *service) markFailed(ctx context.Context, batch *models.PayoutBatch, staged []*models.Payout, failure orders.PayoutFailure, now time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payoutRepo := s.payouts.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		for _, payout := range staged {
			expected := payout.Version
			code, message := failure.Code, failure.Message
			payout.Status = enums.PayoutStatusFailed
			payout.ErrorCode = &code
			payout.ErrorMessage = &message
			payout.Retryable = failure.Retryable
			payout.LastCheckedAt = &now
			if err := payoutRepo.SavePayout(ctx, payout, expected); err != nil {
				return err
			}
			if _, err := orderRepo.MarkPayoutFailed(ctx, payout.OrderID, failure); err != nil {
				return err
			}
		}
		if batch == nil {
			return nil
		}
		message := failure.Message
		batch.ErrorMessage = &message
		return payoutRepo.SaveBatch(ctx, batch)
	})
}

func (s *service) notifyInitiated(ctx context.Context, staged []*models.Payout, now time.Time) {
	for _, payout := range staged {
		payoutID := payout.ID
		_ = s.notifier.Notify(ctx, notify.Event{
			Type:       notify.EventPayoutInitiated,
			OrderID:    payout.OrderID,
			SellerID:   payout.SellerID,
			PayoutID:   &payoutID,
			Status:     string(payout.Status),
			Amount:     payout.PayoutAmount.StringFixed(2),
			OccurredAt: now,
		})
	}
}

func failureFrom(err error) orders.PayoutFailure {
	if perr, ok := payoutgateway.AsProviderError(err); ok {
		return orders.PayoutFailure{Code: perr.Code, Message: perr.Message, Retryable: perr.Retryable()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return orders.PayoutFailure{Code: codeSubmitTimeout, Message: "provider did not answer in time", Retryable: true}
	}
	return orders.PayoutFailure{
		Code:      payoutgateway.CodeNetworkError,
		Message:   err.Error(),
		Retryable: payoutgateway.IsRetryable(err),
	}
}

func isDuplicate(err error) bool {
	perr, ok := payoutgateway.AsProviderError(err)
	return ok && perr.IsDuplicate()
}

func transferFor(payout *models.Payout) payoutgateway.Transfer {
	return payoutgateway.Transfer{
		TransferID:    payout.TransferID,
		BeneficiaryID: payout.BeneficiaryID,
		Amount:        payout.PayoutAmount,
		Remarks:       "Order settlement " + payout.OrderID.String(),
	}
}

func providerIDs(results []payoutgateway.TransferResult) map[string]string {
	ids := make(map[string]string, len(results))
	for _, result := range results {
		if result.ProviderTransferID != "" {
			ids[result.TransferID] = result.ProviderTransferID
		}
	}
	return ids
}

func applyBreakdown(payout *models.Payout, breakdown commission.Breakdown) {
	payout.OrderAmount = breakdown.OrderAmount
	payout.PlatformCommission = breakdown.PlatformCommission
	payout.GSTAmount = breakdown.GST
	payout.TotalCommission = breakdown.TotalCommission
	payout.PayoutAmount = breakdown.SellerAmount
}

// SubmissionOf links an order to the transfer recorded on its payout.
func SubmissionOf(payout *models.Payout) orders.PayoutSubmission {
	return orders.PayoutSubmission{
		PayoutRef:  payout.ID,
		TransferID: payout.TransferID,
		BatchID:    payout.BatchID,
		Breakdown:  breakdownOf(payout),
	}
}

func breakdownOf(payout *models.Payout) commission.Breakdown {
	return commission.Breakdown{
		OrderAmount:        payout.OrderAmount,
		PlatformCommission: payout.PlatformCommission,
		GST:                payout.GSTAmount,
		TotalCommission:    payout.TotalCommission,
		SellerAmount:       payout.PayoutAmount,
	}
}

func clearFailure(payout *models.Payout) {
	payout.ErrorCode = nil
	payout.ErrorMessage = nil
	payout.Retryable = false
}

func sumPayouts(payouts []*models.Payout) decimal.Decimal {
	total := decimal.Zero
	for _, payout := range payouts {
		total = total.Add(payout.PayoutAmount)
	}
	return total
}

func skipped(result SellerResult, reason string) SellerResult {
	result.Status = SellerStatusSkipped
	result.Reason = reason
	result.Skipped = result.Orders - result.Processed - result.Failed
	return result
}
