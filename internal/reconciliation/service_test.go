package reconciliation

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/beneficiaries"
	"github.com/angelmondragon/marketplace-payouts/internal/commission"
	"github.com/angelmondragon/marketplace-payouts/internal/eligibility"
	"github.com/angelmondragon/marketplace-payouts/internal/ledger"
	"github.com/angelmondragon/marketplace-payouts/internal/notify"
	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/internal/settlement"
	"github.com/angelmondragon/marketplace-payouts/internal/testsupport"
	"github.com/angelmondragon/marketplace-payouts/pkg/db"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "whsec_test"

var now = time.Date(2026, 6, 20, 3, 0, 0, 0, time.UTC)

type fixture struct {
	svc        Service
	settlement settlement.Service
	conn       *gorm.DB
	orders     orders.Repository
	payouts    settlement.Repository
	ledger     ledger.Repository
	gateway    *testsupport.FakeGateway
	notifier   *testsupport.RecordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testsupport.SQLite(t)
	logg := logger.New(logger.Options{ServiceName: "reconciliation-test", Output: &bytes.Buffer{}})
	clock := func() time.Time { return now }

	engine, err := commission.NewEngine(decimal.NewFromInt(8), decimal.NewFromInt(18))
	require.NoError(t, err)
	gateway := &testsupport.FakeGateway{CreateStatus: enums.BeneficiaryStatusVerified}
	registry, err := beneficiaries.NewService(beneficiaries.ServiceParams{
		Repo:     beneficiaries.NewRepository(conn),
		Provider: gateway,
		Logger:   logg,
		Now:      clock,
	})
	require.NoError(t, err)

	orderRepo := orders.NewRepository(conn)
	payoutRepo := settlement.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	require.NoError(t, err)
	notifier := &testsupport.RecordingNotifier{}
	settler, err := settlement.NewService(settlement.ServiceParams{
		Orders:         orderRepo,
		Payouts:        payoutRepo,
		Tx:             db.Wrap(conn),
		Evaluator:      eligibility.NewEvaluator(engine, decimal.NewFromInt(100), 72*time.Hour),
		Beneficiaries:  registry,
		Provider:       gateway,
		Notifier:       notifier,
		Logger:         logg,
		TransferPrefix: "ORDER_",
		MaxAttempts:    3,
		Now:            clock,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Orders:        orderRepo,
		Payouts:       payoutRepo,
		Settlement:    settler,
		Tx:            db.Wrap(conn),
		Ledger:        ledgerSvc,
		Provider:      gateway,
		Notifier:      notifier,
		Logger:        logg,
		WebhookSecret: secret,
		MaxAttempts:   3,
		Now:           clock,
	})
	require.NoError(t, err)
	return &fixture{
		svc:        svc,
		settlement: settler,
		conn:       conn,
		orders:     orderRepo,
		payouts:    payoutRepo,
		ledger:     ledgerRepo,
		gateway:    gateway,
		notifier:   notifier,
	}
}

// submitted settles n orders for one seller and returns their payouts.
func (f *fixture) submitted(t *testing.T, n int) []*models.Payout {
	t.Helper()
	sellerID := uuid.New()
	testsupport.BankAccount(t, f.conn, sellerID)
	var ids []uuid.UUID
	for i := 0; i < n; i++ {
		order := testsupport.DeliveredOrder(t, f.conn, sellerID, "1000", now.Add(-96*time.Hour))
		ids = append(ids, order.ID)
	}
	summary, err := f.settlement.ProcessManualBatchPayout(context.Background(), settlement.Filters{OrderIDs: ids})
	require.NoError(t, err)
	require.Equal(t, n, summary.Processed)

	payouts := make([]*models.Payout, 0, n)
	for _, id := range ids {
		payout, err := f.payouts.FindPayoutByTransferID(context.Background(), settlement.TransferID("ORDER_", id))
		require.NoError(t, err)
		payouts = append(payouts, payout)
	}
	return payouts
}

func signed(t *testing.T, body any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw, payoutgateway.Sign(raw, secret)
}

func TestWebhookCompletionIsAppliedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payout := f.submitted(t, 1)[0]
	raw, sig := signed(t, map[string]string{
		"transfer_id":  payout.TransferID,
		"status":       "SUCCESS",
		"transfer_utr": "UTR123456",
	})

	result, err := f.svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookResult{Applied: 1}, result)

	result, err = f.svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookResult{Unchanged: 1}, result)

	stored, err := f.payouts.FindPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted, stored.Status)
	assert.Equal(t, "UTR123456", *stored.TransferUTR)
	assert.Equal(t, enums.PayoutStatusCompleted, stored.NotifiedStatus)
	require.NotNil(t, stored.CompletedAt)

	order, err := f.orders.FindByID(ctx, payout.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPayoutStatusCompleted, order.Payout.Status)
	assert.True(t, order.Payout.Processed)

	events, err := f.ledger.ListByOrderID(ctx, payout.OrderID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.LedgerEventTypeVendorPayout, events[0].Type)
	assert.True(t, events[0].Amount.Equal(stored.PayoutAmount))

	assert.Len(t, f.notifier.OfType(notify.EventPayoutCompleted), 1)

	batch, err := f.payouts.FindBatch(ctx, *stored.BatchID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutBatchStatusCompleted, batch.Status)
	assert.Equal(t, 1, batch.SuccessfulPayouts)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	payout := f.submitted(t, 1)[0]
	raw, _ := signed(t, map[string]string{"transfer_id": payout.TransferID, "status": "SUCCESS"})

	_, err := f.svc.HandleWebhook(context.Background(), raw, payoutgateway.Sign(raw, "other"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	stored, err := f.payouts.FindPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusInitiated, stored.Status)
}

func TestWebhookUnknownTransferIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	raw, sig := signed(t, map[string]string{"transfer_id": "ORDER_missing", "status": "SUCCESS"})

	result, err := f.svc.HandleWebhook(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unknown)
}

func TestBatchWebhookWithFailureThenRetrySweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payouts := f.submitted(t, 2)
	raw, sig := signed(t, map[string]any{
		"batch_id": payouts[0].BatchID.String(),
		"transfers": []map[string]string{
			{"transfer_id": payouts[0].TransferID, "status": "SUCCESS", "transfer_utr": "UTR1"},
			{"transfer_id": payouts[1].TransferID, "status": "FAILED", "status_code": "BANK_GATEWAY_ERROR", "status_description": "bank offline"},
		},
	})

	result, err := f.svc.HandleWebhook(ctx, raw, sig)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)

	failed, err := f.payouts.FindPayout(ctx, payouts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, failed.Status)
	assert.True(t, failed.Retryable)
	order, err := f.orders.FindByID(ctx, failed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPayoutStatusFailed, order.Payout.Status)
	assert.False(t, order.Payout.Processed)

	batch, err := f.payouts.FindBatch(ctx, *failed.BatchID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutBatchStatusPartiallyFailed, batch.Status)

	summary, err := f.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Selected: 1, Accepted: 1}, summary)

	retried, err := f.payouts.FindPayout(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusInitiated, retried.Status)
	assert.Equal(t, 2, retried.ProcessingAttempts)

	var count int64
	require.NoError(t, f.conn.Model(&models.Payout{}).Where("order_id = ?", failed.OrderID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.notifier.OfType(notify.EventPayoutFailed), 1)
}

func TestConflictingTerminalStatusIsApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payout := f.submitted(t, 1)[0]

	outcome, err := f.svc.ApplyTransferStatus(ctx, payout, StatusUpdate{RawStatus: "SUCCESS", Source: SourcePoll})
	require.NoError(t, err)
	assert.False(t, outcome.Conflict)

	outcome, err = f.svc.ApplyTransferStatus(ctx, outcome.Payout, StatusUpdate{RawStatus: "REVERSED", Source: SourceWebhook})
	require.NoError(t, err)
	assert.True(t, outcome.Conflict)
	assert.Equal(t, enums.PayoutStatusReversed, outcome.Payout.Status)
	assert.False(t, outcome.Payout.Retryable)

	order, err := f.orders.FindByID(ctx, payout.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPayoutStatusFailed, order.Payout.Status)
	assert.Len(t, f.notifier.OfType(notify.EventPayoutCompleted), 1)
	assert.Len(t, f.notifier.OfType(notify.EventPayoutReversed), 1)

	events, err := f.ledger.ListByOrderID(ctx, payout.OrderID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStaleStatusAfterTerminalIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payout := f.submitted(t, 1)[0]

	done, err := f.svc.ApplyTransferStatus(ctx, payout, StatusUpdate{RawStatus: "SUCCESS"})
	require.NoError(t, err)
	outcome, err := f.svc.ApplyTransferStatus(ctx, done.Payout, StatusUpdate{RawStatus: "PENDING"})
	require.NoError(t, err)
	assert.False(t, outcome.Changed)
	assert.Equal(t, enums.PayoutStatusCompleted, outcome.Payout.Status)
}

func TestApplyReloadsOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payout := f.submitted(t, 1)[0]
	stale := *payout

	_, err := f.svc.ApplyTransferStatus(ctx, payout, StatusUpdate{RawStatus: "PROCESSING"})
	require.NoError(t, err)

	outcome, err := f.svc.ApplyTransferStatus(ctx, &stale, StatusUpdate{RawStatus: "SUCCESS"})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, enums.PayoutStatusCompleted, outcome.Payout.Status)
	assert.Equal(t, stale.Version+2, outcome.Payout.Version)
}

func TestPollPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payouts := f.submitted(t, 2)
	f.gateway.SetTransferStatus(payouts[0].TransferID, "SUCCESS", "UTR9")
	f.gateway.SetTransferStatus(payouts[1].TransferID, "APPROVAL_PENDING", "")

	summary, err := f.svc.PollPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollSummary{Checked: 2, Changed: 2}, summary)

	first, err := f.payouts.FindPayout(ctx, payouts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted, first.Status)
	second, err := f.payouts.FindPayout(ctx, payouts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusApprovalPending, second.Status)

	summary, err = f.svc.PollPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollSummary{Checked: 1}, summary)
}

func TestPollSkipsPayoutsNotYetSubmitted(t *testing.T) {
	f := newFixture(t)
	sellerID := uuid.New()
	require.NoError(t, f.payouts.CreatePayout(context.Background(), &models.Payout{
		OrderID:       uuid.New(),
		SellerID:      sellerID,
		BeneficiaryID: "ben_x",
		TransferID:    "ORDER_unsent",
		Status:        enums.PayoutStatusPending,
	}))

	summary, err := f.svc.PollPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollSummary{Checked: 1}, summary)
}

func TestPollLinksOrderToTransferAcceptedBeforeCrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sellerID := uuid.New()
	order := testsupport.DeliveredOrder(t, f.conn, sellerID, "1000", now.Add(-96*time.Hour))
	batch := &models.PayoutBatch{BatchDate: now, Status: enums.PayoutBatchStatusInitiated}
	require.NoError(t, f.payouts.CreateBatch(ctx, batch))

	// provider accepted the transfer, the acceptance was never written back
	payout := &models.Payout{
		OrderID:            order.ID,
		SellerID:           sellerID,
		BeneficiaryID:      "ben_crash",
		TransferID:         settlement.TransferID("ORDER_", order.ID),
		Status:             enums.PayoutStatusPending,
		BatchID:            &batch.ID,
		ProcessingAttempts: 1,
		OrderAmount:        decimal.RequireFromString("1000"),
		PlatformCommission: decimal.RequireFromString("80"),
		GSTAmount:          decimal.RequireFromString("14.40"),
		TotalCommission:    decimal.RequireFromString("94.40"),
		PayoutAmount:       decimal.RequireFromString("905.60"),
	}
	require.NoError(t, f.payouts.CreatePayout(ctx, payout))
	f.gateway.SetTransferStatus(payout.TransferID, "RECEIVED", "")

	summary, err := f.svc.PollPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollSummary{Checked: 1, Changed: 1}, summary)

	loaded, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPayoutStatusProcessing, loaded.Payout.Status)
	assert.True(t, loaded.Payout.Processed)
	require.NotNil(t, loaded.Payout.PayoutRef)
	assert.Equal(t, payout.ID, *loaded.Payout.PayoutRef)
	require.NotNil(t, loaded.Payout.TransferID)
	assert.Equal(t, payout.TransferID, *loaded.Payout.TransferID)
	require.NotNil(t, loaded.Payout.BatchID)
	assert.Equal(t, batch.ID, *loaded.Payout.BatchID)
	assert.True(t, loaded.Payout.SellerAmount.Equal(decimal.RequireFromString("905.60")))
	assert.True(t, loaded.Payout.TotalCommission.Equal(decimal.RequireFromString("94.40")))

	f.gateway.SetTransferStatus(payout.TransferID, "SUCCESS", "UTR7")
	_, err = f.svc.PollPending(ctx)
	require.NoError(t, err)
	loaded, err = f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPayoutStatusCompleted, loaded.Payout.Status)
	assert.Equal(t, payout.ID, *loaded.Payout.PayoutRef)
}

func TestRetrySweepResubmitsPayoutStrandedInPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sellerID := uuid.New()
	testsupport.BankAccount(t, f.conn, sellerID)
	order := testsupport.DeliveredOrder(t, f.conn, sellerID, "1000", now.Add(-96*time.Hour))
	_, err := f.orders.MarkPayoutFailed(ctx, order.ID, orders.PayoutFailure{Code: "PROVIDER_UNAVAILABLE", Message: "maintenance", Retryable: true})
	require.NoError(t, err)

	// claimed by a retry that never reached the provider
	claimed := now.Add(-time.Hour)
	stranded := &models.Payout{
		OrderID:            order.ID,
		SellerID:           sellerID,
		BeneficiaryID:      "ben_old",
		TransferID:         settlement.TransferID("ORDER_", order.ID),
		Status:             enums.PayoutStatusPending,
		ProcessingAttempts: 2,
		StagedAt:           &claimed,
		OrderAmount:        decimal.RequireFromString("1000"),
		PayoutAmount:       decimal.RequireFromString("905.60"),
	}
	require.NoError(t, f.payouts.CreatePayout(ctx, stranded))

	fresh := now.Add(-time.Minute)
	inProgress := &models.Payout{
		OrderID:       uuid.New(),
		SellerID:      sellerID,
		BeneficiaryID: "ben_old",
		TransferID:    "ORDER_in_progress",
		Status:        enums.PayoutStatusPending,
		StagedAt:      &fresh,
	}
	require.NoError(t, f.payouts.CreatePayout(ctx, inProgress))

	summary, err := f.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Selected: 1, Accepted: 1}, summary)

	retried, err := f.payouts.FindPayout(ctx, stranded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusInitiated, retried.Status)
	assert.Equal(t, 2, retried.ProcessingAttempts)

	submitted := f.gateway.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, stranded.TransferID, submitted[0].TransferID)

	loaded, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Payout.Processed)
	assert.Equal(t, enums.OrderPayoutStatusProcessing, loaded.Payout.Status)

	untouched, err := f.payouts.FindPayout(ctx, inProgress.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPending, untouched.Status)
}
