package orders

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/ledger"
	"github.com/angelmondragon/marketplace-payouts/internal/notify"
	"github.com/angelmondragon/marketplace-payouts/internal/testsupport"
	"github.com/angelmondragon/marketplace-payouts/pkg/db"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type serviceFixture struct {
	svc      Service
	repo     Repository
	ledger   ledger.Repository
	notifier *testsupport.RecordingNotifier
	clock    *time.Time
	conn     *gorm.DB
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	conn := testsupport.SQLite(t)
	repo := NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	require.NoError(t, err)

	clock := baseTime
	notifier := &testsupport.RecordingNotifier{}
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Tx:       db.Wrap(conn),
		Ledger:   ledgerSvc,
		Notifier: notifier,
		Logger:   logger.New(logger.Options{ServiceName: "orders-test", Output: &bytes.Buffer{}}),
		Now:      func() time.Time { return clock },
	})
	require.NoError(t, err)
	return &serviceFixture{svc: svc, repo: repo, ledger: ledgerRepo, notifier: notifier, clock: &clock, conn: conn}
}

func (f *serviceFixture) seed(t *testing.T, method enums.PaymentMethod) models.Order {
	t.Helper()
	order := newTestOrder(t, method)
	require.NoError(t, f.repo.Create(context.Background(), &order))
	return order
}

func (f *serviceFixture) tick(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestService_FullDeliveryFlowCOD(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	order := f.seed(t, enums.PaymentMethodCOD)
	seller := Actor{ID: order.SellerID, Role: enums.ActorRoleSeller}
	agent := Actor{ID: uuid.New(), Role: enums.ActorRoleDeliveryAgent}

	_, err := f.svc.Approve(ctx, order.ID, admin())
	require.NoError(t, err)
	f.tick(time.Minute)
	_, err = f.svc.Advance(ctx, order.ID, seller, enums.FulfillmentStatusProcessing)
	require.NoError(t, err)
	f.tick(time.Minute)
	_, err = f.svc.AssignDeliveryAgent(ctx, order.ID, admin(), agent.ID)
	require.NoError(t, err)
	f.tick(time.Minute)
	_, err = f.svc.AcceptAssignment(ctx, order.ID, agent)
	require.NoError(t, err)
	f.tick(time.Minute)
	_, err = f.svc.CompletePickup(ctx, order.ID, agent, Proof{})
	require.NoError(t, err)
	f.tick(time.Minute)
	_, err = f.svc.MarkLocationReached(ctx, order.ID, agent)
	require.NoError(t, err)

	collected := decimal.RequireFromString("1000")
	f.tick(time.Minute)
	delivered, err := f.svc.CompleteDelivery(ctx, order.ID, agent, DeliveryInput{CollectedAmount: &collected})
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentStatusDelivered, delivered.FulfillmentStatus)
	assert.Equal(t, int64(8), delivered.Version)

	history, err := f.svc.History(ctx, order.ID)
	require.NoError(t, err)
	var path []enums.FulfillmentStatus
	for _, entry := range history {
		path = append(path, entry.ToStatus)
	}
	assert.Equal(t, []enums.FulfillmentStatus{
		enums.FulfillmentStatusProcessing,
		enums.FulfillmentStatusPickupReady,
		enums.FulfillmentStatusOutForDelivery,
		enums.FulfillmentStatusDelivered,
	}, path)

	events, err := f.ledger.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.LedgerEventTypeCashCollected, events[0].Type)
	assert.True(t, events[0].Amount.Equal(collected))

	assert.Len(t, f.notifier.Events(), 7)
	statusEvents := f.notifier.OfType(notify.EventOrderStatusChanged)
	require.NotEmpty(t, statusEvents)
	assert.Equal(t, string(enums.FulfillmentStatusDelivered), statusEvents[len(statusEvents)-1].Status)
}

func TestService_RejectedTransitionChangesNothing(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	order := f.seed(t, enums.PaymentMethodOnline)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("fulfillment_status", enums.FulfillmentStatusProcessing).Error)

	_, err := f.svc.AssignDeliveryAgent(ctx, order.ID, admin(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	loaded, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.AssignmentStatusUnassigned, loaded.Assignment.Status)
	assert.Nil(t, loaded.Assignment.AgentID)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Empty(t, f.notifier.Events())
}

func TestService_NotifyFailureDoesNotFailTransition(t *testing.T) {
	f := newServiceFixture(t)
	f.notifier.Err = assert.AnError
	order := f.seed(t, enums.PaymentMethodOnline)

	approved, err := f.svc.Approve(context.Background(), order.ID, admin())
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusApproved, approved.AdminApproval.Status)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestService_AutoApproveSweep(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	first := f.seed(t, enums.PaymentMethodOnline)

	second := newTestOrder(t, enums.PaymentMethodOnline)
	second.OrderNumber = "ORD-2002"
	require.NoError(t, f.repo.Create(ctx, &second))
	_, err := f.svc.Approve(ctx, second.ID, admin())
	require.NoError(t, err)

	*f.clock = baseTime.Add(30 * time.Minute)
	result, err := f.svc.AutoApproveSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)

	*f.clock = baseTime.Add(2 * time.Hour)
	result, err = f.svc.AutoApproveSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Approved: 1}, result)

	loaded, err := f.repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusAutoApproved, loaded.AdminApproval.Status)

	result, err = f.svc.AutoApproveSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
}

func TestService_CancelRecordsHistory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	order := f.seed(t, enums.PaymentMethodOnline)

	_, err := f.svc.Cancel(ctx, order.ID, Actor{ID: order.BuyerID, Role: enums.ActorRoleBuyer}, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	cancelled, err := f.svc.Cancel(ctx, order.ID, Actor{ID: order.BuyerID, Role: enums.ActorRoleBuyer}, "ordered twice")
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentStatusCancelled, cancelled.FulfillmentStatus)

	history, err := f.svc.History(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.ActorRoleBuyer, history[0].ActorRole)
}

func TestService_GetValidatesID(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
