package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeRepository struct {
	createFn func(ctx context.Context, event *models.LedgerEvent) error
	existsFn func(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	withTx   int
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	f.withTx++
	return f
}

func (f *fakeRepository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	return nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return nil, nil
}

func (f *fakeRepository) Exists(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(ctx, orderID, eventType)
	}
	return false, nil
}

func TestService_RecordEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	metadata := json.RawMessage(`{"note":"collected"}`)
	input := RecordLedgerEventInput{
		OrderID:   uuid.New(),
		SellerID:  uuid.New(),
		ActorRole: enums.ActorRoleDeliveryAgent,
		Type:      enums.LedgerEventTypeCashCollected,
		Amount:    decimal.RequireFromString("4250.00"),
		Metadata:  metadata,
	}

	var created *models.LedgerEvent
	repo.createFn = func(ctx context.Context, event *models.LedgerEvent) error {
		created = event
		return nil
	}

	got, err := svc.RecordEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}
	if created == nil {
		t.Fatal("expected ledger event to be created")
	}
	if created.OrderID != input.OrderID || created.Type != input.Type || !created.Amount.Equal(input.Amount) {
		t.Fatalf("unexpected ledger event data: %v", created)
	}
	if created.SellerID != input.SellerID || created.ActorRole != input.ActorRole {
		t.Fatalf("missing seller/actor metadata: %+v", created)
	}
	if string(created.Metadata) != string(metadata) {
		t.Fatalf("metadata mismatch: %s", created.Metadata)
	}
	if got != created {
		t.Fatalf("service should return created event")
	}
}

func TestService_RecordEventValidation(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		input RecordLedgerEventInput
	}{
		{
			name: "missing order id",
			input: RecordLedgerEventInput{
				SellerID:  uuid.New(),
				ActorRole: enums.ActorRoleSystem,
				Type:      enums.LedgerEventTypeVendorPayout,
			},
		},
		{
			name: "missing seller",
			input: RecordLedgerEventInput{
				OrderID:   uuid.New(),
				ActorRole: enums.ActorRoleSystem,
				Type:      enums.LedgerEventTypeVendorPayout,
			},
		},
		{
			name: "invalid actor",
			input: RecordLedgerEventInput{
				OrderID:   uuid.New(),
				SellerID:  uuid.New(),
				ActorRole: enums.ActorRole("robot"),
				Type:      enums.LedgerEventTypeVendorPayout,
			},
		},
		{
			name: "invalid type",
			input: RecordLedgerEventInput{
				OrderID:   uuid.New(),
				SellerID:  uuid.New(),
				ActorRole: enums.ActorRoleSystem,
				Type:      enums.LedgerEventType("not_real"),
			},
		},
		{
			name: "negative amount",
			input: RecordLedgerEventInput{
				OrderID:   uuid.New(),
				SellerID:  uuid.New(),
				ActorRole: enums.ActorRoleSystem,
				Type:      enums.LedgerEventTypeRefund,
				Amount:    decimal.NewFromInt(-1),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordEvent(context.Background(), tc.input); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestService_RecordEventRepoError(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	expectedErr := errors.New("boom")
	repo.createFn = func(ctx context.Context, event *models.LedgerEvent) error {
		return expectedErr
	}

	if _, err := svc.RecordEvent(context.Background(), RecordLedgerEventInput{
		OrderID:   uuid.New(),
		SellerID:  uuid.New(),
		ActorRole: enums.ActorRoleSystem,
		Type:      enums.LedgerEventTypeVendorPayout,
		Amount:    decimal.NewFromInt(100),
	}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}

func TestService_HasEventUsesRepository(t *testing.T) {
	orderID := uuid.New()
	repo := &fakeRepository{
		existsFn: func(ctx context.Context, id uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
			return id == orderID && eventType == enums.LedgerEventTypeVendorPayout, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	ok, err := svc.WithTx(nil).HasEvent(context.Background(), orderID, enums.LedgerEventTypeVendorPayout)
	if err != nil || !ok {
		t.Fatalf("expected existing event, got %v %v", ok, err)
	}
	if repo.withTx != 1 {
		t.Fatalf("expected WithTx to be forwarded to the repository")
	}
	if _, err := svc.HasEvent(context.Background(), uuid.Nil, enums.LedgerEventTypeVendorPayout); err == nil {
		t.Fatal("expected nil order id to fail")
	}
}
