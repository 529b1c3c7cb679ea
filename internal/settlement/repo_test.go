package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-payouts/internal/testsupport"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
)

func TestCreatePayoutRejectsSecondPayoutForOrder(t *testing.T) {
	repo := NewRepository(testsupport.SQLite(t))
	ctx := context.Background()
	orderID := uuid.New()

	newPayout := func(transferID string) *models.Payout {
		return &models.Payout{
			ID:                 uuid.New(),
			OrderID:            orderID,
			SellerID:           uuid.New(),
			BeneficiaryID:      "BENE_1",
			TransferID:         transferID,
			OrderAmount:        decimal.NewFromInt(1000),
			PlatformCommission: decimal.NewFromInt(80),
			GSTAmount:          decimal.RequireFromString("14.40"),
			TotalCommission:    decimal.RequireFromString("94.40"),
			PayoutAmount:       decimal.RequireFromString("905.60"),
			Status:             enums.PayoutStatusPending,
		}
	}

	first := newPayout(TransferID("ORDER_", orderID))
	require.NoError(t, repo.CreatePayout(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	err := repo.CreatePayout(ctx, newPayout("ORDER_other"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	loaded, err := repo.FindPayoutByTransferID(ctx, first.TransferID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, loaded.ID)

	_, err = repo.FindPayoutByTransferID(ctx, "ORDER_missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListRetryableIncludesStalePending(t *testing.T) {
	repo := NewRepository(testsupport.SQLite(t))
	ctx := context.Background()
	cutoff := runDate.Add(-DefaultPendingGrace)
	fresh, stale := runDate.Add(-time.Minute), runDate.Add(-time.Hour)

	seed := func(status enums.PayoutStatus, retryable bool, attempts int, stagedAt *time.Time) uuid.UUID {
		orderID := uuid.New()
		payout := &models.Payout{
			OrderID:            orderID,
			SellerID:           uuid.New(),
			BeneficiaryID:      "BENE_1",
			TransferID:         TransferID("ORDER_", orderID),
			PayoutAmount:       decimal.NewFromInt(100),
			Status:             status,
			Retryable:          retryable,
			ProcessingAttempts: attempts,
			StagedAt:           stagedAt,
		}
		require.NoError(t, repo.CreatePayout(ctx, payout))
		return payout.ID
	}

	failed := seed(enums.PayoutStatusFailed, true, 1, &stale)
	seed(enums.PayoutStatusFailed, true, 3, &stale)
	seed(enums.PayoutStatusFailed, false, 1, &stale)
	abandoned := seed(enums.PayoutStatusPending, false, 2, &stale)
	legacy := seed(enums.PayoutStatusPending, false, 1, nil)
	seed(enums.PayoutStatusPending, false, 1, &fresh)
	seed(enums.PayoutStatusInitiated, false, 1, &stale)

	payouts, err := repo.ListRetryable(ctx, 3, cutoff, 0)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(payouts))
	for _, payout := range payouts {
		ids = append(ids, payout.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{failed, abandoned, legacy}, ids)
}
