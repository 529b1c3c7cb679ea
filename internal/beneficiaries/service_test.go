package beneficiaries

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/testsupport"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var checkedAt = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, gateway *testsupport.FakeGateway) (Service, Repository, *gorm.DB) {
	t.Helper()
	conn := testsupport.SQLite(t)
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Provider: gateway,
		Logger:   logger.New(logger.Options{ServiceName: "beneficiaries-test", Output: &bytes.Buffer{}}),
		Now:      func() time.Time { return checkedAt },
	})
	require.NoError(t, err)
	return svc, repo, conn
}

func validDetails() BankDetails {
	return BankDetails{
		AccountHolderName: "Asha Traders",
		AccountNumber:     "0012345678901",
		IFSC:              "hdfc0001234",
		Email:             "payouts@asha.example",
	}
}

func TestMaskAccountNumber(t *testing.T) {
	assert.Equal(t, "XXXXXXXXX8901", MaskAccountNumber("0012345678901"))
	assert.Equal(t, "1234", MaskAccountNumber("1234"))
	assert.Equal(t, "XX3456", MaskAccountNumber(" 123456 "))
}

func TestRegisterStoresMaskedDetails(t *testing.T) {
	gateway := &testsupport.FakeGateway{}
	svc, repo, _ := newTestService(t, gateway)
	ctx := context.Background()
	sellerID := uuid.New()

	beneficiary, err := svc.Register(ctx, sellerID, validDetails())
	require.NoError(t, err)
	assert.Equal(t, "XXXXXXXXX8901", beneficiary.MaskedAccountNumber)
	assert.Equal(t, "HDFC0001234", beneficiary.IFSC)
	assert.Equal(t, enums.BeneficiaryStatusInitiated, beneficiary.Status)

	registered := gateway.RegisteredBeneficiaries()
	require.Len(t, registered, 1)
	assert.Equal(t, "0012345678901", registered[0].AccountNumber)
	assert.Equal(t, beneficiary.BeneficiaryID, registered[0].BeneficiaryID)

	stored, err := repo.FindActiveBySellerID(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, beneficiary.ID, stored.ID)
	assert.NotContains(t, stored.MaskedAccountNumber, "0012345")
}

func TestRegisterRejectsInvalidDetails(t *testing.T) {
	gateway := &testsupport.FakeGateway{}
	svc, _, _ := newTestService(t, gateway)

	details := validDetails()
	details.IFSC = "SHORT"
	_, err := svc.Register(context.Background(), uuid.New(), details)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, gateway.RegisteredBeneficiaries())
}

func TestRegisterReplacesActiveBeneficiary(t *testing.T) {
	gateway := &testsupport.FakeGateway{}
	svc, _, conn := newTestService(t, gateway)
	ctx := context.Background()
	sellerID := uuid.New()

	first, err := svc.Register(ctx, sellerID, validDetails())
	require.NoError(t, err)
	second, err := svc.Register(ctx, sellerID, validDetails())
	require.NoError(t, err)
	assert.NotEqual(t, first.BeneficiaryID, second.BeneficiaryID)

	var rows []models.Beneficiary
	require.NoError(t, conn.Where("seller_id = ?", sellerID).Order("created_at").Find(&rows).Error)
	require.Len(t, rows, 2)
	var deleted int
	for _, row := range rows {
		if row.DeletedAt != nil {
			deleted++
			assert.Equal(t, enums.BeneficiaryStatusDeleted, row.Status)
		}
	}
	assert.Equal(t, 1, deleted)
}

func TestEnsureVerifiedCreatesFromBankAccount(t *testing.T) {
	gateway := &testsupport.FakeGateway{CreateStatus: enums.BeneficiaryStatusVerified}
	svc, _, conn := newTestService(t, gateway)
	ctx := context.Background()
	sellerID := uuid.New()
	require.NoError(t, conn.Create(&models.SellerBankAccount{
		SellerID:          sellerID,
		AccountHolderName: "Ravi Stores",
		AccountNumber:     "998877665544",
		IFSC:              "ICIC0000456",
	}).Error)

	beneficiary, err := svc.EnsureVerified(ctx, sellerID)
	require.NoError(t, err)
	assert.True(t, beneficiary.IsVerified())
	assert.Equal(t, "XXXXXXXX5544", beneficiary.MaskedAccountNumber)
	require.NotNil(t, beneficiary.VerifiedAt)
	assert.Zero(t, gateway.BeneficiaryReads())

	again, err := svc.EnsureVerified(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, beneficiary.ID, again.ID)
	assert.Len(t, gateway.RegisteredBeneficiaries(), 1)
}

func TestEnsureVerifiedRefreshesPendingStatus(t *testing.T) {
	gateway := &testsupport.FakeGateway{}
	svc, repo, _ := newTestService(t, gateway)
	ctx := context.Background()
	sellerID := uuid.New()

	_, err := svc.Register(ctx, sellerID, validDetails())
	require.NoError(t, err)

	pending, err := svc.EnsureVerified(ctx, sellerID)
	require.NoError(t, err)
	assert.False(t, pending.IsVerified())
	assert.Equal(t, 1, gateway.BeneficiaryReads())

	gateway.RemoteStatus = enums.BeneficiaryStatusVerified
	verified, err := svc.EnsureVerified(ctx, sellerID)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified())

	stored, err := repo.FindActiveBySellerID(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, enums.BeneficiaryStatusVerified, stored.Status)
	require.NotNil(t, stored.VerifiedAt)

	_, err = svc.EnsureVerified(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, 2, gateway.BeneficiaryReads())
}

func TestEnsureVerifiedWithoutBankAccount(t *testing.T) {
	svc, _, _ := newTestService(t, &testsupport.FakeGateway{})

	_, err := svc.EnsureVerified(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSoftDeleteKeepsRow(t *testing.T) {
	svc, repo, conn := newTestService(t, &testsupport.FakeGateway{})
	ctx := context.Background()
	sellerID := uuid.New()
	created, err := svc.Register(ctx, sellerID, validDetails())
	require.NoError(t, err)

	assert.True(t, pkgerrors.IsCode(svc.SoftDelete(ctx, sellerID, " "), pkgerrors.CodeValidation))
	require.NoError(t, svc.SoftDelete(ctx, sellerID, "seller closed account"))

	_, err = repo.FindActiveBySellerID(ctx, sellerID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var row models.Beneficiary
	require.NoError(t, conn.First(&row, "id = ?", created.ID).Error)
	assert.Equal(t, enums.BeneficiaryStatusDeleted, row.Status)
	require.NotNil(t, row.DeletedAt)
	assert.Equal(t, "seller closed account", *row.DeletedReason)
}
