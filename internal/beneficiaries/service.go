// Package beneficiaries keeps each seller's payout destination registered with
// the provider.
package beneficiaries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BankDetails is what a seller submits to receive payouts.
type BankDetails struct {
	AccountHolderName string `validate:"required,max=100"`
	AccountNumber     string `validate:"required,numeric,min=6,max=20"`
	IFSC              string `validate:"required,len=11,alphanum"`
	BankName          string `validate:"omitempty,max=100"`
	Email             string `validate:"omitempty,email"`
	Phone             string `validate:"omitempty,e164"`
}

type Service interface {
	Register(ctx context.Context, sellerID uuid.UUID, details BankDetails) (*models.Beneficiary, error)
	EnsureVerified(ctx context.Context, sellerID uuid.UUID) (*models.Beneficiary, error)
	SoftDelete(ctx context.Context, sellerID uuid.UUID, reason string) error
}

type ServiceParams struct {
	Repo     Repository
	Provider payoutgateway.Client
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	provider payoutgateway.Client
	logg     *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("beneficiary repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payout provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		provider: params.Provider,
		logg:     params.Logger,
		validate: validator.New(),
		now:      now,
	}, nil
}

// Register replaces any active beneficiary for the seller with a new one.
func (s *service) Register(ctx context.Context, sellerID uuid.UUID, details BankDetails) (*models.Beneficiary, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	details.IFSC = strings.ToUpper(strings.TrimSpace(details.IFSC))
	details.AccountNumber = strings.TrimSpace(details.AccountNumber)
	if err := s.validate.Struct(details); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bank details")
	}

	existing, err := s.repo.FindActiveBySellerID(ctx, sellerID)
	switch {
	case err == nil:
		if err := s.repo.SoftDelete(ctx, existing.ID, "replaced by new registration", s.now()); err != nil {
			return nil, err
		}
	case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return nil, err
	}
	return s.create(ctx, sellerID, details)
}

// EnsureVerified returns the seller's active beneficiary, creating it from the
// stored bank account when none exists. Pending registrations are refreshed.
func (s *service) EnsureVerified(ctx context.Context, sellerID uuid.UUID) (*models.Beneficiary, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	beneficiary, err := s.repo.FindActiveBySellerID(ctx, sellerID)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		account, accErr := s.repo.FindBankAccount(ctx, sellerID)
		if accErr != nil {
			return nil, accErr
		}
		beneficiary, err = s.create(ctx, sellerID, detailsFromAccount(*account))
		if err != nil {
			return nil, err
		}
	}

	if beneficiary.Status.IsPending() {
		if err := s.refresh(ctx, beneficiary); err != nil {
			return nil, err
		}
	}
	return beneficiary, nil
}

func (s *service) SoftDelete(ctx context.Context, sellerID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	beneficiary, err := s.repo.FindActiveBySellerID(ctx, sellerID)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, beneficiary.ID, reason, s.now()); err != nil {
		return err
	}
	logCtx := s.logg.WithSellerID(ctx, sellerID.String())
	s.logg.Info(s.logg.WithField(logCtx, "beneficiary_id", beneficiary.BeneficiaryID), "beneficiary deleted")
	return nil
}

func (s *service) create(ctx context.Context, sellerID uuid.UUID, details BankDetails) (*models.Beneficiary, error) {
	beneficiaryID := NewBeneficiaryID(sellerID)
	remote, err := s.provider.CreateBeneficiary(ctx, payoutgateway.BeneficiaryDetails{
		BeneficiaryID: beneficiaryID,
		Name:          details.AccountHolderName,
		Email:         details.Email,
		Phone:         details.Phone,
		AccountNumber: details.AccountNumber,
		IFSC:          details.IFSC,
		BankName:      details.BankName,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register beneficiary with provider")
	}
	if remote.ID != "" {
		beneficiaryID = remote.ID
	}
	status := remote.Status
	if status == "" {
		status = enums.BeneficiaryStatusInitiated
	}

	now := s.now()
	beneficiary := &models.Beneficiary{
		SellerID:            sellerID,
		BeneficiaryID:       beneficiaryID,
		AccountHolderName:   details.AccountHolderName,
		MaskedAccountNumber: MaskAccountNumber(details.AccountNumber),
		IFSC:                details.IFSC,
		BankName:            optionalString(details.BankName),
		Status:              status,
		StatusReason:        optionalString(remote.Reason),
		LastCheckedAt:       &now,
	}
	if status == enums.BeneficiaryStatusVerified {
		beneficiary.VerifiedAt = &now
	}
	if err := s.repo.Create(ctx, beneficiary); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithSellerID(ctx, sellerID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"beneficiary_id": beneficiaryID,
		"status":         status,
	})
	s.logg.Info(logCtx, "beneficiary registered")
	return beneficiary, nil
}

func (s *service) refresh(ctx context.Context, beneficiary *models.Beneficiary) error {
	remote, err := s.provider.GetBeneficiary(ctx, beneficiary.BeneficiaryID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh beneficiary status")
	}
	if remote.Status == "" || remote.Status == beneficiary.Status {
		return nil
	}
	now := s.now()
	update := StatusUpdate{Status: remote.Status, Reason: optionalString(remote.Reason), CheckedAt: now}
	if err := s.repo.UpdateStatus(ctx, beneficiary.ID, update); err != nil {
		return err
	}
	beneficiary.Status = remote.Status
	beneficiary.StatusReason = update.Reason
	beneficiary.LastCheckedAt = &now
	if remote.Status == enums.BeneficiaryStatusVerified {
		beneficiary.VerifiedAt = &now
	}
	return nil
}

// NewBeneficiaryID builds the provider-side identifier for a registration.
func NewBeneficiaryID(sellerID uuid.UUID) string {
	seller := strings.ReplaceAll(sellerID.String(), "-", "")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "ben_" + seller[:12] + "_" + suffix
}

// MaskAccountNumber keeps the last four digits.
func MaskAccountNumber(account string) string {
	account = strings.TrimSpace(account)
	if len(account) <= 4 {
		return account
	}
	return strings.Repeat("X", len(account)-4) + account[len(account)-4:]
}

func detailsFromAccount(account models.SellerBankAccount) BankDetails {
	details := BankDetails{
		AccountHolderName: account.AccountHolderName,
		AccountNumber:     account.AccountNumber,
		IFSC:              account.IFSC,
	}
	if account.BankName != nil {
		details.BankName = *account.BankName
	}
	if account.Email != nil {
		details.Email = *account.Email
	}
	if account.Phone != nil {
		details.Phone = *account.Phone
	}
	return details
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
