// Package payoutgateway is the contract with the external payout provider and
// a JSON/REST implementation of it.
package payoutgateway

import (
	"context"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	"github.com/shopspring/decimal"
)

// Client is everything settlement and reconciliation need from the provider.
type Client interface {
	CreateBeneficiary(ctx context.Context, details BeneficiaryDetails) (Beneficiary, error)
	GetBeneficiary(ctx context.Context, beneficiaryID string) (Beneficiary, error)
	CreateBatchTransfer(ctx context.Context, batchID string, transfers []Transfer) (BatchResult, error)
	CreateTransfer(ctx context.Context, transfer Transfer) (TransferResult, error)
	GetTransferStatus(ctx context.Context, transferID string) (TransferStatus, error)
}

// BeneficiaryDetails is what the provider needs to register a bank account.
type BeneficiaryDetails struct {
	BeneficiaryID string `json:"beneficiary_id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	AccountNumber string `json:"bank_account_number"`
	IFSC          string `json:"bank_ifsc"`
	BankName      string `json:"bank_name,omitempty"`
}

type Beneficiary struct {
	ID     string                  `json:"beneficiary_id"`
	Status enums.BeneficiaryStatus `json:"beneficiary_status"`
	Reason string                  `json:"status_reason,omitempty"`
}

// Transfer is one payout instruction. TransferID is the idempotency key.
type Transfer struct {
	TransferID    string          `json:"transfer_id"`
	BeneficiaryID string          `json:"beneficiary_id"`
	Amount        decimal.Decimal `json:"transfer_amount"`
	Remarks       string          `json:"transfer_remarks,omitempty"`
}

type TransferResult struct {
	TransferID         string             `json:"transfer_id"`
	ProviderTransferID string             `json:"cf_transfer_id,omitempty"`
	RawStatus          string             `json:"status"`
	Status             enums.PayoutStatus `json:"-"`
}

type BatchResult struct {
	ProviderBatchID string           `json:"cf_batch_transfer_id"`
	RawStatus       string           `json:"status"`
	Transfers       []TransferResult `json:"transfers,omitempty"`
}

// TransferStatus is the provider's current view of a transfer.
type TransferStatus struct {
	TransferID         string             `json:"transfer_id"`
	ProviderTransferID string             `json:"cf_transfer_id,omitempty"`
	RawStatus          string             `json:"status"`
	StatusCode         string             `json:"status_code,omitempty"`
	StatusDescription  string             `json:"status_description,omitempty"`
	UTR                string             `json:"transfer_utr,omitempty"`
	Status             enums.PayoutStatus `json:"-"`
}
