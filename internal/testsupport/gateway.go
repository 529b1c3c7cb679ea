package testsupport

import (
	"context"
	"sync"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
)

// FakeGateway is an in-memory payout provider. Zero value is usable.
type FakeGateway struct {
	mu sync.Mutex

	// CreateStatus is the status new beneficiaries start in. Defaults to INITIATED.
	CreateStatus enums.BeneficiaryStatus
	// RemoteStatus is what GetBeneficiary reports for every beneficiary when set.
	RemoteStatus enums.BeneficiaryStatus
	// SubmitErr fails every transfer submission while set.
	SubmitErr error
	// Statuses answers GetTransferStatus by transfer ID.
	Statuses map[string]payoutgateway.TransferStatus

	beneficiaries   []payoutgateway.BeneficiaryDetails
	beneficiaryGets int
	batches         map[string][]payoutgateway.Transfer
	singles         []payoutgateway.Transfer
	statusReads     int
}

func (f *FakeGateway) CreateBeneficiary(_ context.Context, details payoutgateway.BeneficiaryDetails) (payoutgateway.Beneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beneficiaries = append(f.beneficiaries, details)
	status := f.CreateStatus
	if status == "" {
		status = enums.BeneficiaryStatusInitiated
	}
	return payoutgateway.Beneficiary{ID: details.BeneficiaryID, Status: status}, nil
}

func (f *FakeGateway) GetBeneficiary(_ context.Context, beneficiaryID string) (payoutgateway.Beneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beneficiaryGets++
	status := f.RemoteStatus
	if status == "" {
		status = enums.BeneficiaryStatusInitiated
	}
	return payoutgateway.Beneficiary{ID: beneficiaryID, Status: status}, nil
}

func (f *FakeGateway) CreateBatchTransfer(_ context.Context, batchID string, transfers []payoutgateway.Transfer) (payoutgateway.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return payoutgateway.BatchResult{}, f.SubmitErr
	}
	if f.batches == nil {
		f.batches = make(map[string][]payoutgateway.Transfer)
	}
	f.batches[batchID] = append([]payoutgateway.Transfer(nil), transfers...)
	result := payoutgateway.BatchResult{ProviderBatchID: "cf_" + batchID, RawStatus: "RECEIVED"}
	for _, transfer := range transfers {
		result.Transfers = append(result.Transfers, accepted(transfer))
	}
	return result, nil
}

func (f *FakeGateway) CreateTransfer(_ context.Context, transfer payoutgateway.Transfer) (payoutgateway.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return payoutgateway.TransferResult{}, f.SubmitErr
	}
	f.singles = append(f.singles, transfer)
	return accepted(transfer), nil
}

func (f *FakeGateway) GetTransferStatus(_ context.Context, transferID string) (payoutgateway.TransferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusReads++
	if status, ok := f.Statuses[transferID]; ok {
		return status, nil
	}
	return payoutgateway.TransferStatus{}, &payoutgateway.ProviderError{StatusCode: 404, Code: "TRANSFER_NOT_FOUND", Message: "unknown transfer"}
}

// SetTransferStatus makes GetTransferStatus report raw for the transfer.
func (f *FakeGateway) SetTransferStatus(transferID, raw, utr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Statuses == nil {
		f.Statuses = make(map[string]payoutgateway.TransferStatus)
	}
	f.Statuses[transferID] = payoutgateway.TransferStatus{
		TransferID: transferID,
		RawStatus:  raw,
		UTR:        utr,
		Status:     payoutgateway.ClassifyStatus(raw),
	}
}

func (f *FakeGateway) RegisteredBeneficiaries() []payoutgateway.BeneficiaryDetails {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payoutgateway.BeneficiaryDetails(nil), f.beneficiaries...)
}

func (f *FakeGateway) BeneficiaryReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beneficiaryGets
}

// Submitted lists every transfer accepted so far, batch and single.
func (f *FakeGateway) Submitted() []payoutgateway.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []payoutgateway.Transfer
	for _, transfers := range f.batches {
		out = append(out, transfers...)
	}
	return append(out, f.singles...)
}

func (f *FakeGateway) BatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *FakeGateway) StatusReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusReads
}

func accepted(transfer payoutgateway.Transfer) payoutgateway.TransferResult {
	return payoutgateway.TransferResult{
		TransferID:         transfer.TransferID,
		ProviderTransferID: "cf_" + transfer.TransferID,
		RawStatus:          "RECEIVED",
		Status:             payoutgateway.ClassifyStatus("RECEIVED"),
	}
}
