package reconciliation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
)

// transferEvent is one transfer outcome as the provider posts it.
type transferEvent struct {
	TransferID         string `json:"transfer_id"`
	ProviderTransferID string `json:"cf_transfer_id"`
	Status             string `json:"status"`
	StatusCode         string `json:"status_code"`
	StatusDescription  string `json:"status_description"`
	UTR                string `json:"transfer_utr"`
}

// webhookPayload accepts both the single transfer form and the batch form.
type webhookPayload struct {
	transferEvent
	BatchID   string          `json:"batch_id"`
	Transfers []transferEvent `json:"transfers"`
}

func decodeWebhook(raw []byte) (webhookPayload, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return webhookPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if len(payload.Transfers) == 0 && strings.TrimSpace(payload.TransferID) == "" {
		return webhookPayload{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload has no transfers")
	}
	return payload, nil
}

func (p webhookPayload) events() []transferEvent {
	if len(p.Transfers) > 0 {
		return p.Transfers
	}
	return []transferEvent{p.transferEvent}
}

func (e transferEvent) update(source string) StatusUpdate {
	return StatusUpdate{
		TransferID:         strings.TrimSpace(e.TransferID),
		ProviderTransferID: e.ProviderTransferID,
		RawStatus:          e.Status,
		Status:             payoutgateway.ClassifyStatus(e.Status),
		StatusCode:         e.StatusCode,
		Description:        e.StatusDescription,
		UTR:                e.UTR,
		Source:             source,
	}
}

// DeliveryKey identifies one webhook delivery. Redeliveries carry the same
// signed body and map to the same key. A later outcome for the same transfer
// and status, such as a second failure after a retry, differs in its body.
func DeliveryKey(raw []byte) (string, error) {
	payload, err := decodeWebhook(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	fingerprint := hex.EncodeToString(sum[:])[:16]
	if len(payload.Transfers) == 0 {
		return payload.TransferID + ":" + strings.ToUpper(payload.Status) + ":" + fingerprint, nil
	}
	return "batch:" + payload.BatchID + ":" + fingerprint, nil
}
