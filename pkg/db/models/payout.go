package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
)

// Payout is the single settlement record for an order. TransferID is derived
// from the order ID and is the idempotency key shared with the provider.
type Payout struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payouts_order_id"`
	SellerID           uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index"`
	BeneficiaryID      string             `gorm:"column:beneficiary_id;not null"`
	TransferID         string             `gorm:"column:transfer_id;not null;uniqueIndex:ux_payouts_transfer_id"`
	ProviderTransferID *string            `gorm:"column:provider_transfer_id"`
	OrderAmount        decimal.Decimal    `gorm:"column:order_amount;type:numeric(12,2);not null"`
	PlatformCommission decimal.Decimal    `gorm:"column:platform_commission;type:numeric(12,2);not null"`
	GSTAmount          decimal.Decimal    `gorm:"column:gst_amount;type:numeric(12,2);not null"`
	TotalCommission    decimal.Decimal    `gorm:"column:total_commission;type:numeric(12,2);not null"`
	PayoutAmount       decimal.Decimal    `gorm:"column:payout_amount;type:numeric(12,2);not null"`
	Status             enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	BatchID            *uuid.UUID         `gorm:"column:batch_id;type:uuid;index"`
	ProcessingAttempts int                `gorm:"column:processing_attempts;not null;default:0"`
	TransferUTR        *string            `gorm:"column:transfer_utr"`
	ProviderStatus     *string            `gorm:"column:provider_status"`
	ErrorCode          *string            `gorm:"column:error_code"`
	ErrorMessage       *string            `gorm:"column:error_message"`
	Retryable          bool               `gorm:"column:retryable;not null;default:false"`
	NotifiedStatus     enums.PayoutStatus `gorm:"column:notified_status;type:text"`
	NotifiedAt         *time.Time         `gorm:"column:notified_at"`
	StagedAt           *time.Time         `gorm:"column:staged_at;index"`
	InitiatedAt        *time.Time         `gorm:"column:initiated_at"`
	CompletedAt        *time.Time         `gorm:"column:completed_at"`
	LastCheckedAt      *time.Time         `gorm:"column:last_checked_at"`
	Version            int64              `gorm:"column:version;not null;default:1"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payout) TableName() string { return "payouts" }

// PayoutBatch aggregates one settlement run. Counts are recomputed from the
// child payouts and never drive money movement.
type PayoutBatch struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BatchDate         time.Time               `gorm:"column:batch_date;not null;index"`
	Source            string                  `gorm:"column:source;not null;default:'daily'"`
	InitiatedBy       *uuid.UUID              `gorm:"column:initiated_by;type:uuid"`
	SellerID          *uuid.UUID              `gorm:"column:seller_id;type:uuid"`
	ProviderBatchID   *string                 `gorm:"column:provider_batch_id"`
	TotalPayouts      int                     `gorm:"column:total_payouts;not null;default:0"`
	TotalAmount       decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	SuccessfulPayouts int                     `gorm:"column:successful_payouts;not null;default:0"`
	FailedPayouts     int                     `gorm:"column:failed_payouts;not null;default:0"`
	PendingPayouts    int                     `gorm:"column:pending_payouts;not null;default:0"`
	Status            enums.PayoutBatchStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ErrorMessage      *string                 `gorm:"column:error_message"`
	SubmittedAt       *time.Time              `gorm:"column:submitted_at"`
	CompletedAt       *time.Time              `gorm:"column:completed_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (PayoutBatch) TableName() string { return "payout_batches" }
