package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
)

// Order is the aggregate root. Each embedded struct is one sub-machine and is
// only ever changed through the transition functions in internal/orders and
// internal/returns.
type Order struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber         string                  `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID             uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID            uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	FulfillmentStatus   enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'Pending'"`
	PaymentMethod       enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null;default:'online'"`
	PaymentStatus       enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	IsPaid              bool                    `gorm:"column:is_paid;not null;default:false"`
	TotalAmount         decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CollectedAmount     decimal.NullDecimal     `gorm:"column:collected_amount;type:numeric(12,2)"`
	EstimatedDeliveryAt *time.Time              `gorm:"column:estimated_delivery_at"`
	DeliveredAt         *time.Time              `gorm:"column:delivered_at"`
	DeliveredOnTime     *bool                   `gorm:"column:delivered_on_time"`

	AdminApproval AdminApproval      `gorm:"embedded;embeddedPrefix:approval_"`
	Assignment    DeliveryAssignment `gorm:"embedded;embeddedPrefix:assignment_"`
	Pickup        Handoff            `gorm:"embedded;embeddedPrefix:pickup_"`
	Delivery      Handoff            `gorm:"embedded;embeddedPrefix:delivery_"`
	Cancellation  Cancellation       `gorm:"embedded;embeddedPrefix:cancellation_"`
	Return        ReturnDetails      `gorm:"embedded;embeddedPrefix:return_"`
	Payout        OrderPayout        `gorm:"embedded;embeddedPrefix:payout_"`

	Version   int64     `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// IsCOD reports whether the buyer pays the agent at the door.
func (o Order) IsCOD() bool {
	return o.PaymentMethod == enums.PaymentMethodCOD
}

type AdminApproval struct {
	Status               enums.ApprovalStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	DecidedBy            *uuid.UUID           `gorm:"column:decided_by;type:uuid"`
	DecidedAt            *time.Time           `gorm:"column:decided_at"`
	RejectionReason      *string              `gorm:"column:rejection_reason"`
	AutoApprovalDeadline time.Time            `gorm:"column:auto_approval_deadline;not null;index"`
}

type DeliveryAssignment struct {
	AgentID         *uuid.UUID             `gorm:"column:agent_id;type:uuid;index"`
	Status          enums.AssignmentStatus `gorm:"column:status;type:text;not null;default:'unassigned'"`
	AssignedBy      *uuid.UUID             `gorm:"column:assigned_by;type:uuid"`
	AssignedAt      *time.Time             `gorm:"column:assigned_at"`
	AcceptedAt      *time.Time             `gorm:"column:accepted_at"`
	RejectedAt      *time.Time             `gorm:"column:rejected_at"`
	RejectionReason *string                `gorm:"column:rejection_reason"`
}

// Handoff is the proof captured when goods change hands at pickup or delivery.
type Handoff struct {
	Completed    bool       `gorm:"column:completed;not null;default:false"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	Latitude     *float64   `gorm:"column:latitude"`
	Longitude    *float64   `gorm:"column:longitude"`
	Notes        *string    `gorm:"column:notes"`
	OTPReference *string    `gorm:"column:otp_reference"`
}

type Cancellation struct {
	CancelledBy *uuid.UUID      `gorm:"column:cancelled_by;type:uuid"`
	Role        enums.ActorRole `gorm:"column:role;type:text"`
	Reason      *string         `gorm:"column:reason"`
	CancelledAt *time.Time      `gorm:"column:cancelled_at"`
}

type ReturnDetails struct {
	Status          enums.ReturnStatus `gorm:"column:status;type:text"`
	Reason          *string            `gorm:"column:reason"`
	RequestedAt     *time.Time         `gorm:"column:requested_at"`
	ApprovedAt      *time.Time         `gorm:"column:approved_at"`
	AgentID         *uuid.UUID         `gorm:"column:agent_id;type:uuid"`
	AssignedAt      *time.Time         `gorm:"column:assigned_at"`
	AcceptedAt      *time.Time         `gorm:"column:accepted_at"`
	PickedUpAt      *time.Time         `gorm:"column:picked_up_at"`
	ReturnedAt      *time.Time         `gorm:"column:returned_at"`
	CompletedAt     *time.Time         `gorm:"column:completed_at"`
	RejectedAt      *time.Time         `gorm:"column:rejected_at"`
	RejectedBy      enums.ActorRole    `gorm:"column:rejected_by;type:text"`
	RejectionReason *string            `gorm:"column:rejection_reason"`
}

// OrderPayout is the settlement snapshot mirrored from the Payout row.
type OrderPayout struct {
	Status               enums.OrderPayoutStatus `gorm:"column:status;type:text;not null;default:'not_eligible';index"`
	PlatformCommission   decimal.Decimal         `gorm:"column:platform_commission;type:numeric(12,2);not null;default:0"`
	GSTAmount            decimal.Decimal         `gorm:"column:gst_amount;type:numeric(12,2);not null;default:0"`
	TotalCommission      decimal.Decimal         `gorm:"column:total_commission;type:numeric(12,2);not null;default:0"`
	SellerAmount         decimal.Decimal         `gorm:"column:seller_amount;type:numeric(12,2);not null;default:0"`
	Processed            bool                    `gorm:"column:processed;not null;default:false"`
	PayoutRef            *uuid.UUID              `gorm:"column:ref;type:uuid"`
	TransferID           *string                 `gorm:"column:transfer_id"`
	BatchID              *uuid.UUID              `gorm:"column:batch_id;type:uuid"`
	ErrorCode            *string                 `gorm:"column:error_code"`
	ErrorMessage         *string                 `gorm:"column:error_message"`
	ErrorRetryable       bool                    `gorm:"column:error_retryable;not null;default:false"`
	EligibilityCheckedAt *time.Time              `gorm:"column:eligibility_checked_at"`
	CompletedAt          *time.Time              `gorm:"column:completed_at"`
	NotEligibleReasons   []string                `gorm:"column:not_eligible_reasons;type:jsonb;serializer:json"`
}
