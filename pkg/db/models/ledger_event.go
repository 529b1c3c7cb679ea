package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
)

// LedgerEvent records an immutable money lifecycle event tied to an order.
type LedgerEvent struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID  uuid.UUID             `gorm:"column:seller_id;type:uuid;not null"`
	PayoutID  *uuid.UUID            `gorm:"column:payout_id;type:uuid"`
	ActorID   *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	ActorRole enums.ActorRole       `gorm:"column:actor_role;type:text;not null"`
	Type      enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Metadata  json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }
