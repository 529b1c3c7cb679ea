package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
)

// OrderStatusHistory is the append-only audit log of fulfillment transitions.
type OrderStatusHistory struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus enums.FulfillmentStatus `gorm:"column:from_status;type:text"`
	ToStatus   enums.FulfillmentStatus `gorm:"column:to_status;type:text;not null"`
	ActorID    *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	ActorRole  enums.ActorRole         `gorm:"column:actor_role;type:text;not null"`
	Note       *string                 `gorm:"column:note"`
	OccurredAt time.Time               `gorm:"column:occurred_at;not null"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

// OrderReturnHistory is the append-only audit log of return transitions.
type OrderReturnHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus enums.ReturnStatus `gorm:"column:from_status;type:text"`
	ToStatus   enums.ReturnStatus `gorm:"column:to_status;type:text;not null"`
	ActorID    *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	ActorRole  enums.ActorRole    `gorm:"column:actor_role;type:text;not null"`
	Note       *string            `gorm:"column:note"`
	OccurredAt time.Time          `gorm:"column:occurred_at;not null"`
	// Seq orders entries written in the same instant.
	Seq int `gorm:"column:seq;not null;default:0"`
}

func (OrderReturnHistory) TableName() string { return "order_return_history" }
