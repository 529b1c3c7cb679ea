package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a missing primary key before insert.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	assignID(&h.ID)
	return nil
}

func (h *OrderReturnHistory) BeforeCreate(*gorm.DB) error {
	assignID(&h.ID)
	return nil
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (b *PayoutBatch) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

func (b *Beneficiary) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

func (a *SellerBankAccount) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

func (e *LedgerEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// All lists every model for AutoMigrate in tests and sqlite runs.
func All() []any {
	return []any{
		&Order{},
		&OrderStatusHistory{},
		&OrderReturnHistory{},
		&Payout{},
		&PayoutBatch{},
		&Beneficiary{},
		&SellerBankAccount{},
		&LedgerEvent{},
	}
}
