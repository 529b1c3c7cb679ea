package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
)

// Beneficiary is a seller's payout destination as registered with the
// provider. Rows are soft-deleted only.
type Beneficiary struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SellerID            uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	BeneficiaryID       string                  `gorm:"column:beneficiary_id;not null;uniqueIndex"`
	AccountHolderName   string                  `gorm:"column:account_holder_name;not null"`
	MaskedAccountNumber string                  `gorm:"column:masked_account_number;not null"`
	IFSC                string                  `gorm:"column:ifsc;not null"`
	BankName            *string                 `gorm:"column:bank_name"`
	Status              enums.BeneficiaryStatus `gorm:"column:status;type:text;not null;default:'INITIATED'"`
	StatusReason        *string                 `gorm:"column:status_reason"`
	VerifiedAt          *time.Time              `gorm:"column:verified_at"`
	LastCheckedAt       *time.Time              `gorm:"column:last_checked_at"`
	DeletedAt           *time.Time              `gorm:"column:deleted_at"`
	DeletedReason       *string                 `gorm:"column:deleted_reason"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Beneficiary) TableName() string { return "beneficiaries" }

func (b Beneficiary) IsVerified() bool {
	return b.Status == enums.BeneficiaryStatusVerified && b.DeletedAt == nil
}

// SellerBankAccount holds the bank details a seller entered during
// onboarding. It is owned by the seller profile flow and only read here.
type SellerBankAccount struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID          uuid.UUID `gorm:"column:seller_id;type:uuid;not null;uniqueIndex"`
	AccountHolderName string    `gorm:"column:account_holder_name;not null"`
	AccountNumber     string    `gorm:"column:account_number;not null"`
	IFSC              string    `gorm:"column:ifsc;not null"`
	BankName          *string   `gorm:"column:bank_name"`
	Email             *string   `gorm:"column:email"`
	Phone             *string   `gorm:"column:phone"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SellerBankAccount) TableName() string { return "seller_bank_accounts" }
