package testsupport

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var orderSeq atomic.Int64

// DeliveredOrder inserts a paid, delivered order awaiting settlement.
func DeliveredOrder(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, amount string, deliveredAt time.Time) models.Order {
	t.Helper()
	delivered := deliveredAt
	order := models.Order{
		OrderNumber:       fmt.Sprintf("ORD-%05d", orderSeq.Add(1)),
		BuyerID:           uuid.New(),
		SellerID:          sellerID,
		FulfillmentStatus: enums.FulfillmentStatusDelivered,
		PaymentMethod:     enums.PaymentMethodOnline,
		PaymentStatus:     enums.PaymentStatusCompleted,
		IsPaid:            true,
		TotalAmount:       decimal.RequireFromString(amount),
		DeliveredAt:       &delivered,
		AdminApproval:     models.AdminApproval{Status: enums.ApprovalStatusApproved},
		Assignment:        models.DeliveryAssignment{Status: enums.AssignmentStatusDeliveryCompleted},
		Return:            models.ReturnDetails{Status: enums.ReturnStatusEligible},
		Payout:            models.OrderPayout{Status: enums.OrderPayoutStatusEligible},
		Version:           1,
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// BankAccount inserts onboarding bank details for a seller.
func BankAccount(t *testing.T, conn *gorm.DB, sellerID uuid.UUID) models.SellerBankAccount {
	t.Helper()
	account := models.SellerBankAccount{
		SellerID:          sellerID,
		AccountHolderName: "Seller " + sellerID.String()[:8],
		AccountNumber:     "50100012345678",
		IFSC:              "HDFC0000123",
	}
	if err := conn.Create(&account).Error; err != nil {
		t.Fatalf("seed bank account: %v", err)
	}
	return account
}
