package models

import (
	"time"

	"dukasell/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction is one row of the credit ledger. Purchases and payouts carry an
// order reference shared with the gateway; the status column is the only thing
// concurrent webhooks race on.
type Transaction struct {
	ID               uint                     `gorm:"primaryKey" json:"id"`
	UserID           uint                     `gorm:"not null;index" json:"userId"`
	Type             domain.TransactionType   `gorm:"size:20;not null;index" json:"type"`
	Credits          int64                    `gorm:"not null" json:"credits"`
	Amount           decimal.Decimal          `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency         string                   `gorm:"size:3;not null" json:"currency"`
	FinalAmount      decimal.NullDecimal      `gorm:"type:decimal(15,2)" json:"finalAmount"`
	OrderReference   string                   `gorm:"size:64;not null;uniqueIndex" json:"orderReference"`
	Status           domain.TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	PaymentMethod    domain.PaymentMethod     `gorm:"size:20" json:"paymentMethod,omitempty"`
	PackageID        string                   `gorm:"size:32" json:"packageId,omitempty"`
	PhoneNumber      string                   `gorm:"size:20" json:"phoneNumber,omitempty"`
	Description      string                   `gorm:"size:255" json:"description"`
	Error            string                   `gorm:"type:text" json:"error,omitempty"`
	GatewayPaymentID string                   `gorm:"size:100;index" json:"gatewayPaymentId,omitempty"`
	PaymentIntentID  *string                  `gorm:"size:255;uniqueIndex" json:"paymentIntentId,omitempty"`
	WebhookData      datatypes.JSON           `json:"-"`
	PayoutData       datatypes.JSON           `json:"-"`
	CompletedAt      *time.Time               `json:"completedAt"`
	CreatedAt        time.Time                `gorm:"index" json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}
