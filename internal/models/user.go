package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	GoogleID    *string         `gorm:"uniqueIndex;size:255" json:"-"`
	Email       string          `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Picture     string          `gorm:"size:512" json:"picture"`
	Credits     int64           `gorm:"not null" json:"credits"`
	TotalSpent  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"totalSpent"`
	BankDetails BankDetails     `gorm:"embedded;embeddedPrefix:bank_" json:"-"`
	FCMToken    string          `gorm:"size:512" json:"-"`
	LastLogin   *time.Time      `json:"lastLogin"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// BankDetails is the single saved payout destination of a user.
type BankDetails struct {
	AccountNumber string     `gorm:"size:34" json:"accountNumber"`
	AccountName   string     `gorm:"size:255" json:"accountName"`
	BankName      string     `gorm:"size:100" json:"bankName"`
	IsDefault     bool       `json:"isDefault"`
	SavedAt       *time.Time `json:"savedAt"`
}

func (b BankDetails) Empty() bool {
	return b.AccountNumber == ""
}

// Masked returns a copy safe to show to clients: first four and last four digits only.
func (b BankDetails) Masked() BankDetails {
	out := b
	out.AccountNumber = MaskAccountNumber(b.AccountNumber)
	return out
}

func MaskAccountNumber(n string) string {
	if len(n) <= 8 {
		return n
	}
	return n[:4] + "****" + n[len(n)-4:]
}
