package domain

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TypePurchase TransactionType = "purchase"
	TypeUsage    TransactionType = "usage"
	TypeBonus    TransactionType = "bonus"
	TypePayout   TransactionType = "payout"
)

type PaymentMethod string

const (
	MethodMobileMoney   PaymentMethod = "mobile_money"
	MethodCard          PaymentMethod = "card"
	MethodBank          PaymentMethod = "bank"
	MethodClickPesaCard PaymentMethod = "clickpesa_card"
	MethodCRDBBank      PaymentMethod = "crdb_bank"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodMobileMoney, MethodCard, MethodBank, MethodClickPesaCard, MethodCRDBBank:
		return true
	}
	return false
}

const (
	CurrencyTZS = "TZS"
	CurrencyUSD = "USD"
)

// Notification types pushed to devices and stored in-app.
const (
	NotifyCreditsAdded   = "CREDITS_ADDED"
	NotifyPaymentFailed  = "PAYMENT_FAILED"
	NotifyPayoutReturned = "PAYOUT_RETURNED"
	NotifyBonus          = "BONUS_CREDITS"
)

// Order reference prefixes. ClickPesa only accepts alphanumeric references.
const (
	RefPrefixPurchase = "CRED"
	RefPrefixPayout   = "POUT"
	RefPrefixUsage    = "USE"
	RefPrefixBonus    = "BON"
	RefPrefixCard     = "STRP"
)

const CRDBBankName = "CRDB"
