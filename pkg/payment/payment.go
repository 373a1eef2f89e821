package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/shopspring/decimal"
)

// Gateway is the mobile-money and card surface the payment flows depend on.
type Gateway interface {
	PreviewPayment(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*Preview, error)
	InitiatePayment(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*Initiation, error)
	PreviewCardPayment(ctx context.Context, amountUSD decimal.Decimal, orderRef string) (*Preview, error)
	InitiateCardPayment(ctx context.Context, amountUSD decimal.Decimal, orderRef, customerID string) (*CardCheckout, error)
	QueryStatus(ctx context.Context, orderRef string) ([]PaymentRecord, error)
	GetBalance(ctx context.Context) ([]BalanceEntry, error)
	PreviewPayout(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*PayoutPreview, error)
	CreatePayout(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*PayoutResult, error)
}

// PaymentChannel is one mobile network able to take the push.
type PaymentChannel struct {
	Name   string          `json:"name"`
	Status string          `json:"status,omitempty"`
	Fee    decimal.Decimal `json:"fee"`
}

// UnmarshalJSON accepts either an object or a bare channel name.
func (c *PaymentChannel) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*c = PaymentChannel{Name: name}
		return nil
	}
	type plain PaymentChannel
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = PaymentChannel(p)
	return nil
}

type Preview struct {
	ActiveMethods []PaymentChannel `json:"activeMethods"`
	Fee           decimal.Decimal  `json:"fee"`
	Amount        decimal.Decimal  `json:"amount"`
}

// Initiation is the gateway's acknowledgement of a USSD push. It is not a
// settlement; the outcome arrives later by webhook.
type Initiation struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	Channel           string          `json:"channel"`
	OrderReference    string          `json:"orderReference"`
	CollectedAmount   decimal.Decimal `json:"collectedAmount"`
	CollectedCurrency string          `json:"collectedCurrency"`
	CreatedAt         string          `json:"createdAt"`
	ClientID          string          `json:"clientId"`
}

type CardCheckout struct {
	CardPaymentLink string `json:"cardPaymentLink"`
	ClientID        string `json:"clientId"`
}

type PaymentRecord struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	OrderReference    string          `json:"orderReference"`
	CollectedAmount   decimal.Decimal `json:"collectedAmount"`
	CollectedCurrency string          `json:"collectedCurrency"`
	Channel           string          `json:"channel"`
	CreatedAt         string          `json:"createdAt"`
}

type BalanceEntry struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

type PayoutPreview struct {
	Amount  decimal.Decimal `json:"amount"`
	Fee     decimal.Decimal `json:"fee"`
	Channel string          `json:"channelProvider"`
}

type PayoutResult struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	OrderReference string          `json:"orderReference"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	Channel        string          `json:"channelProvider"`
}

// Stage names the gateway call that failed.
type Stage string

const (
	StageAuth          Stage = "auth"
	StagePreview       Stage = "preview"
	StageInitiate      Stage = "initiate"
	StageCardPreview   Stage = "card_preview"
	StageCardInitiate  Stage = "card_initiate"
	StageQuery         Stage = "query"
	StageBalance       Stage = "balance"
	StagePayoutPreview Stage = "payout_preview"
	StagePayout        Stage = "payout"
)

// GatewayError is any failure talking to the payment gateway.
type GatewayError struct {
	Stage      Stage
	StatusCode int
	Detail     string
	// Timeout is set when no answer arrived in time. The request may or may
	// not have been acted on by the gateway.
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s failed", e.Stage)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && e.Detail == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Indeterminate reports whether the call may have moved money without us
// seeing the answer. Only a timed out push or payout qualifies; a timeout at
// any other stage means nothing was sent.
func (e *GatewayError) Indeterminate() bool {
	if !e.Timeout {
		return false
	}
	switch e.Stage {
	case StageInitiate, StagePayout:
		return true
	}
	return false
}

// IsIndeterminate reports whether err carries a GatewayError whose outcome is
// unknown.
func IsIndeterminate(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Indeterminate()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
