package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Intent is the subset of a Stripe PaymentIntent the credit flow reads.
type Intent struct {
	ID       string
	Status   string
	Amount   int64 // minor units
	Currency string
	Metadata map[string]string
}

func (i *Intent) Succeeded() bool {
	return i.Status == string(stripe.PaymentIntentStatusSucceeded)
}

// MajorAmount converts the minor-unit amount to the currency's major unit.
func (i *Intent) MajorAmount() decimal.Decimal {
	return decimal.New(i.Amount, -2)
}

type IntentFetcher interface {
	GetIntent(ctx context.Context, id string) (*Intent, error)
}

type StripeIntents struct {
	api *client.API
}

func NewStripeIntents(secretKey string) *StripeIntents {
	return &StripeIntents{api: client.New(secretKey, nil)}
}

func (s *StripeIntents) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get intent %s: %w", id, err)
	}
	return &Intent{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Metadata: pi.Metadata,
	}, nil
}
