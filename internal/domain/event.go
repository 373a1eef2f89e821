package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// EventKind is the closed set of ClickPesa webhook events we act on.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventPaymentReceived
	EventPaymentFailed
	EventPayoutInitiated
	EventPayoutRefunded
	EventPayoutReversed
)

var eventNames = map[EventKind]string{
	EventUnrecognized:    "UNRECOGNIZED",
	EventPaymentReceived: "PAYMENT RECEIVED",
	EventPaymentFailed:   "PAYMENT FAILED",
	EventPayoutInitiated: "PAYOUT INITIATED",
	EventPayoutRefunded:  "PAYOUT REFUNDED",
	EventPayoutReversed:  "PAYOUT REVERSED",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return eventNames[EventUnrecognized]
}

// ParseEventKind maps the gateway's eventType string. Case and underscores are
// tolerated ("payment_received" == "PAYMENT RECEIVED").
func ParseEventKind(raw string) EventKind {
	norm := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(raw, "_", " ")))
	for k, name := range eventNames {
		if k != EventUnrecognized && name == norm {
			return k
		}
	}
	return EventUnrecognized
}

var (
	ErrMalformedEvent   = errors.New("malformed webhook body")
	ErrMissingReference = errors.New("webhook has no order reference")
)

// WebhookEvent is the decoded, typed form of an inbound ClickPesa callback.
type WebhookEvent struct {
	Kind           EventKind
	RawType        string
	OrderReference string
	Status         string
	Amount         decimal.Decimal
	PaymentMethod  string
	Customer       json.RawMessage
	Payout         json.RawMessage
	Timestamp      string
	// Raw is the body as received, kept for the audit columns.
	Raw json.RawMessage
}

type webhookEnvelope struct {
	EventType      string          `json:"eventType"`
	Event          string          `json:"event"`
	OrderReference string          `json:"orderReference"`
	Status         string          `json:"status"`
	Amount         json.RawMessage `json:"amount"`
	PaymentMethod  string          `json:"paymentMethod"`
	Customer       json.RawMessage `json:"customer"`
	Payout         json.RawMessage `json:"payout"`
	Timestamp      string          `json:"timestamp"`
	Data           json.RawMessage `json:"data"`
}

// ParseWebhookEvent decodes a callback body. Some deliveries nest the payment
// fields under "data"; those are lifted to the top level.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookEvent{}, ErrMalformedEvent
	}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		var inner webhookEnvelope
		if err := json.Unmarshal(env.Data, &inner); err == nil {
			if env.OrderReference == "" {
				env.OrderReference = inner.OrderReference
			}
			if env.Status == "" {
				env.Status = inner.Status
			}
			if len(env.Amount) == 0 {
				env.Amount = inner.Amount
			}
			if env.PaymentMethod == "" {
				env.PaymentMethod = inner.PaymentMethod
			}
			if len(env.Customer) == 0 {
				env.Customer = inner.Customer
			}
			if len(env.Payout) == 0 {
				env.Payout = inner.Payout
			}
		}
	}
	rawType := env.EventType
	if rawType == "" {
		rawType = env.Event
	}
	ev := WebhookEvent{
		Kind:           ParseEventKind(rawType),
		RawType:        rawType,
		OrderReference: strings.TrimSpace(env.OrderReference),
		Status:         env.Status,
		Amount:         ParseAmount(env.Amount),
		PaymentMethod:  env.PaymentMethod,
		Customer:       env.Customer,
		Payout:         env.Payout,
		Timestamp:      env.Timestamp,
		Raw:            json.RawMessage(body),
	}
	if ev.OrderReference == "" {
		return ev, ErrMissingReference
	}
	return ev, nil
}

// ParseAmount accepts a JSON number or a numeric string. Anything else is zero.
func ParseAmount(raw json.RawMessage) decimal.Decimal {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
