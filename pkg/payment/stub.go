package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StubGateway is an in-process gateway for development and tests. Every call
// succeeds unless an error is queued for its stage.
type StubGateway struct {
	mu       sync.Mutex
	failures map[Stage]error
	records  map[string][]PaymentRecord
	Calls    []Stage
}

func NewStubGateway() *StubGateway {
	return &StubGateway{
		failures: make(map[Stage]error),
		records:  make(map[string][]PaymentRecord),
	}
}

// FailNext makes the next call at stage return err.
func (s *StubGateway) FailNext(stage Stage, err error) {
	s.mu.Lock()
	s.failures[stage] = err
	s.mu.Unlock()
}

// SetRecords sets what QueryStatus returns for orderRef.
func (s *StubGateway) SetRecords(orderRef string, recs ...PaymentRecord) {
	s.mu.Lock()
	s.records[orderRef] = recs
	s.mu.Unlock()
}

func (s *StubGateway) enter(stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, stage)
	if err, ok := s.failures[stage]; ok {
		delete(s.failures, stage)
		return err
	}
	return nil
}

func stubID() string {
	return "stub_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *StubGateway) PreviewPayment(_ context.Context, _ string, amount decimal.Decimal, _ string) (*Preview, error) {
	if err := s.enter(StagePreview); err != nil {
		return nil, err
	}
	return &Preview{Amount: amount, ActiveMethods: []PaymentChannel{{Name: "M-PESA", Status: "AVAILABLE"}}}, nil
}

func (s *StubGateway) InitiatePayment(_ context.Context, _ string, amount decimal.Decimal, orderRef string) (*Initiation, error) {
	if err := s.enter(StageInitiate); err != nil {
		return nil, err
	}
	return &Initiation{
		ID:                stubID(),
		Status:            "PROCESSING",
		Channel:           "M-PESA",
		OrderReference:    orderRef,
		CollectedAmount:   amount,
		CollectedCurrency: "TZS",
	}, nil
}

func (s *StubGateway) PreviewCardPayment(_ context.Context, amountUSD decimal.Decimal, _ string) (*Preview, error) {
	if err := s.enter(StageCardPreview); err != nil {
		return nil, err
	}
	return &Preview{Amount: amountUSD}, nil
}

func (s *StubGateway) InitiateCardPayment(_ context.Context, _ decimal.Decimal, orderRef, _ string) (*CardCheckout, error) {
	if err := s.enter(StageCardInitiate); err != nil {
		return nil, err
	}
	return &CardCheckout{CardPaymentLink: "https://checkout.stub.local/" + orderRef, ClientID: "stub"}, nil
}

func (s *StubGateway) QueryStatus(_ context.Context, orderRef string) ([]PaymentRecord, error) {
	if err := s.enter(StageQuery); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PaymentRecord(nil), s.records[orderRef]...), nil
}

func (s *StubGateway) GetBalance(_ context.Context) ([]BalanceEntry, error) {
	if err := s.enter(StageBalance); err != nil {
		return nil, err
	}
	return []BalanceEntry{{Currency: "TZS", Balance: decimal.Zero}}, nil
}

func (s *StubGateway) PreviewPayout(_ context.Context, _ string, amount decimal.Decimal, _ string) (*PayoutPreview, error) {
	if err := s.enter(StagePayoutPreview); err != nil {
		return nil, err
	}
	return &PayoutPreview{Amount: amount, Channel: "M-PESA"}, nil
}

func (s *StubGateway) CreatePayout(_ context.Context, _ string, amount decimal.Decimal, orderRef string) (*PayoutResult, error) {
	if err := s.enter(StagePayout); err != nil {
		return nil, err
	}
	return &PayoutResult{ID: stubID(), Status: "PROCESSING", OrderReference: orderRef, Amount: amount, Channel: "M-PESA"}, nil
}

// CallCount returns how many calls reached stage.
func (s *StubGateway) CallCount(stage Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c == stage {
			n++
		}
	}
	return n
}
