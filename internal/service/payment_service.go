package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"dukasell/internal/domain"
	"dukasell/internal/metrics"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateProvider returns TZS per USD and whether the figure is live.
type RateProvider interface {
	USDRate(ctx context.Context) (decimal.Decimal, bool)
}

type CreatePaymentInput struct {
	UserID        uint
	PackageID     string
	PhoneNumber   string
	PaymentMethod domain.PaymentMethod
}

type PaymentResult struct {
	OrderReference   string                   `json:"orderReference"`
	Status           domain.TransactionStatus `json:"status"`
	Package          domain.CreditPackage     `json:"package"`
	Amount           decimal.Decimal          `json:"amount"`
	Currency         string                   `json:"currency"`
	PaymentMethod    domain.PaymentMethod     `json:"paymentMethod"`
	GatewayPaymentID string                   `json:"paymentId,omitempty"`
	Channel          string                   `json:"channel,omitempty"`
	CheckoutURL      string                   `json:"checkoutUrl,omitempty"`
	// Indeterminate is set when the gateway did not answer the initiate call
	// in time. The order stays pending and is settled by webhook or status query.
	Indeterminate bool `json:"indeterminate,omitempty"`
}

// PaymentService creates purchases. It never credits a balance; that only
// happens in the Reconciler.
type PaymentService struct {
	txRepo  *repository.TransactionRepository
	gateway payment.Gateway
	rates   RateProvider
	log     *zap.Logger
}

func NewPaymentService(txRepo *repository.TransactionRepository, gateway payment.Gateway, rates RateProvider, log *zap.Logger) *PaymentService {
	return &PaymentService{txRepo: txRepo, gateway: gateway, rates: rates, log: log.Named("payments")}
}

func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*PaymentResult, error) {
	pkg, ok := domain.LookupPackage(in.PackageID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPackage, in.PackageID)
	}
	method := in.PaymentMethod
	if method == "" {
		method = domain.MethodMobileMoney
	}
	switch method {
	case domain.MethodMobileMoney:
		return s.createMobileMoney(ctx, in, pkg)
	case domain.MethodClickPesaCard:
		return s.createCard(ctx, in, pkg)
	default:
		metrics.RecordPaymentCreated(string(method), "unsupported")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, method)
	}
}

func (s *PaymentService) createMobileMoney(ctx context.Context, in CreatePaymentInput, pkg domain.CreditPackage) (*PaymentResult, error) {
	phone, err := NormalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, err
	}
	t := &models.Transaction{
		UserID:         in.UserID,
		Type:           domain.TypePurchase,
		Credits:        pkg.Credits,
		Amount:         pkg.PriceTZS,
		Currency:       domain.CurrencyTZS,
		OrderReference: NewOrderReference(domain.RefPrefixPurchase, in.UserID),
		Status:         domain.StatusPending,
		PaymentMethod:  domain.MethodMobileMoney,
		PackageID:      pkg.ID,
		PhoneNumber:    phone,
		Description:    pkg.Name,
	}
	if err := s.txRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("order_reference", t.OrderReference), zap.Uint("user_id", in.UserID))
	result := &PaymentResult{
		OrderReference: t.OrderReference,
		Status:         domain.StatusPending,
		Package:        pkg,
		Amount:         t.Amount,
		Currency:       t.Currency,
		PaymentMethod:  t.PaymentMethod,
	}

	if _, err := s.gateway.PreviewPayment(ctx, phone, t.Amount, t.OrderReference); err != nil {
		return s.abandon(ctx, log, t, result, err, false)
	}
	// The push cannot be taken back once sent, so the caller going away must
	// not turn it into a failed row. The client bounds the call with its own timeout.
	push, err := s.gateway.InitiatePayment(context.WithoutCancel(ctx), phone, t.Amount, t.OrderReference)
	if err != nil {
		return s.abandon(ctx, log, t, result, err, true)
	}

	result.GatewayPaymentID = push.ID
	result.Channel = push.Channel
	if err := s.txRepo.SetGatewayPaymentID(context.WithoutCancel(ctx), t.OrderReference, push.ID); err != nil {
		// the webhook keys on the order reference, so this is not fatal
		log.Warn("storing gateway payment id failed", zap.Error(err))
	}
	log.Info("ussd push sent", zap.String("payment_id", push.ID), zap.String("channel", push.Channel))
	metrics.RecordPaymentCreated(string(domain.MethodMobileMoney), "initiated")
	return result, nil
}

func (s *PaymentService) createCard(ctx context.Context, in CreatePaymentInput, pkg domain.CreditPackage) (*PaymentResult, error) {
	rate, live := s.rates.USDRate(ctx)
	usd := payment.ConvertTZSToUSD(pkg.PriceTZS, rate)
	t := &models.Transaction{
		UserID:         in.UserID,
		Type:           domain.TypePurchase,
		Credits:        pkg.Credits,
		Amount:         pkg.PriceTZS,
		Currency:       domain.CurrencyTZS,
		OrderReference: NewOrderReference(domain.RefPrefixPurchase, in.UserID),
		Status:         domain.StatusPending,
		PaymentMethod:  domain.MethodClickPesaCard,
		PackageID:      pkg.ID,
		Description:    fmt.Sprintf("%s (card, USD %s)", pkg.Name, usd.StringFixed(2)),
	}
	if err := s.txRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("order_reference", t.OrderReference), zap.Uint("user_id", in.UserID))
	result := &PaymentResult{
		OrderReference: t.OrderReference,
		Status:         domain.StatusPending,
		Package:        pkg,
		Amount:         usd,
		Currency:       domain.CurrencyUSD,
		PaymentMethod:  t.PaymentMethod,
	}
	log.Debug("card amount converted", zap.String("usd", usd.String()), zap.String("rate", rate.String()), zap.Bool("live_rate", live))

	if _, err := s.gateway.PreviewCardPayment(ctx, usd, t.OrderReference); err != nil {
		return s.abandon(ctx, log, t, result, err, false)
	}
	checkout, err := s.gateway.InitiateCardPayment(context.WithoutCancel(ctx), usd, t.OrderReference, strconv.FormatUint(uint64(in.UserID), 10))
	if err != nil {
		return s.abandon(ctx, log, t, result, err, true)
	}
	result.CheckoutURL = checkout.CardPaymentLink
	log.Info("card checkout created")
	metrics.RecordPaymentCreated(string(domain.MethodClickPesaCard), "initiated")
	return result, nil
}

// abandon settles the pending row after a gateway error. A timed out initiate
// leaves it pending because the gateway may have acted on the request.
func (s *PaymentService) abandon(ctx context.Context, log *zap.Logger, t *models.Transaction, result *PaymentResult, cause error, initiating bool) (*PaymentResult, error) {
	if initiating && payment.IsIndeterminate(cause) {
		log.Warn("gateway outcome unknown, order left pending", zap.Error(cause))
		metrics.RecordPaymentCreated(string(t.PaymentMethod), "indeterminate")
		result.Indeterminate = true
		return result, nil
	}
	log.Warn("gateway rejected payment", zap.Error(cause))
	metrics.RecordPaymentCreated(string(t.PaymentMethod), "failed")
	_, err := s.txRepo.Transition(context.WithoutCancel(ctx), repository.Transition{
		OrderReference: t.OrderReference,
		Type:           domain.TypePurchase,
		From:           domain.StatusPending,
		To:             domain.StatusFailed,
		Updates:        map[string]any{"error": cause.Error()},
	})
	if err != nil && !errors.Is(err, repository.ErrNoMatch) {
		log.Error("marking order failed", zap.Error(err))
	}
	return nil, cause
}
