package service

import (
	"context"
	"errors"
	"fmt"

	"dukasell/internal/domain"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PayoutInput struct {
	UserID      uint
	Credits     int64
	PhoneNumber string
}

type PayoutReceipt struct {
	OrderReference   string                   `json:"orderReference"`
	Status           domain.TransactionStatus `json:"status"`
	Credits          int64                    `json:"credits"`
	Amount           decimal.Decimal          `json:"amount"`
	Fee              decimal.Decimal          `json:"fee"`
	Channel          string                   `json:"channel,omitempty"`
	GatewayPaymentID string                   `json:"payoutId,omitempty"`
	Indeterminate    bool                     `json:"indeterminate,omitempty"`
}

// PayoutService turns credits back into mobile money. Credits leave the
// balance before the gateway is called and come back if it refuses.
type PayoutService struct {
	db           *gorm.DB
	txRepo       *repository.TransactionRepository
	userRepo     *repository.UserRepository
	gateway      payment.Gateway
	tzsPerCredit decimal.Decimal
	notifier     Notifier
	log          *zap.Logger
}

func NewPayoutService(db *gorm.DB, txRepo *repository.TransactionRepository, userRepo *repository.UserRepository, gateway payment.Gateway, tzsPerCredit decimal.Decimal, notifier Notifier, log *zap.Logger) *PayoutService {
	return &PayoutService{
		db:           db,
		txRepo:       txRepo,
		userRepo:     userRepo,
		gateway:      gateway,
		tzsPerCredit: tzsPerCredit,
		notifier:     notifier,
		log:          log.Named("payouts"),
	}
}

func (s *PayoutService) RequestPayout(ctx context.Context, in PayoutInput) (*PayoutReceipt, error) {
	if in.Credits <= 0 {
		return nil, ErrInvalidAmount
	}
	phone, err := NormalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, err
	}
	amount := s.tzsPerCredit.Mul(decimal.NewFromInt(in.Credits)).Round(2)
	t := &models.Transaction{
		UserID:         in.UserID,
		Type:           domain.TypePayout,
		Credits:        in.Credits,
		Amount:         amount,
		Currency:       domain.CurrencyTZS,
		OrderReference: NewOrderReference(domain.RefPrefixPayout, in.UserID),
		Status:         domain.StatusPending,
		PaymentMethod:  domain.MethodMobileMoney,
		PhoneNumber:    phone,
		Description:    fmt.Sprintf("Payout of %d credits", in.Credits),
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).DebitCredits(ctx, in.UserID, in.Credits); err != nil {
			return err
		}
		return s.txRepo.WithTx(tx).Create(ctx, t)
	}); err != nil {
		return nil, err
	}

	log := s.log.With(zap.String("order_reference", t.OrderReference), zap.Uint("user_id", in.UserID))
	receipt := &PayoutReceipt{
		OrderReference: t.OrderReference,
		Status:         domain.StatusPending,
		Credits:        in.Credits,
		Amount:         amount,
	}
	s.balanceChanged(ctx, in.UserID)

	preview, err := s.gateway.PreviewPayout(ctx, phone, amount, t.OrderReference)
	if err != nil {
		return s.refund(ctx, log, t, err)
	}
	receipt.Fee = preview.Fee
	receipt.Channel = preview.Channel

	// Detached from the caller: a cancelled request must not refund a payout
	// the gateway may already be sending.
	res, err := s.gateway.CreatePayout(context.WithoutCancel(ctx), phone, amount, t.OrderReference)
	if err != nil {
		if payment.IsIndeterminate(err) {
			log.Warn("payout outcome unknown, left pending", zap.Error(err))
			receipt.Indeterminate = true
			return receipt, nil
		}
		return s.refund(ctx, log, t, err)
	}
	receipt.GatewayPaymentID = res.ID
	if res.Channel != "" {
		receipt.Channel = res.Channel
	}
	if err := s.txRepo.SetGatewayPaymentID(context.WithoutCancel(ctx), t.OrderReference, res.ID); err != nil {
		log.Warn("storing payout id failed", zap.Error(err))
	}
	log.Info("payout created", zap.String("payout_id", res.ID), zap.String("amount", amount.String()))
	return receipt, nil
}

// refund fails the payout and returns its credits in one DB transaction. If the
// row already left pending a webhook got there first and owns the outcome.
func (s *PayoutService) refund(ctx context.Context, log *zap.Logger, t *models.Transaction, cause error) (*PayoutReceipt, error) {
	ctx = context.WithoutCancel(ctx)
	log.Warn("payout rejected by gateway", zap.Error(cause))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		failed, err := s.txRepo.WithTx(tx).Transition(ctx, repository.Transition{
			OrderReference: t.OrderReference,
			Type:           domain.TypePayout,
			From:           domain.StatusPending,
			To:             domain.StatusFailed,
			Updates:        map[string]any{"error": cause.Error()},
		})
		if err != nil {
			return err
		}
		return s.userRepo.WithTx(tx).AddCredits(ctx, failed.UserID, failed.Credits)
	})
	switch {
	case errors.Is(err, repository.ErrNoMatch):
		log.Info("payout already settled elsewhere, no refund")
	case err != nil:
		log.Error("payout refund failed", zap.Error(err))
		return nil, errors.Join(cause, err)
	default:
		s.balanceChanged(ctx, t.UserID)
	}
	return nil, cause
}

func (s *PayoutService) balanceChanged(ctx context.Context, userID uint) {
	if s.notifier != nil {
		s.notifier.BalanceChanged(context.WithoutCancel(ctx), userID)
	}
}

// GatewayBalance proxies the merchant account balance for the admin panel.
func (s *PayoutService) GatewayBalance(ctx context.Context) ([]payment.BalanceEntry, error) {
	return s.gateway.GetBalance(ctx)
}
