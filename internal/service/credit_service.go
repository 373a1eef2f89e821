package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dukasell/internal/domain"
	"dukasell/internal/metrics"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const historyLimit = 50

var crdbAccount = regexp.MustCompile(`^\d{10}$`)

// CreditService covers every balance change that does not come from the
// gateway: usage, admin bonuses and Stripe confirmations.
type CreditService struct {
	db       *gorm.DB
	txRepo   *repository.TransactionRepository
	userRepo *repository.UserRepository
	intents  payment.IntentFetcher
	rates    RateProvider
	notifier Notifier
	log      *zap.Logger
}

func NewCreditService(db *gorm.DB, txRepo *repository.TransactionRepository, userRepo *repository.UserRepository, intents payment.IntentFetcher, rates RateProvider, notifier Notifier, log *zap.Logger) *CreditService {
	return &CreditService{
		db:       db,
		txRepo:   txRepo,
		userRepo: userRepo,
		intents:  intents,
		rates:    rates,
		notifier: notifier,
		log:      log.Named("credits"),
	}
}

func (s *CreditService) Balance(ctx context.Context, userID uint) (int64, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}

// Deduct spends n credits and records a usage row. The balance never goes
// negative.
func (s *CreditService) Deduct(ctx context.Context, userID uint, n int64, description string) (int64, error) {
	if n <= 0 {
		return 0, ErrInvalidAmount
	}
	if description == "" {
		description = "Used cached photo"
	}
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).DebitCredits(ctx, userID, n); err != nil {
			return err
		}
		return s.txRepo.WithTx(tx).Create(ctx, &models.Transaction{
			UserID:         userID,
			Type:           domain.TypeUsage,
			Credits:        -n,
			Amount:         decimal.Zero,
			Currency:       domain.CurrencyTZS,
			OrderReference: NewOrderReference(domain.RefPrefixUsage, userID),
			Status:         domain.StatusCompleted,
			Description:    description,
			CompletedAt:    &now,
		})
	})
	if err != nil {
		return 0, err
	}
	s.balanceChanged(ctx, userID)
	return s.Balance(ctx, userID)
}

// AddBonus grants credits outside a purchase, e.g. the welcome bonus or an
// admin adjustment.
func (s *CreditService) AddBonus(ctx context.Context, userID uint, credits int64, description string) (int64, error) {
	if credits <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).AddCredits(ctx, userID, credits); err != nil {
			return err
		}
		return s.txRepo.WithTx(tx).Create(ctx, bonusRow(userID, credits, description))
	}); err != nil {
		return 0, err
	}
	metrics.RecordCreditsGranted("bonus", credits)
	if s.notifier != nil {
		s.notifier.BonusGranted(context.WithoutCancel(ctx), userID, credits, description)
	}
	return s.Balance(ctx, userID)
}

func bonusRow(userID uint, credits int64, description string) *models.Transaction {
	now := time.Now()
	return &models.Transaction{
		UserID:         userID,
		Type:           domain.TypeBonus,
		Credits:        credits,
		Amount:         decimal.Zero,
		Currency:       domain.CurrencyTZS,
		OrderReference: NewOrderReference(domain.RefPrefixBonus, userID),
		Status:         domain.StatusCompleted,
		Description:    description,
		CompletedAt:    &now,
	}
}

func (s *CreditService) History(ctx context.Context, userID uint) ([]models.Transaction, error) {
	return s.txRepo.ListByUser(ctx, userID, historyLimit)
}

type BankDetailsInput struct {
	AccountNumber string
	AccountName   string
	BankName      string
}

// SaveBankDetails stores the user's payout account and returns it masked.
func (s *CreditService) SaveBankDetails(ctx context.Context, userID uint, in BankDetailsInput) (*models.BankDetails, error) {
	number := strings.ReplaceAll(strings.TrimSpace(in.AccountNumber), " ", "")
	name := strings.TrimSpace(in.AccountName)
	bank := strings.TrimSpace(in.BankName)
	if bank == "" {
		bank = domain.CRDBBankName
	}
	if number == "" || name == "" {
		return nil, ErrBankDetailsRequired
	}
	if strings.EqualFold(bank, domain.CRDBBankName) && !crdbAccount.MatchString(number) {
		return nil, fmt.Errorf("%w: CRDB account numbers have 10 digits", ErrInvalidBankDetails)
	}
	now := time.Now()
	details := models.BankDetails{
		AccountNumber: number,
		AccountName:   name,
		BankName:      bank,
		IsDefault:     true,
		SavedAt:       &now,
	}
	if err := s.userRepo.SaveBankDetails(ctx, userID, details); err != nil {
		return nil, err
	}
	masked := details.Masked()
	return &masked, nil
}

// BankDetails returns the saved payout account masked, or nil if none is saved.
func (s *CreditService) BankDetails(ctx context.Context, userID uint) (*models.BankDetails, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.BankDetails.Empty() {
		return nil, nil
	}
	masked := u.BankDetails.Masked()
	return &masked, nil
}

func (s *CreditService) ExchangeRate(ctx context.Context) (decimal.Decimal, bool) {
	return s.rates.USDRate(ctx)
}

type StripeConfirmation struct {
	CreditsAdded int64  `json:"creditsAdded"`
	NewBalance   int64  `json:"newBalance"`
	Reference    string `json:"orderReference"`
}

// ConfirmStripePayment credits a succeeded PaymentIntent once. The intent id
// is unique in the ledger, so a second confirmation fails.
func (s *CreditService) ConfirmStripePayment(ctx context.Context, userID uint, intentID string) (*StripeConfirmation, error) {
	if s.intents == nil {
		return nil, ErrStripeNotConfigured
	}
	intent, err := s.intents.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		return nil, ErrPaymentNotCompleted
	}
	// an intent not tagged with its buyer cannot be claimed by anyone
	if intent.Metadata["userId"] != strconv.FormatUint(uint64(userID), 10) {
		return nil, ErrPaymentNotCompleted
	}
	credits, err := strconv.ParseInt(intent.Metadata["credits"], 10, 64)
	if err != nil || credits <= 0 {
		return nil, fmt.Errorf("%w: intent has no credits metadata", ErrInvalidPackage)
	}
	if _, err := s.txRepo.GetByPaymentIntentID(ctx, intent.ID); err == nil {
		return nil, ErrPaymentAlreadyProcessed
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	currency := strings.ToUpper(intent.Currency)
	amount := intent.MajorAmount()
	spentTZS := amount
	if currency == domain.CurrencyUSD {
		rate, _ := s.rates.USDRate(ctx)
		spentTZS = amount.Mul(rate).Round(2)
	}
	now := time.Now()
	id := intent.ID
	t := &models.Transaction{
		UserID:          userID,
		Type:            domain.TypePurchase,
		Credits:         credits,
		Amount:          amount,
		Currency:        currency,
		FinalAmount:     decimal.NullDecimal{Decimal: amount, Valid: true},
		OrderReference:  NewOrderReference(domain.RefPrefixCard, userID),
		Status:          domain.StatusCompleted,
		PaymentMethod:   domain.MethodCard,
		PackageID:       intent.Metadata["packageId"],
		Description:     fmt.Sprintf("%d Credits (Stripe)", credits),
		PaymentIntentID: &id,
		CompletedAt:     &now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.txRepo.WithTx(tx).Create(ctx, t); err != nil {
			return err
		}
		return s.userRepo.WithTx(tx).RecordPurchase(ctx, userID, credits, spentTZS)
	})
	if errors.Is(err, repository.ErrDuplicateIntent) {
		return nil, ErrPaymentAlreadyProcessed
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("stripe payment credited", zap.Uint("user_id", userID), zap.String("intent", intent.ID), zap.Int64("credits", credits))
	metrics.RecordCreditsGranted("stripe", credits)
	s.balanceChanged(ctx, userID)
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &StripeConfirmation{CreditsAdded: credits, NewBalance: balance, Reference: t.OrderReference}, nil
}

func (s *CreditService) balanceChanged(ctx context.Context, userID uint) {
	if s.notifier != nil {
		s.notifier.BalanceChanged(context.WithoutCancel(ctx), userID)
	}
}
