package service

import (
	"context"
	"errors"
	"time"

	"dukasell/internal/domain"
	"dukasell/internal/metrics"
	"dukasell/internal/models"
	"dukasell/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome is what a reconciliation did.
type Outcome string

const (
	// OutcomeApplied means a transaction changed state (and possibly a balance).
	OutcomeApplied Outcome = "applied"
	// OutcomeNoOp means nothing was in the expected state: a replay, an
	// unknown reference, or an already terminal transaction.
	OutcomeNoOp Outcome = "noop"
	// OutcomeIgnored means the event kind is not acted on.
	OutcomeIgnored Outcome = "ignored"
)

// Reconciler applies gateway events to the ledger. Each event is applied at
// most once: the status change is a conditional update and the balance change
// shares its DB transaction.
type Reconciler struct {
	db       *gorm.DB
	txRepo   *repository.TransactionRepository
	userRepo *repository.UserRepository
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewReconciler(db *gorm.DB, txRepo *repository.TransactionRepository, userRepo *repository.UserRepository, notifier Notifier, log *zap.Logger) *Reconciler {
	return &Reconciler{
		db:       db,
		txRepo:   txRepo,
		userRepo: userRepo,
		notifier: notifier,
		log:      log.Named("reconciler"),
		now:      time.Now,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, ev domain.WebhookEvent) (Outcome, error) {
	log := r.log.With(zap.String("event", ev.Kind.String()), zap.String("order_reference", ev.OrderReference))

	if ev.Kind == domain.EventUnrecognized || ev.OrderReference == "" {
		log.Info("event ignored", zap.String("raw_type", ev.RawType))
		metrics.RecordWebhookEvent(ev.Kind.String(), string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	var (
		t   *models.Transaction
		err error
	)
	switch ev.Kind {
	case domain.EventPaymentReceived:
		t, err = r.paymentReceived(ctx, ev, log)
	case domain.EventPaymentFailed:
		t, err = r.paymentFailed(ctx, ev)
	case domain.EventPayoutInitiated:
		t, err = r.payoutInitiated(ctx, ev)
	case domain.EventPayoutRefunded:
		t, err = r.payoutReturned(ctx, ev, domain.StatusRefunded)
	case domain.EventPayoutReversed:
		t, err = r.payoutReturned(ctx, ev, domain.StatusReversed)
	}

	if errors.Is(err, repository.ErrNoMatch) {
		log.Info("nothing to apply")
		metrics.RecordWebhookEvent(ev.Kind.String(), string(OutcomeNoOp))
		return OutcomeNoOp, nil
	}
	if err != nil {
		log.Error("reconcile failed", zap.Error(err))
		metrics.RecordWebhookEvent(ev.Kind.String(), "error")
		return "", err
	}

	log.Info("event applied", zap.Uint("user_id", t.UserID), zap.String("status", string(t.Status)), zap.Int64("credits", t.Credits))
	metrics.RecordWebhookEvent(ev.Kind.String(), string(OutcomeApplied))
	switch ev.Kind {
	case domain.EventPaymentReceived:
		metrics.RecordCreditsGranted("purchase", t.Credits)
	case domain.EventPayoutRefunded, domain.EventPayoutReversed:
		metrics.RecordCreditsGranted("payout_returned", t.Credits)
	}
	if r.notifier != nil {
		r.notifier.OnReconciled(context.WithoutCancel(ctx), ev.Kind, t)
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) paymentReceived(ctx context.Context, ev domain.WebhookEvent, log *zap.Logger) (*models.Transaction, error) {
	updates := map[string]any{
		"completed_at": r.now(),
		"webhook_data": rawJSON(ev.Raw),
	}
	if ev.Amount.IsPositive() {
		updates["final_amount"] = decimal.NullDecimal{Decimal: ev.Amount, Valid: true}
	}
	var t *models.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = r.txRepo.WithTx(tx).Transition(ctx, repository.Transition{
			OrderReference: ev.OrderReference,
			Type:           domain.TypePurchase,
			From:           domain.StatusPending,
			To:             domain.StatusCompleted,
			Updates:        updates,
		})
		if err != nil {
			return err
		}
		err = r.userRepo.WithTx(tx).RecordPurchase(ctx, t.UserID, t.Credits, settledAmount(t, ev))
		if errors.Is(err, repository.ErrNotFound) {
			// the transaction is still settled so a replay cannot credit later
			log.Warn("purchase completed for missing user", zap.Uint("user_id", t.UserID))
			return nil
		}
		return err
	})
	return t, err
}

// settledAmount is what the purchase adds to total_spent, in TZS. Card
// checkouts settle in USD, so their package price is used instead.
func settledAmount(t *models.Transaction, ev domain.WebhookEvent) decimal.Decimal {
	if t.PaymentMethod == domain.MethodClickPesaCard || t.Currency != domain.CurrencyTZS {
		return t.Amount
	}
	if ev.Amount.IsPositive() {
		return ev.Amount
	}
	return t.Amount
}

func (r *Reconciler) paymentFailed(ctx context.Context, ev domain.WebhookEvent) (*models.Transaction, error) {
	return r.txRepo.Transition(ctx, repository.Transition{
		OrderReference: ev.OrderReference,
		Type:           domain.TypePurchase,
		From:           domain.StatusPending,
		To:             domain.StatusFailed,
		Updates: map[string]any{
			"error":        "payment failed",
			"webhook_data": rawJSON(ev.Raw),
		},
	})
}

func (r *Reconciler) payoutInitiated(ctx context.Context, ev domain.WebhookEvent) (*models.Transaction, error) {
	return r.txRepo.Transition(ctx, repository.Transition{
		OrderReference: ev.OrderReference,
		Type:           domain.TypePayout,
		From:           domain.StatusPending,
		To:             domain.StatusProcessing,
		Updates:        map[string]any{"payout_data": payoutJSON(ev)},
	})
}

func (r *Reconciler) payoutReturned(ctx context.Context, ev domain.WebhookEvent, to domain.TransactionStatus) (*models.Transaction, error) {
	var t *models.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = r.txRepo.WithTx(tx).Transition(ctx, repository.Transition{
			OrderReference: ev.OrderReference,
			Type:           domain.TypePayout,
			From:           domain.StatusProcessing,
			To:             to,
			Updates:        map[string]any{"payout_data": payoutJSON(ev)},
		})
		if err != nil {
			return err
		}
		err = r.userRepo.WithTx(tx).AddCredits(ctx, t.UserID, t.Credits)
		if errors.Is(err, repository.ErrNotFound) {
			r.log.Warn("payout returned for missing user", zap.Uint("user_id", t.UserID), zap.String("order_reference", t.OrderReference))
			return nil
		}
		return err
	})
	return t, err
}

func rawJSON(b []byte) datatypes.JSON {
	if len(b) == 0 {
		return nil
	}
	return datatypes.JSON(b)
}

func payoutJSON(ev domain.WebhookEvent) datatypes.JSON {
	if len(ev.Payout) > 0 {
		return datatypes.JSON(ev.Payout)
	}
	return rawJSON(ev.Raw)
}
