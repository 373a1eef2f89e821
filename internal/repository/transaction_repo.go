package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dukasell/internal/domain"
	"dukasell/internal/models"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil && isDuplicate(err) && t.PaymentIntentID != nil {
		// both unique columns can collide; find out which one did
		var n int64
		r.db.WithContext(ctx).Model(&models.Transaction{}).Where("payment_intent_id = ?", *t.PaymentIntentID).Count(&n)
		if n > 0 {
			return ErrDuplicateIntent
		}
	}
	return translate("create transaction", err, ErrDuplicateReference)
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate("get transaction", err, nil)
	}
	return &t, nil
}

func (r *TransactionRepository) GetByOrderReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var t models.Transaction
	if err := r.db.WithContext(ctx).Where("order_reference = ?", ref).First(&t).Error; err != nil {
		return nil, translate("get transaction", err, nil)
	}
	return &t, nil
}

func (r *TransactionRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Transaction, error) {
	var t models.Transaction
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&t).Error; err != nil {
		return nil, translate("get transaction", err, nil)
	}
	return &t, nil
}

// ListByUser returns the user's most recent transactions, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.Transaction, error) {
	var list []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, translate("list transactions", err, nil)
	}
	return list, nil
}

// ListPendingBefore returns pending purchases created before cutoff with an id
// above afterID, in id order. Passing the last id seen pages through the backlog.
func (r *TransactionRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, afterID uint, limit int) ([]models.Transaction, error) {
	var list []models.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ? AND id > ?", domain.TypePurchase, domain.StatusPending, cutoff, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, translate("list pending", err, nil)
	}
	return list, nil
}

func (r *TransactionRepository) SetGatewayPaymentID(ctx context.Context, ref, paymentID string) error {
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("order_reference = ?", ref).
		Update("gateway_payment_id", paymentID).Error
	return translate("set gateway payment id", err, nil)
}

// Transition describes a conditional status change. Type narrows the match
// when set.
type Transition struct {
	OrderReference string
	Type           domain.TransactionType
	From           domain.TransactionStatus
	To             domain.TransactionStatus
	Updates        map[string]any
}

// Transition moves a transaction from t.From to t.To with a single conditional
// UPDATE and returns the row as written. ErrNoMatch means the row does not
// exist or is no longer in t.From; callers treat that as already handled.
func (r *TransactionRepository) Transition(ctx context.Context, t Transition) (*models.Transaction, error) {
	if !domain.CanTransition(t.From, t.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.From, t.To)
	}
	updates := make(map[string]any, len(t.Updates)+1)
	for k, v := range t.Updates {
		updates[k] = v
	}
	updates["status"] = t.To

	var out models.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Transaction{}).Where("order_reference = ? AND status = ?", t.OrderReference, t.From)
		if t.Type != "" {
			q = q.Where("type = ?", t.Type)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoMatch
		}
		return tx.Where("order_reference = ?", t.OrderReference).First(&out).Error
	})
	if errors.Is(err, ErrNoMatch) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, translate("transition "+string(t.From)+"->"+string(t.To), err, nil)
	}
	return &out, nil
}

// CountByStatus is used by the admin dashboard.
func (r *TransactionRepository) CountByStatus(ctx context.Context, typ domain.TransactionType, status domain.TransactionStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("type = ? AND status = ?", typ, status).Count(&n).Error
	return n, translate("count transactions", err, nil)
}
