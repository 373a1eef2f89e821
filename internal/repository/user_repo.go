package repository

import (
	"context"
	"time"

	"dukasell/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	return translate("create user", r.db.WithContext(ctx).Create(u).Error, nil)
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate("get user", err, nil)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate("get user", err, nil)
	}
	return &u, nil
}

func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&u).Error; err != nil {
		return nil, translate("get user", err, nil)
	}
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	return translate("update user", r.db.WithContext(ctx).Save(u).Error, nil)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
	return translate("touch last login", err, nil)
}

func (r *UserRepository) SetFCMToken(ctx context.Context, id uint, token string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("fcm_token", token).Error
	return translate("set fcm token", err, nil)
}

// AddCredits increments the balance relative to its current value.
func (r *UserRepository) AddCredits(ctx context.Context, id uint, credits int64) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Update("credits", gorm.Expr("credits + ?", credits))
	if res.Error != nil {
		return translate("add credits", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPurchase adds credits and grows total_spent in one statement.
func (r *UserRepository) RecordPurchase(ctx context.Context, id uint, credits int64, spent decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"credits":     gorm.Expr("credits + ?", credits),
		"total_spent": gorm.Expr("total_spent + ?", spent),
	})
	if res.Error != nil {
		return translate("record purchase", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitCredits decrements the balance only if it covers n. A miss is either
// an unknown user or ErrInsufficientCredits.
func (r *UserRepository) DebitCredits(ctx context.Context, id uint, n int64) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND credits >= ?", id, n).
		Update("credits", gorm.Expr("credits - ?", n))
	if res.Error != nil {
		return translate("debit credits", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientCredits
	}
	return nil
}

func (r *UserRepository) SaveBankDetails(ctx context.Context, id uint, b models.BankDetails) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"bank_account_number": b.AccountNumber,
		"bank_account_name":   b.AccountName,
		"bank_bank_name":      b.BankName,
		"bank_is_default":     b.IsDefault,
		"bank_saved_at":       b.SavedAt,
	})
	if res.Error != nil {
		return translate("save bank details", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, translate("count users", err, nil)
}

// OutstandingCredits sums every user's balance.
func (r *UserRepository) OutstandingCredits(ctx context.Context) (int64, error) {
	var out struct{ Total int64 }
	err := r.db.WithContext(ctx).Model(&models.User{}).Select("COALESCE(SUM(credits), 0) as total").Scan(&out).Error
	return out.Total, translate("sum credits", err, nil)
}
