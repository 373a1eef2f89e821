package repository

import (
	"context"

	"dukasell/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingUSDRate = "usd_tzs_rate"

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (string, error) {
	var s models.SystemSetting
	if err := r.db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).First(&s).Error; err != nil {
		return "", translate("get setting", err, nil)
	}
	return s.Value, nil
}

// Set inserts or overwrites key.
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value}).Error
	return translate("set setting", err, nil)
}

// LastUSDRate returns the most recent live TZS per USD rate that was saved.
func (r *SettingRepository) LastUSDRate(ctx context.Context) (decimal.Decimal, error) {
	v, err := r.Get(ctx, settingUSDRate)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(v)
}

func (r *SettingRepository) SaveUSDRate(ctx context.Context, rate decimal.Decimal) error {
	return r.Set(ctx, settingUSDRate, rate.String())
}
