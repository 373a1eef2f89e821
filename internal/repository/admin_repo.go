package repository

import (
	"context"
	"time"

	"dukasell/internal/domain"
	"dukasell/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DashboardStats struct {
	TotalUsers         int64           `json:"totalUsers"`
	CompletedPurchases int64           `json:"completedPurchases"`
	PendingOrders      int64           `json:"pendingOrders"`
	FailedOrders       int64           `json:"failedOrders"`
	RevenueTZS         decimal.Decimal `json:"revenueTzs"`
	CreditsOutstanding int64           `json:"creditsOutstanding"`
	OpenPayouts        int64           `json:"openPayouts"`
}

type RevenuePoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var a models.Admin
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&a).Error; err != nil {
		return nil, translate("get admin", err, nil)
	}
	return &a, nil
}

func (r *AdminRepository) GetByID(ctx context.Context, id uint) (*models.Admin, error) {
	var a models.Admin
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate("get admin", err, nil)
	}
	return &a, nil
}

func (r *AdminRepository) Create(ctx context.Context, a *models.Admin) error {
	return translate("create admin", r.db.WithContext(ctx).Create(a).Error, nil)
}

func (r *AdminRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Admin{}).Where("id = ?", id).Update("last_login", at).Error
	return translate("touch admin login", err, nil)
}

func (r *AdminRepository) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := r.db.WithContext(ctx)
	var s DashboardStats
	if err := db.Model(&models.User{}).Count(&s.TotalUsers).Error; err != nil {
		return nil, translate("dashboard", err, nil)
	}
	purchases := func() *gorm.DB { return db.Model(&models.Transaction{}).Where("type = ?", domain.TypePurchase) }
	purchases().Where("status = ?", domain.StatusCompleted).Count(&s.CompletedPurchases)
	purchases().Where("status = ?", domain.StatusPending).Count(&s.PendingOrders)
	purchases().Where("status = ?", domain.StatusFailed).Count(&s.FailedOrders)
	db.Model(&models.Transaction{}).
		Where("type = ? AND status IN ?", domain.TypePayout, []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}).
		Count(&s.OpenPayouts)

	var rev struct{ Total decimal.Decimal }
	purchases().
		Select("COALESCE(SUM(COALESCE(final_amount, amount)), 0) as total").
		Where("status = ? AND currency = ?", domain.StatusCompleted, domain.CurrencyTZS).
		Scan(&rev)
	s.RevenueTZS = rev.Total

	var credits struct{ Total int64 }
	db.Model(&models.User{}).Select("COALESCE(SUM(credits), 0) as total").Scan(&credits)
	s.CreditsOutstanding = credits.Total
	return &s, nil
}

// RevenueByDay returns daily completed TZS purchase revenue for the last N days.
func (r *AdminRepository) RevenueByDay(ctx context.Context, days int) ([]RevenuePoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var points []RevenuePoint
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("DATE(completed_at) as date, COALESCE(SUM(COALESCE(final_amount, amount)), 0) as amount").
		Where("type = ? AND status = ? AND currency = ? AND completed_at >= ?", domain.TypePurchase, domain.StatusCompleted, domain.CurrencyTZS, since).
		Group("DATE(completed_at)").
		Order("date ASC").
		Scan(&points).Error
	if err != nil {
		return nil, translate("revenue by day", err, nil)
	}
	return points, nil
}
