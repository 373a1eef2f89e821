// Package app builds the object graph shared by the HTTP server and the
// operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"dukasell/config"
	"dukasell/internal/database"
	"dukasell/internal/jobs"
	"dukasell/internal/metrics"
	"dukasell/internal/repository"
	"dukasell/internal/service"
	"dukasell/internal/ws"
	"dukasell/pkg/payment"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Repositories struct {
	Users         *repository.UserRepository
	Transactions  *repository.TransactionRepository
	Admins        *repository.AdminRepository
	Notifications *repository.NotificationRepository
	AuditLogs     *repository.AuditLogRepository
	Settings      *repository.SettingRepository
}

type Services struct {
	Auth          *service.AuthService
	Credits       *service.CreditService
	Payments      *service.PaymentService
	Payouts       *service.PayoutService
	Status        *service.StatusService
	Reconciler    *service.Reconciler
	Notifications *service.NotificationService
	Google        *service.GoogleTokenVerifier
}

type App struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Gateway payment.Gateway
	Hub     *ws.Hub
	Repos   Repositories
	Svc     Services
	Sweeper *jobs.PendingSweeper
}

// New connects to the database (and Redis when configured) and wires every
// service. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := database.SeedAdmin(ctx, db, cfg.Admin, log); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}

	a := &App{Config: cfg, Log: log, DB: db, Hub: ws.NewHub()}

	var tokens payment.TokenCache = payment.NewMemoryTokenCache()
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		tokens = payment.NewRedisTokenCache(a.Redis, cfg.Redis.TokenKey)
	}
	a.Gateway = newGateway(cfg, tokens, log)

	a.Repos = Repositories{
		Users:         repository.NewUserRepository(db),
		Transactions:  repository.NewTransactionRepository(db),
		Admins:        repository.NewAdminRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		AuditLogs:     repository.NewAuditLogRepository(db),
		Settings:      repository.NewSettingRepository(db),
	}

	rates := payment.NewRateSource(cfg.Credits.ExchangeRateURL, cfg.Credits.USDRateFallback, cfg.Credits.ExchangeRateTTL, log).
		WithStore(a.Repos.Settings)
	var intents payment.IntentFetcher
	if cfg.Stripe.SecretKey != "" {
		intents = payment.NewStripeIntents(cfg.Stripe.SecretKey)
	}
	fcm := service.NewFCMService(ctx, cfg.Firebase.ServiceAccountPath, log)

	r := a.Repos
	notifier := service.NewNotificationService(r.Notifications, r.Users, fcm, a.Hub, log)
	reconciler := service.NewReconciler(db, r.Transactions, r.Users, notifier, log)
	status := service.NewStatusService(r.Transactions, a.Gateway, reconciler, log)
	a.Svc = Services{
		Auth:          service.NewAuthService(cfg, db, r.Users, r.Transactions, r.Admins, log),
		Credits:       service.NewCreditService(db, r.Transactions, r.Users, intents, rates, notifier, log),
		Payments:      service.NewPaymentService(r.Transactions, a.Gateway, rates, log),
		Payouts:       service.NewPayoutService(db, r.Transactions, r.Users, a.Gateway, cfg.Credits.PayoutTZSPerCredit, notifier, log),
		Status:        status,
		Reconciler:    reconciler,
		Notifications: notifier,
		Google:        service.NewGoogleTokenVerifier(cfg.OAuth.GoogleClientID),
	}
	a.Sweeper = jobs.NewPendingSweeper(r.Transactions, status, jobs.SweepConfig{
		Interval:    cfg.Jobs.SweepInterval,
		MinAge:      cfg.Jobs.SweepMinAge,
		Batch:       cfg.Jobs.SweepBatch,
		Concurrency: cfg.Jobs.SweepConcurrency,
	}, log)
	return a, nil
}

func newGateway(cfg *config.Config, tokens payment.TokenCache, log *zap.Logger) payment.Gateway {
	if cfg.ClickPesa.ClientID == "" && cfg.IsDevelopment() {
		log.Warn("CLICKPESA_CLIENT_ID not set, using stub gateway")
		return payment.NewStubGateway()
	}
	cp := payment.NewClickPesaClient(payment.ClickPesaConfig{
		BaseURL:        cfg.ClickPesa.BaseURL,
		ClientID:       cfg.ClickPesa.ClientID,
		APIKey:         cfg.ClickPesa.APIKey,
		ChecksumSecret: cfg.ClickPesa.ChecksumSecret,
		Timeout:        cfg.ClickPesa.Timeout,
		TokenTTL:       cfg.ClickPesa.TokenTTL,
	}, tokens, log)
	cp.OnRequest = func(stage payment.Stage, outcome string, elapsed time.Duration) {
		metrics.RecordGatewayRequest(string(stage), outcome, elapsed.Seconds())
	}
	return cp
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("redis close", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
