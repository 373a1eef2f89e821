package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"dukasell/config"
	"dukasell/internal/service"
	"dukasell/pkg/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var seq atomic.Int64

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "development"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:app_test_%d?mode=memory&cache=shared", seq.Add(1)),
		},
		JWT: config.JWTConfig{AccessSecret: "secret", AccessExpiry: time.Hour, AdminExpiry: time.Hour},
		Credits: config.CreditsConfig{
			StartingCredits:    5,
			USDRateFallback:    decimal.NewFromInt(2500),
			ExchangeRateURL:    "http://127.0.0.1:1/rates",
			ExchangeRateTTL:    time.Hour,
			PayoutTZSPerCredit: decimal.NewFromInt(1000),
		},
		Admin: config.AdminConfig{Username: "admin", Password: "admin-pass", Name: "Admin", Email: "admin@example.com"},
	}
}

func TestNewDevelopmentUsesStubGateway(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &payment.StubGateway{}, a.Gateway)
	assert.Nil(t, a.Redis)
	assert.NotNil(t, a.Sweeper)

	admin, err := a.Repos.Admins.GetByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsActive)
}

func TestNewWithoutStripeKeyRejectsCardConfirm(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Svc.Credits.ConfirmStripePayment(context.Background(), 1, "pi_123")
	assert.ErrorIs(t, err, service.ErrStripeNotConfigured)
}

func TestNewProductionUsesClickPesa(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Env = "production"
	cfg.ClickPesa.ClientID = "id"
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &payment.ClickPesaClient{}, a.Gateway)
}
