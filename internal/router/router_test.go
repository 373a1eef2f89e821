package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dukasell/config"
	"dukasell/internal/app"
	"dukasell/internal/auth"
	"dukasell/internal/domain"
	"dukasell/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var seq atomic.Int64

type env struct {
	app    *app.App
	engine *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "development", AllowedOrigins: []string{"*"}},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", seq.Add(1)),
		},
		JWT: config.JWTConfig{AccessSecret: "secret", Issuer: "dukasell", AccessExpiry: time.Hour, AdminExpiry: time.Hour},
		Credits: config.CreditsConfig{
			StartingCredits:    5,
			USDRateFallback:    decimal.NewFromInt(2500),
			ExchangeRateURL:    "http://127.0.0.1:1/rates",
			ExchangeRateTTL:    time.Hour,
			PayoutTZSPerCredit: decimal.NewFromInt(1000),
		},
		Admin: config.AdminConfig{Username: "ops", Password: "ops-pass", Name: "Ops", Email: "ops@example.com"},
	}
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return &env{app: a, engine: Setup(a, nil)}
}

func (e *env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *env) user(t *testing.T, credits int64) (*models.User, string) {
	t.Helper()
	u := &models.User{Email: fmt.Sprintf("u%d@example.com", seq.Add(1)), Name: "U", Credits: credits, TotalSpent: decimal.Zero}
	require.NoError(t, e.app.Repos.Users.Create(context.Background(), u))
	tok, err := auth.GenerateAccessToken(&e.app.Config.JWT, u.ID, u.Email, domain.RoleUser, time.Hour)
	require.NoError(t, err)
	return u, tok
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(t, "GET", "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, e.do(t, "GET", "/metrics", "", "").Code)
}

func TestCreditsRequireUserToken(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, "GET", "/api/v1/credits/balance", "", "").Code)

	adminTok, err := auth.GenerateAccessToken(&e.app.Config.JWT, 1, "ops@example.com", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, e.do(t, "GET", "/api/v1/credits/balance", adminTok, "").Code)
}

func TestPurchaseThenWebhookCredits(t *testing.T) {
	e := newEnv(t)
	u, tok := e.user(t, 0)

	w := e.do(t, "POST", "/api/v1/credits/create-payment", tok, `{"packageId":"pack_10","phoneNumber":"0754000111","paymentMethod":"mobile_money"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pay := decode(t, w)["payment"].(map[string]any)
	ref := pay["orderReference"].(string)
	assert.Equal(t, "pending", pay["status"])

	w = e.do(t, "GET", "/api/v1/credits/balance", tok, "")
	assert.EqualValues(t, 0, decode(t, w)["credits"])

	body := fmt.Sprintf(`{"eventType":"PAYMENT RECEIVED","orderReference":%q,"status":"SUCCESS","amount":"12000"}`, ref)
	for range 2 {
		w = e.do(t, "POST", "/webhook/clickpesa", "", body)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = e.do(t, "GET", "/api/v1/credits/balance", tok, "")
	assert.EqualValues(t, 10, decode(t, w)["credits"])

	logs, err := e.app.Repos.AuditLogs.ListByResource(context.Background(), "transaction", ref)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	got, err := e.app.Repos.Users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalSpent.Equal(decimal.NewFromInt(12000)))
}

func TestDeductAndHistory(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, 2)

	w := e.do(t, "POST", "/api/v1/credits/deduct", tok, `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["credits"])

	w = e.do(t, "POST", "/api/v1/credits/deduct", tok, `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "GET", "/api/v1/credits/transactions", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["transactions"], 1)
}

func TestBankDetails(t *testing.T) {
	e := newEnv(t)
	_, tok := e.user(t, 0)

	w := e.do(t, "POST", "/api/v1/credits/save-bank-details", tok, `{"accountNumber":"12345","accountName":"Asha"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "POST", "/api/v1/credits/save-bank-details", tok, `{"accountNumber":"0152123456","accountName":"Asha"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, "GET", "/api/v1/credits/bank-details", tok, "")
	details := decode(t, w)["bankDetails"].(map[string]any)
	assert.Equal(t, "0152****3456", details["accountNumber"])
}

func TestAdminFlow(t *testing.T) {
	e := newEnv(t)
	u, _ := e.user(t, 10)

	w := e.do(t, "POST", "/api/v1/admin/login", "", `{"username":"ops","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, "POST", "/api/v1/admin/login", "", `{"username":"ops","password":"ops-pass"}`)
	require.Equal(t, http.StatusOK, w.Code)
	tok := decode(t, w)["token"].(string)

	w = e.do(t, "GET", "/api/v1/admin/me", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, "POST", fmt.Sprintf("/api/v1/admin/customers/%d/credits", u.ID), tok, `{"credits":5,"reason":"goodwill"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 15, decode(t, w)["credits"])

	w = e.do(t, "POST", "/api/v1/admin/clickpesa-payout", tok, fmt.Sprintf(`{"userId":%d,"credits":3,"phoneNumber":"0754000111"}`, u.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := e.app.Repos.Users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Credits)

	w = e.do(t, "GET", "/api/v1/admin/dashboard", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, "GET", "/api/v1/admin/clickpesa-balance", tok, "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, userTok := e.user(t, 0)
	assert.Equal(t, http.StatusForbidden, e.do(t, "GET", "/api/v1/admin/me", userTok, "").Code)
}

func TestNotificationsAfterBonus(t *testing.T) {
	e := newEnv(t)
	u, tok := e.user(t, 0)
	_, err := e.app.Svc.Credits.AddBonus(context.Background(), u.ID, 3, "Promo")
	require.NoError(t, err)

	w := e.do(t, "GET", "/api/v1/notifications", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["notifications"].([]any)
	require.NotEmpty(t, list)
	id := list[0].(map[string]any)["id"]

	w = e.do(t, "PUT", fmt.Sprintf("/api/v1/notifications/%v/read", id), tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
