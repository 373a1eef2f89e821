package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dukasell/config"
	"dukasell/internal/auth"
	"dukasell/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var jwtCfg = &config.JWTConfig{AccessSecret: "test-secret", Issuer: "dukasell", AccessExpiry: time.Hour}

func bearer(t *testing.T, id uint, role string) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(jwtCfg, id, "a@b.co", role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(r *gin.Engine, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(jwtCfg), UserRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c)})
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/me", "Bearer nope").Code)

	w := serve(r, "GET", "/me", bearer(t, 42, domain.RoleUser))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":42}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, "GET", "/me", bearer(t, 1, domain.RoleAdmin)).Code)
}

func TestAdminRequired(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AuthRequired(jwtCfg), AdminRequired(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusForbidden, serve(r, "GET", "/admin", bearer(t, 1, domain.RoleUser)).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "GET", "/admin", bearer(t, 1, domain.RoleAdmin)).Code)
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewRateLimiter(0.001, 2, time.Minute)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "GET", "/x", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, "GET", "/x", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "GET", "/x", "").Code)
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute)
	rl.Allow("1.2.3.4")
	rl.evict(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.visitors)
}

func TestRequestLoggerAndMetrics(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()), Metrics())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "GET", "/ok", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, "GET", "/missing", "").Code)
}

func TestRespondBindError(t *testing.T) {
	type body struct {
		Credits int64  `json:"credits" binding:"required,gt=0"`
		Phone   string `json:"phoneNumber" binding:"required"`
	}
	r := gin.New()
	r.POST("/b", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			RespondBindError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/b", strings.NewReader(`{"credits":0}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation failed")
	assert.Contains(t, w.Body.String(), "Phone is required")

	req = httptest.NewRequest("POST", "/b", strings.NewReader(`{not json`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}
