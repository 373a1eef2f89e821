package handler

import (
	"context"
	"fmt"
	"net/http"

	"dukasell/internal/middleware"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IDTokenVerifier checks a Google ID token. *service.GoogleTokenVerifier implements it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*service.GoogleProfile, error)
}

type AuthHandler struct {
	authSvc   *service.AuthService
	verifier  IDTokenVerifier
	oauth     *GoogleOAuth
	auditRepo *repository.AuditLogRepository
	log       *zap.Logger
}

func NewAuthHandler(authSvc *service.AuthService, verifier IDTokenVerifier, oauth *GoogleOAuth, auditRepo *repository.AuditLogRepository, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, verifier: verifier, oauth: oauth, auditRepo: auditRepo, log: log.Named("auth")}
}

// Google handles POST /auth/google with an ID token from the mobile SDK.
func (h *AuthHandler) Google(c *gin.Context) {
	var req struct {
		IDToken string `json:"idToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	profile, err := h.verifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		h.log.Info("google token rejected", zap.Error(err))
		respondError(c, service.ErrInvalidGoogleToken)
		return
	}
	h.login(c, *profile, "google_id_token")
}

// Redirect handles GET /auth/google/redirect for browser sign-in.
func (h *AuthHandler) Redirect(c *gin.Context) {
	if !h.oauth.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	state := h.oauth.NewState()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// Callback handles GET /auth/google/callback.
func (h *AuthHandler) Callback(c *gin.Context) {
	if !h.oauth.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	want, err := c.Cookie(oauthStateCookie)
	if err != nil || want == "" || want != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	profile, err := h.oauth.Profile(c.Request.Context(), code)
	if err != nil {
		h.log.Warn("google code exchange failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "google sign-in failed"})
		return
	}
	h.login(c, *profile, "google_oauth")
}

func (h *AuthHandler) login(c *gin.Context, profile service.GoogleProfile, via string) {
	res, err := h.authSvc.LoginWithGoogle(c.Request.Context(), profile)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.auditRepo != nil {
		_ = h.auditRepo.Create(context.WithoutCancel(c.Request.Context()), &models.AuditLog{
			ActorID:    &res.User.ID,
			ActorType:  "user",
			Action:     fmt.Sprintf("%s_login", via),
			Resource:   "auth",
			ResourceID: fmt.Sprint(res.User.ID),
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": res.Token, "user": res.User, "isNewUser": res.IsNew})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.authSvc.Me(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// SetFCMToken handles PUT /auth/fcm-token.
func (h *AuthHandler) SetFCMToken(c *gin.Context) {
	var req struct {
		Token string `json:"fcmToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	if err := h.authSvc.SetFCMToken(c.Request.Context(), middleware.GetUserID(c), req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
