package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"dukasell/internal/middleware"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	adminRepo *repository.AdminRepository
	auditRepo *repository.AuditLogRepository
	authSvc   *service.AuthService
	credits   *service.CreditService
	payouts   *service.PayoutService
	status    *service.StatusService
	log       *zap.Logger
}

func NewAdminHandler(
	adminRepo *repository.AdminRepository,
	auditRepo *repository.AuditLogRepository,
	authSvc *service.AuthService,
	credits *service.CreditService,
	payouts *service.PayoutService,
	status *service.StatusService,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		adminRepo: adminRepo,
		auditRepo: auditRepo,
		authSvc:   authSvc,
		credits:   credits,
		payouts:   payouts,
		status:    status,
		log:       log.Named("admin"),
	}
}

// Login handles POST /admin/login.
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	res, err := h.authSvc.AdminLogin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "admin_login", "admin", strconv.FormatUint(uint64(res.Admin.ID), 10), nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "token": res.Token, "admin": res.Admin})
}

// Me handles GET /admin/me.
func (h *AdminHandler) Me(c *gin.Context) {
	a, err := h.authSvc.AdminMe(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": a})
}

// Dashboard handles GET /admin/dashboard.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := h.adminRepo.GetDashboardStats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	revenue, err := h.adminRepo.RevenueByDay(ctx, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "revenue": revenue})
}

// AddCustomerCredits handles POST /admin/customers/:id/credits.
func (h *AdminHandler) AddCustomerCredits(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Credits int64  `json:"credits" binding:"required,gt=0"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "Admin credit"
	}
	balance, err := h.credits.AddBonus(c.Request.Context(), userID, req.Credits, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "grant_credits", "user", strconv.FormatUint(uint64(userID), 10), gin.H{"credits": req.Credits, "reason": req.Reason})
	c.JSON(http.StatusOK, gin.H{"success": true, "credits": balance})
}

// ClickPesaBalance handles GET /admin/clickpesa-balance.
func (h *AdminHandler) ClickPesaBalance(c *gin.Context) {
	balances, err := h.payouts.GatewayBalance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

// ClickPesaPayout handles POST /admin/clickpesa-payout. The user's credits are
// debited and paid out to the phone number.
func (h *AdminHandler) ClickPesaPayout(c *gin.Context) {
	var req struct {
		UserID      uint   `json:"userId" binding:"required"`
		Credits     int64  `json:"credits" binding:"required,gt=0"`
		PhoneNumber string `json:"phoneNumber" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	rec, err := h.payouts.RequestPayout(c.Request.Context(), service.PayoutInput{
		UserID:      req.UserID,
		Credits:     req.Credits,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "request_payout", "transaction", rec.OrderReference, gin.H{"userId": req.UserID, "credits": req.Credits})
	status := http.StatusOK
	if rec.Indeterminate {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"success": true, "payout": rec})
}

// ResolveOrder handles POST /admin/orders/:orderReference/resolve.
func (h *AdminHandler) ResolveOrder(c *gin.Context) {
	ref := c.Param("orderReference")
	res, err := h.status.Resolve(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "resolve_order", "transaction", ref, gin.H{"outcome": res.Outcome, "gatewayStatus": res.GatewayStatus})
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) audit(c *gin.Context, action, resource, resourceID string, meta gin.H) {
	if h.auditRepo == nil {
		return
	}
	entry := &models.AuditLog{
		ActorType:  "admin",
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
	if id := middleware.GetUserID(c); id != 0 {
		entry.ActorID = &id
	} else if resource == "admin" {
		if id, err := strconv.ParseUint(resourceID, 10, 64); err == nil {
			aid := uint(id)
			entry.ActorID = &aid
		}
	}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			entry.Metadata = b
		}
	}
	if err := h.auditRepo.Create(context.WithoutCancel(c.Request.Context()), entry); err != nil {
		h.log.Warn("audit log failed", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}
