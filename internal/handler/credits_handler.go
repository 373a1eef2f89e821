package handler

import (
	"net/http"

	"dukasell/internal/domain"
	"dukasell/internal/middleware"
	"dukasell/internal/service"

	"github.com/gin-gonic/gin"
)

type CreditsHandler struct {
	credits  *service.CreditService
	payments *service.PaymentService
	status   *service.StatusService
}

func NewCreditsHandler(credits *service.CreditService, payments *service.PaymentService, status *service.StatusService) *CreditsHandler {
	return &CreditsHandler{credits: credits, payments: payments, status: status}
}

// Balance handles GET /credits/balance.
func (h *CreditsHandler) Balance(c *gin.Context) {
	credits, err := h.credits.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits})
}

// Packages handles GET /credits/packages.
func (h *CreditsHandler) Packages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": domain.Catalog})
}

// Deduct handles POST /credits/deduct.
func (h *CreditsHandler) Deduct(c *gin.Context) {
	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	left, err := h.credits.Deduct(c.Request.Context(), middleware.GetUserID(c), req.Amount, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "credits": left})
}

// CreatePayment handles POST /credits/create-payment. The response never means
// the credits were added; that happens when the gateway calls back.
func (h *CreditsHandler) CreatePayment(c *gin.Context) {
	var req struct {
		PackageID     string `json:"packageId" binding:"required"`
		PhoneNumber   string `json:"phoneNumber"`
		PaymentMethod string `json:"paymentMethod"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	res, err := h.payments.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		UserID:        middleware.GetUserID(c),
		PackageID:     req.PackageID,
		PhoneNumber:   req.PhoneNumber,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if res.Indeterminate {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"success": true, "payment": res})
}

// Transactions handles GET /credits/transactions.
func (h *CreditsHandler) Transactions(c *gin.Context) {
	list, err := h.credits.History(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list})
}

// SaveBankDetails handles POST /credits/save-bank-details.
func (h *CreditsHandler) SaveBankDetails(c *gin.Context) {
	var req struct {
		AccountNumber string `json:"accountNumber" binding:"required"`
		AccountName   string `json:"accountName" binding:"required"`
		BankName      string `json:"bankName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	saved, err := h.credits.SaveBankDetails(c.Request.Context(), middleware.GetUserID(c), service.BankDetailsInput{
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		BankName:      req.BankName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bankDetails": saved})
}

// BankDetails handles GET /credits/bank-details.
func (h *CreditsHandler) BankDetails(c *gin.Context) {
	details, err := h.credits.BankDetails(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bankDetails": details})
}

// ExchangeRate handles GET /credits/exchange-rate.
func (h *CreditsHandler) ExchangeRate(c *gin.Context) {
	rate, live := h.credits.ExchangeRate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"from": domain.CurrencyUSD, "to": domain.CurrencyTZS, "rate": rate, "live": live})
}

// ConfirmPayment handles POST /credits/confirm-payment for Stripe card payments.
func (h *CreditsHandler) ConfirmPayment(c *gin.Context) {
	var req struct {
		PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondBindError(c, err)
		return
	}
	res, err := h.credits.ConfirmStripePayment(c.Request.Context(), middleware.GetUserID(c), req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "creditsAdded": res.CreditsAdded, "credits": res.NewBalance, "orderReference": res.Reference})
}

// RefreshPayment handles POST /credits/payments/:orderReference/refresh. It
// asks the gateway about the caller's own pending order.
func (h *CreditsHandler) RefreshPayment(c *gin.Context) {
	ref := c.Param("orderReference")
	t, err := h.status.Status(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.UserID != middleware.GetUserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	res, err := h.status.Resolve(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
