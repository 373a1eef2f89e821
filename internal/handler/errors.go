package handler

import (
	"errors"
	"net/http"
	"strconv"

	"dukasell/internal/repository"
	"dukasell/internal/service"
	"dukasell/pkg/payment"

	"github.com/gin-gonic/gin"
)

var badRequest = []error{
	service.ErrInvalidPackage,
	service.ErrInvalidPhoneNumber,
	service.ErrUnsupportedPaymentMethod,
	service.ErrInsufficientCredits,
	service.ErrInvalidAmount,
	service.ErrBankDetailsRequired,
	service.ErrInvalidBankDetails,
	service.ErrPaymentNotCompleted,
	service.ErrNotResolvable,
}

// respondError maps a service error onto a status code and a client-safe body.
func respondError(c *gin.Context, err error) {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var ge *payment.GatewayError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrPaymentAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCreds), errors.Is(err, service.ErrInvalidGoogleToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStripeNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &ge):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "payment gateway error",
			"stage": ge.Stage,
			"hint":  "retry with a new payment",
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
