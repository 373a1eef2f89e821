package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"dukasell/internal/domain"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/internal/service"
	"dukasell/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// EventReconciler applies a decoded gateway event. *service.Reconciler implements it.
type EventReconciler interface {
	Reconcile(ctx context.Context, ev domain.WebhookEvent) (service.Outcome, error)
}

type WebhookHandler struct {
	reconciler EventReconciler
	auditRepo  *repository.AuditLogRepository
	secret     string
	log        *zap.Logger
}

// NewWebhookHandler builds the ClickPesa callback handler. An empty secret
// disables signature checks; config refuses that outside development.
func NewWebhookHandler(reconciler EventReconciler, auditRepo *repository.AuditLogRepository, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, auditRepo: auditRepo, secret: secret, log: log.Named("webhook")}
}

// ClickPesa handles POST /webhook/clickpesa. Anything that cannot be acted on
// is acknowledged so the gateway stops retrying; only store failures get a 5xx.
func (h *WebhookHandler) ClickPesa(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "body too large"})
		return
	}
	if h.secret != "" && !payment.VerifySignature(h.secret, body, signatureHeader(c)) {
		h.log.Warn("webhook signature rejected", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid signature"})
		return
	}

	ev, err := domain.ParseWebhookEvent(body)
	if err != nil {
		h.log.Warn("webhook ignored", zap.Error(err), zap.Int("bytes", len(body)))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook received successfully"})
		return
	}

	outcome, err := h.reconciler.Reconcile(c.Request.Context(), ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Webhook processing failed"})
		return
	}
	if outcome == service.OutcomeApplied && h.auditRepo != nil {
		if err := h.auditRepo.Create(context.WithoutCancel(c.Request.Context()), &models.AuditLog{
			ActorType:  "gateway",
			Action:     strings.ToLower(strings.ReplaceAll(ev.Kind.String(), " ", "_")),
			Resource:   "transaction",
			ResourceID: ev.OrderReference,
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}); err != nil {
			h.log.Warn("audit log failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook received successfully"})
}

func signatureHeader(c *gin.Context) string {
	if sig := c.GetHeader("X-ClickPesa-Signature"); sig != "" {
		return sig
	}
	return c.GetHeader("X-Webhook-Signature")
}
