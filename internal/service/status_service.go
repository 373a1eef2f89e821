package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dukasell/internal/domain"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/pkg/payment"

	"go.uber.org/zap"
)

// Resolution is the result of asking the gateway about a pending order.
type Resolution struct {
	OrderReference string                   `json:"orderReference"`
	GatewayStatus  string                   `json:"gatewayStatus,omitempty"`
	Outcome        Outcome                  `json:"outcome"`
	Status         domain.TransactionStatus `json:"status"`
}

// StatusService settles purchases whose webhook never arrived by querying the
// gateway. Whatever it learns is fed through the Reconciler, so a late webhook
// and a status query can never both credit.
type StatusService struct {
	txRepo     *repository.TransactionRepository
	gateway    payment.Gateway
	reconciler *Reconciler
	log        *zap.Logger
}

func NewStatusService(txRepo *repository.TransactionRepository, gateway payment.Gateway, reconciler *Reconciler, log *zap.Logger) *StatusService {
	return &StatusService{txRepo: txRepo, gateway: gateway, reconciler: reconciler, log: log.Named("status")}
}

// Status returns the stored transaction.
func (s *StatusService) Status(ctx context.Context, orderRef string) (*models.Transaction, error) {
	return s.txRepo.GetByOrderReference(ctx, orderRef)
}

func (s *StatusService) Resolve(ctx context.Context, orderRef string) (*Resolution, error) {
	t, err := s.txRepo.GetByOrderReference(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	res := &Resolution{OrderReference: orderRef, Outcome: OutcomeNoOp, Status: t.Status}
	if t.Type != domain.TypePurchase {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotResolvable, orderRef, t.Type)
	}
	if t.Status != domain.StatusPending {
		return res, nil
	}

	records, err := s.gateway.QueryStatus(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	rec, ok := latestRecord(records, orderRef)
	if !ok {
		return res, nil
	}
	res.GatewayStatus = rec.Status

	kind := kindForStatus(rec.Status)
	if kind == domain.EventUnrecognized {
		s.log.Debug("order still open at gateway", zap.String("order_reference", orderRef), zap.String("status", rec.Status))
		return res, nil
	}
	raw, _ := json.Marshal(rec)
	outcome, err := s.reconciler.Reconcile(ctx, domain.WebhookEvent{
		Kind:           kind,
		RawType:        "STATUS QUERY " + rec.Status,
		OrderReference: orderRef,
		Status:         rec.Status,
		Amount:         rec.CollectedAmount,
		PaymentMethod:  rec.Channel,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Raw:            raw,
	})
	if err != nil {
		return nil, err
	}
	res.Outcome = outcome
	if t, err = s.txRepo.GetByOrderReference(ctx, orderRef); err == nil {
		res.Status = t.Status
	}
	return res, nil
}

func latestRecord(records []payment.PaymentRecord, orderRef string) (payment.PaymentRecord, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].OrderReference == "" || records[i].OrderReference == orderRef {
			return records[i], true
		}
	}
	return payment.PaymentRecord{}, false
}

func kindForStatus(status string) domain.EventKind {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "SETTLED", "COMPLETED":
		return domain.EventPaymentReceived
	case "FAILED", "REJECTED", "CANCELLED":
		return domain.EventPaymentFailed
	}
	return domain.EventUnrecognized
}
