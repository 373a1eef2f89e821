package service

import (
	"context"
	"encoding/json"
	"fmt"

	"dukasell/internal/domain"
	"dukasell/internal/models"
	"dukasell/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Notifier is told about balance-affecting events after they commit. All
// methods are best effort.
type Notifier interface {
	OnReconciled(ctx context.Context, kind domain.EventKind, t *models.Transaction)
	BonusGranted(ctx context.Context, userID uint, credits int64, reason string)
	BalanceChanged(ctx context.Context, userID uint)
}

// Pusher sends a device push. *FCMService implements it.
type Pusher interface {
	SendToUser(ctx context.Context, fcmToken, notifType, title, body string, data map[string]any) error
}

// Broadcaster reaches the user's open websocket connections.
type Broadcaster interface {
	BroadcastToUser(userID uint, payload interface{})
}

type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	push     Pusher
	hub      Broadcaster
	log      *zap.Logger
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, push Pusher, hub Broadcaster, log *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, push: push, hub: hub, log: log.Named("notify")}
}

// Notify stores an in-app notification and pushes it to the user's device.
func (s *NotificationService) Notify(ctx context.Context, userID uint, notifType, title, body string, data map[string]any) error {
	var raw datatypes.JSON
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	if err := s.repo.Create(ctx, &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   raw,
	}); err != nil {
		return err
	}
	s.sendPush(ctx, userID, notifType, title, body, data)
	return nil
}

func (s *NotificationService) sendPush(ctx context.Context, userID uint, notifType, title, body string, data map[string]any) {
	if s.push == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u.FCMToken == "" {
		return
	}
	_ = s.push.SendToUser(ctx, u.FCMToken, notifType, title, body, data)
}

func (s *NotificationService) OnReconciled(ctx context.Context, kind domain.EventKind, t *models.Transaction) {
	var err error
	data := map[string]any{"orderReference": t.OrderReference}
	switch kind {
	case domain.EventPaymentReceived:
		data["credits"] = t.Credits
		err = s.Notify(ctx, t.UserID, domain.NotifyCreditsAdded, "Credits added",
			fmt.Sprintf("%d credits have been added to your account.", t.Credits), data)
	case domain.EventPaymentFailed:
		err = s.Notify(ctx, t.UserID, domain.NotifyPaymentFailed, "Payment failed",
			"Your payment could not be completed. Please try again.", data)
	case domain.EventPayoutRefunded, domain.EventPayoutReversed:
		data["credits"] = t.Credits
		err = s.Notify(ctx, t.UserID, domain.NotifyPayoutReturned, "Payout returned",
			fmt.Sprintf("Your payout was %s and %d credits were returned.", t.Status, t.Credits), data)
	default:
		return
	}
	if err != nil {
		s.log.Warn("notification failed", zap.Uint("user_id", t.UserID), zap.String("order_reference", t.OrderReference), zap.Error(err))
	}
	s.BalanceChanged(ctx, t.UserID)
}

func (s *NotificationService) BonusGranted(ctx context.Context, userID uint, credits int64, reason string) {
	if err := s.Notify(ctx, userID, domain.NotifyBonus, "Bonus credits",
		fmt.Sprintf("You received %d bonus credits: %s", credits, reason),
		map[string]any{"credits": credits}); err != nil {
		s.log.Warn("notification failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	s.BalanceChanged(ctx, userID)
}

// BalanceChanged pushes the current balance to the user's websocket clients.
func (s *NotificationService) BalanceChanged(ctx context.Context, userID uint) {
	if s.hub == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return
	}
	s.hub.BroadcastToUser(userID, map[string]any{"type": "credits", "credits": u.Credits})
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkRead(ctx, id, userID)
}
