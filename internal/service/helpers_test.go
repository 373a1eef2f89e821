package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"dukasell/internal/domain"
	"dukasell/internal/models"
	"dukasell/internal/repository"
	"dukasell/internal/testutil"
	"dukasell/pkg/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu         sync.Mutex
	reconciled []domain.EventKind
	bonuses    []int64
	balances   []uint
}

func (n *recordingNotifier) OnReconciled(_ context.Context, kind domain.EventKind, _ *models.Transaction) {
	n.mu.Lock()
	n.reconciled = append(n.reconciled, kind)
	n.mu.Unlock()
}

func (n *recordingNotifier) BonusGranted(_ context.Context, _ uint, credits int64, _ string) {
	n.mu.Lock()
	n.bonuses = append(n.bonuses, credits)
	n.mu.Unlock()
}

func (n *recordingNotifier) BalanceChanged(_ context.Context, userID uint) {
	n.mu.Lock()
	n.balances = append(n.balances, userID)
	n.mu.Unlock()
}

func (n *recordingNotifier) reconciledCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reconciled)
}

type fixedRate struct{ rate decimal.Decimal }

func (f fixedRate) USDRate(context.Context) (decimal.Decimal, bool) { return f.rate, false }

type fixture struct {
	db       *gorm.DB
	txRepo   *repository.TransactionRepository
	userRepo *repository.UserRepository
	notifier *recordingNotifier
	log      *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	return &fixture{
		db:       db,
		txRepo:   repository.NewTransactionRepository(db),
		userRepo: repository.NewUserRepository(db),
		notifier: &recordingNotifier{},
		log:      zap.NewNop(),
	}
}

func (f *fixture) user(t *testing.T, credits int64) *models.User {
	t.Helper()
	var n int64
	f.db.Model(&models.User{}).Count(&n)
	u := &models.User{
		Email:      fmt.Sprintf("user%d@example.com", n+1),
		Name:       "Test User",
		Credits:    credits,
		TotalSpent: decimal.Zero,
	}
	require.NoError(t, f.userRepo.Create(context.Background(), u))
	return u
}

func (f *fixture) balance(t *testing.T, userID uint) (int64, decimal.Decimal) {
	t.Helper()
	u, err := f.userRepo.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return u.Credits, u.TotalSpent
}

func (f *fixture) pending(t *testing.T, userID uint, typ domain.TransactionType, ref string, credits int64) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		UserID:         userID,
		Type:           typ,
		Credits:        credits,
		Amount:         decimal.NewFromInt(12000),
		Currency:       domain.CurrencyTZS,
		OrderReference: ref,
		Status:         domain.StatusPending,
		PaymentMethod:  domain.MethodMobileMoney,
	}
	require.NoError(t, f.txRepo.Create(context.Background(), tx))
	return tx
}

func (f *fixture) status(t *testing.T, ref string) domain.TransactionStatus {
	t.Helper()
	tx, err := f.txRepo.GetByOrderReference(context.Background(), ref)
	require.NoError(t, err)
	return tx.Status
}

func (f *fixture) reconciler() *Reconciler {
	return NewReconciler(f.db, f.txRepo, f.userRepo, f.notifier, f.log)
}

// cancellingGateway cancels the caller's context while the gateway is handling
// the push or payout, the way a client hanging up mid-request would.
type cancellingGateway struct {
	*payment.StubGateway
	cancel context.CancelFunc
}

func (g *cancellingGateway) InitiatePayment(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*payment.Initiation, error) {
	g.cancel()
	if err := ctx.Err(); err != nil {
		return nil, &payment.GatewayError{Stage: payment.StageInitiate, Err: err}
	}
	return g.StubGateway.InitiatePayment(ctx, phone, amount, orderRef)
}

func (g *cancellingGateway) CreatePayout(ctx context.Context, phone string, amount decimal.Decimal, orderRef string) (*payment.PayoutResult, error) {
	g.cancel()
	if err := ctx.Err(); err != nil {
		return nil, &payment.GatewayError{Stage: payment.StagePayout, Err: err}
	}
	return g.StubGateway.CreatePayout(ctx, phone, amount, orderRef)
}
