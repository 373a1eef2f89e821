package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"dukasell/internal/models"
	"dukasell/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, repo *UserRepository, credits int64) *models.User {
	t.Helper()
	u := &models.User{Email: t.Name() + "@example.com", Name: "Asha", Credits: credits, TotalSpent: decimal.Zero}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestRecordPurchase(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()
	u := seedUser(t, repo, 5)

	require.NoError(t, repo.RecordPurchase(ctx, u.ID, 10, decimal.NewFromInt(12000)))
	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Credits)
	assert.True(t, got.TotalSpent.Equal(decimal.NewFromInt(12000)))

	assert.ErrorIs(t, repo.RecordPurchase(ctx, 999, 1, decimal.Zero), ErrNotFound)
}

func TestZeroCreditUserStaysAtZero(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	u := seedUser(t, repo, 0)
	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Credits)
}

func TestDebitCredits(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()
	u := seedUser(t, repo, 2)

	require.NoError(t, repo.DebitCredits(ctx, u.ID, 2))
	assert.ErrorIs(t, repo.DebitCredits(ctx, u.ID, 1), ErrInsufficientCredits)
	assert.ErrorIs(t, repo.DebitCredits(ctx, 999, 1), ErrNotFound)

	got, _ := repo.GetByID(ctx, u.ID)
	assert.Zero(t, got.Credits)
}

func TestConcurrentAddCredits(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()
	u := seedUser(t, repo, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AddCredits(ctx, u.ID, 3))
		}()
	}
	wg.Wait()
	got, _ := repo.GetByID(ctx, u.ID)
	assert.Equal(t, int64(30), got.Credits)
}

func TestSaveBankDetails(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()
	u := seedUser(t, repo, 0)

	now := time.Now()
	require.NoError(t, repo.SaveBankDetails(ctx, u.ID, models.BankDetails{
		AccountNumber: "0150123456",
		AccountName:   "Asha Mussa",
		BankName:      "CRDB",
		IsDefault:     true,
		SavedAt:       &now,
	}))
	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "0150123456", got.BankDetails.AccountNumber)
	assert.Equal(t, "0150****3456", got.BankDetails.Masked().AccountNumber)
}

func TestGetByGoogleID(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()
	gid := "g-123"
	u := &models.User{Email: "g@example.com", Name: "G", GoogleID: &gid}
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.GetByGoogleID(ctx, "g-123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByGoogleID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
