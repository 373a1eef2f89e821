package repository

import (
	"context"
	"testing"

	"dukasell/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingUpsert(t *testing.T) {
	repo := NewSettingRepository(testutil.NewDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Set(ctx, "k", "one"))
	require.NoError(t, repo.Set(ctx, "k", "two"))
	v, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestUSDRateRoundTrip(t *testing.T) {
	repo := NewSettingRepository(testutil.NewDB(t))
	ctx := context.Background()

	_, err := repo.LastUSDRate(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SaveUSDRate(ctx, decimal.RequireFromString("2650.5")))
	rate, err := repo.LastUSDRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2650.5", rate.String())
}
