package database

import (
	"context"
	"testing"

	"dukasell/config"
	"dukasell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func sqliteDB(t *testing.T) *config.DatabaseConfig {
	return &config.DatabaseConfig{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared"}
}

func TestNewDBUnknownDriver(t *testing.T) {
	_, err := NewDB(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	db, err := NewDB(sqliteDB(t))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	ctx := context.Background()
	cfg := config.AdminConfig{Username: "root", Password: "s3cret", Name: "Root"}
	require.NoError(t, SeedAdmin(ctx, db, cfg, zap.NewNop()))

	cfg.Password = "changed"
	require.NoError(t, SeedAdmin(ctx, db, cfg, zap.NewNop()))

	var admins []models.Admin
	require.NoError(t, db.Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.True(t, admins[0].IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins[0].PasswordHash), []byte("s3cret")))
}

func TestSeedAdminSkippedWithoutCredentials(t *testing.T) {
	db, err := NewDB(sqliteDB(t))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, SeedAdmin(context.Background(), db, config.AdminConfig{}, zap.NewNop()))
	var n int64
	db.Model(&models.Admin{}).Count(&n)
	assert.Zero(t, n)
}
