package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// unique name per test so pooled connections share one database
	// without leaking rows between tests
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  name TEXT NOT NULL,
  subscription_status TEXT NOT NULL DEFAULT 'inactive',
  subscription_id TEXT,
  plan_id TEXT,
  customer_id TEXT,
  current_period_end DATETIME,
  remaining_count INTEGER NOT NULL DEFAULT 0,
  short_url TEXT,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(users).Error)
	return db
}

func seedBillingUser(t *testing.T, db *gorm.DB, mutate func(*models.User)) models.User {
	t.Helper()

	user := models.User{
		ID:                 uuid.New(),
		Email:              uuid.NewString() + "@example.com",
		PasswordHash:       "hash",
		Name:               "reader",
		SubscriptionStatus: enums.SubscriptionStatusInactive,
	}
	if mutate != nil {
		mutate(&user)
	}
	require.NoError(t, db.Create(&user).Error)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	return stored
}

func TestUpdateBillingFieldsAppliesFullWrite(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user := seedBillingUser(t, db, nil)
	periodEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	err := repo.UpdateBillingFields(ctx, user.ID, user.UpdatedAt, BillingWrite{
		Status:           enums.SubscriptionStatusActive,
		SubscriptionID:   strPtr("sub_42"),
		CurrentPeriodEnd: &periodEnd,
		RemainingCount:   11,
		ShortURL:         strPtr("https://rzp.io/i/x"),
	})
	require.NoError(t, err)

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.SubscriptionStatus)
	require.NotNil(t, stored.SubscriptionID)
	assert.Equal(t, "sub_42", *stored.SubscriptionID)
	assert.Equal(t, 11, stored.RemainingCount)
	require.NotNil(t, stored.CurrentPeriodEnd)
	assert.True(t, stored.CurrentPeriodEnd.Equal(periodEnd))
	assert.True(t, stored.UpdatedAt.After(user.UpdatedAt))
}

func TestUpdateBillingFieldsDetectsStaleSnapshot(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user := seedBillingUser(t, db, nil)

	stale := user.UpdatedAt.Add(-time.Minute)
	err := repo.UpdateBillingFields(ctx, user.ID, stale, BillingWrite{
		Status: enums.SubscriptionStatusActive,
	})
	require.ErrorIs(t, err, ErrStaleRecord)

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusInactive, stored.SubscriptionStatus)
}

func TestListUsersForReconciliationSkipsSettledRows(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	active := seedBillingUser(t, db, func(u *models.User) {
		u.SubscriptionStatus = enums.SubscriptionStatusActive
		u.SubscriptionID = strPtr("sub_active")
	})
	windingDown := seedBillingUser(t, db, func(u *models.User) {
		u.SubscriptionStatus = enums.SubscriptionStatusCancelled
		u.SubscriptionID = strPtr("sub_winding_down")
		u.RemainingCount = 3
	})
	// settled cancellation and a user who never subscribed stay out of the sweep
	seedBillingUser(t, db, func(u *models.User) {
		u.SubscriptionStatus = enums.SubscriptionStatusCancelled
		u.SubscriptionID = strPtr("sub_settled")
		u.RemainingCount = 0
	})
	seedBillingUser(t, db, nil)

	candidates, err := repo.ListUsersForReconciliation(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	ids := []uuid.UUID{candidates[0].ID, candidates[1].ID}
	assert.Contains(t, ids, active.ID)
	assert.Contains(t, ids, windingDown.ID)
}

func TestListUsersForReconciliationHonorsLimit(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedBillingUser(t, db, func(u *models.User) {
			u.SubscriptionStatus = enums.SubscriptionStatusActive
			u.SubscriptionID = strPtr(uuid.NewString())
		})
	}

	candidates, err := repo.ListUsersForReconciliation(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestFindUserBySubscriptionID(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user := seedBillingUser(t, db, func(u *models.User) {
		u.SubscriptionStatus = enums.SubscriptionStatusUnverified
		u.SubscriptionID = strPtr("sub_lookup")
	})

	found, err := repo.FindUserBySubscriptionID(ctx, "sub_lookup")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.FindUserBySubscriptionID(ctx, "sub_missing")
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}
