package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
)

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS user_accounts (
  id INTEGER PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  is_admin INTEGER NOT NULL DEFAULT 0,
  is_partner INTEGER NOT NULL DEFAULT 0,
  commission_percent REAL NOT NULL DEFAULT 0,
  balance REAL NOT NULL DEFAULT 0,
  last_seen_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func TestTouchCreatesThenUpdates(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Touch(ctx, 100, "alice", first))

	later := first.Add(2 * time.Hour)
	require.NoError(t, repo.Touch(ctx, 100, "alice_new", later))

	account, err := repo.Find(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "alice_new", account.Username)
	require.NotNil(t, account.LastSeenAt)
	assert.True(t, account.LastSeenAt.Equal(later))
}

func TestAdjustBalanceAccumulates(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Touch(ctx, 1, "p", time.Now().UTC()))

	require.NoError(t, repo.AdjustBalance(ctx, 1, 12.5))
	require.NoError(t, repo.AdjustBalance(ctx, 1, 7.5))
	require.NoError(t, repo.AdjustBalance(ctx, 1, -5))

	account, err := repo.Find(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, account.Balance, 1e-9)
}

func TestPartnerLifecycle(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	svc, err := NewService(repo, 999)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Touch(ctx, 42, "bob"))

	require.NoError(t, svc.MakePartner(ctx, PartnerInput{UserID: 42, Percent: 12}))
	account, err := repo.Find(ctx, 42)
	require.NoError(t, err)
	assert.True(t, account.IsPartner)
	assert.Equal(t, 12.0, account.CommissionPercent)

	require.NoError(t, svc.SetCommissionPercent(ctx, 42, 20))
	account, err = repo.Find(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 20.0, account.CommissionPercent)

	require.NoError(t, svc.RemovePartner(ctx, 42))
	account, err = repo.Find(ctx, 42)
	require.NoError(t, err)
	assert.False(t, account.IsPartner)
	assert.Equal(t, 0.0, account.CommissionPercent)
}

func TestMakePartnerRejectsBadPercentAndUnknownUser(t *testing.T) {
	svc, err := NewService(NewRepository(setupUsersTestDB(t)), 999)
	require.NoError(t, err)
	ctx := context.Background()

	err = svc.MakePartner(ctx, PartnerInput{UserID: 1, Percent: 150})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	err = svc.MakePartner(ctx, PartnerInput{UserID: 1, Percent: 10})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestIsAdminOperatorOverride(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	svc, err := NewService(repo, 999)
	require.NoError(t, err)
	ctx := context.Background()

	isAdmin, err := svc.IsAdmin(ctx, 999)
	require.NoError(t, err)
	assert.True(t, isAdmin, "the configured operator is always an admin")

	isAdmin, err = svc.IsAdmin(ctx, 5)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	require.NoError(t, svc.Touch(ctx, 5, "eve"))
	require.NoError(t, svc.SetAdmin(ctx, 5, true))
	isAdmin, err = svc.IsAdmin(ctx, 5)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestListAndCounts(t *testing.T) {
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, repo.Touch(ctx, i, "u", base.Add(time.Duration(i)*time.Hour)))
	}
	require.NoError(t, repo.SetPartner(ctx, 2, true, 10))

	page, err := repo.List(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(1), page[0].ID)

	partners, err := repo.ListPartners(ctx)
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, int64(2), partners[0].ID)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	seen, err := repo.CountSeenSince(ctx, base.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), seen)
}
