package referrals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/smolentsev/shopbot/pkg/db/models"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
)

func setupReferralsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	links := `
CREATE TABLE IF NOT EXISTS referral_links (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  partner_id INTEGER NOT NULL,
  referred_id INTEGER NOT NULL UNIQUE,
  created_at DATETIME
);`
	orders := `
CREATE TABLE IF NOT EXISTS referred_orders (
  order_id TEXT PRIMARY KEY,
  partner_id INTEGER NOT NULL,
  buyer_id INTEGER NOT NULL,
  amount REAL NOT NULL,
  commission REAL NOT NULL DEFAULT 0,
  items TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(links).Error)
	require.NoError(t, db.Exec(orders).Error)
	return db
}

func TestLinkFirstWins(t *testing.T) {
	repo := NewRepository(setupReferralsTestDB(t))
	ctx := context.Background()

	created, err := repo.Link(ctx, 10, 55)
	require.NoError(t, err)
	assert.True(t, created)

	// second partner tries to claim the same user
	created, err = repo.Link(ctx, 20, 55)
	require.NoError(t, err)
	assert.False(t, created)

	partnerID, err := repo.ReferrerOf(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, int64(10), partnerID, "the first attribution sticks")
}

func TestReferrerOfUnknownUser(t *testing.T) {
	repo := NewRepository(setupReferralsTestDB(t))

	partnerID, err := repo.ReferrerOf(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, int64(0), partnerID)
}

func TestServiceLinkRejectsSelfReferral(t *testing.T) {
	svc, err := NewService(NewRepository(setupReferralsTestDB(t)))
	require.NoError(t, err)

	_, err = svc.Link(context.Background(), 7, 7)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestReferredOrderLifecycle(t *testing.T) {
	repo := NewRepository(setupReferralsTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.RecordOrder(ctx, models.ReferredOrder{
		OrderID:   "a1b2c3",
		PartnerID: 10,
		BuyerID:   55,
		Amount:    180,
		Items:     "Berry; Berry; Mint",
	}))

	order, err := repo.FindByOrderID(ctx, "a1b2c3")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, 0.0, order.Commission, "commission starts at zero until confirmation")

	require.NoError(t, repo.SetCommission(ctx, "a1b2c3", 18))
	order, err = repo.FindByOrderID(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, 18.0, order.Commission)

	missing, err := repo.FindByOrderID(ctx, "ffffff")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPartnerStatsAggregates(t *testing.T) {
	repo := NewRepository(setupReferralsTestDB(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Link(ctx, 10, 55)
	require.NoError(t, err)
	_, err = repo.Link(ctx, 10, 56)
	require.NoError(t, err)

	require.NoError(t, repo.RecordOrder(ctx, models.ReferredOrder{OrderID: "o1", PartnerID: 10, BuyerID: 55, Amount: 100, Commission: 10}))
	require.NoError(t, repo.RecordOrder(ctx, models.ReferredOrder{OrderID: "o2", PartnerID: 10, BuyerID: 56, Amount: 50}))
	require.NoError(t, repo.RecordOrder(ctx, models.ReferredOrder{OrderID: "o3", PartnerID: 99, BuyerID: 70, Amount: 999}))

	stats, err := svc.PartnerStats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ReferredUsers)
	assert.Equal(t, 2, stats.Orders)
	assert.Equal(t, 150.0, stats.OrderAmount)
	assert.Equal(t, 10.0, stats.CommissionPaid)
}
