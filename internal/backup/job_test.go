package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/smolentsev/shopbot/pkg/db/models"
	"github.com/smolentsev/shopbot/pkg/logger"
)

func setupBackupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS user_accounts (
  id INTEGER PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  is_admin INTEGER NOT NULL DEFAULT 0,
  is_partner INTEGER NOT NULL DEFAULT 0,
  commission_percent REAL NOT NULL DEFAULT 0,
  balance REAL NOT NULL DEFAULT 0,
  last_seen_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_lines (
  user_id INTEGER NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  promo_code TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME,
  PRIMARY KEY (user_id, product_id)
);`,
		`CREATE TABLE IF NOT EXISTS promo_codes (
  code TEXT PRIMARY KEY,
  percent REAL NOT NULL DEFAULT 0,
  uses_left INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS referral_links (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  partner_id INTEGER NOT NULL,
  referred_id INTEGER NOT NULL UNIQUE,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS referred_orders (
  order_id TEXT PRIMARY KEY,
  partner_id INTEGER NOT NULL,
  buyer_id INTEGER NOT NULL,
  amount REAL NOT NULL,
  commission REAL NOT NULL DEFAULT 0,
  items TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, ddl := range statements {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type sysChatNotifier struct {
	sent map[int64][]string
}

func (s *sysChatNotifier) Send(_ context.Context, userID int64, text string) error {
	if s.sent == nil {
		s.sent = map[int64][]string{}
	}
	s.sent[userID] = append(s.sent[userID], text)
	return nil
}

const testSysChatID int64 = 777

func newBackupJob(t *testing.T, db *gorm.DB, notifier *sysChatNotifier, dir string) *Job {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "backup-test", Level: zerolog.Disabled})
	job, err := NewJob(JobParams{
		DB:        db,
		Notifier:  notifier,
		Logger:    logg,
		Dir:       dir,
		SysChatID: testSysChatID,
		Interval:  4 * time.Hour,
	})
	require.NoError(t, err)
	return job
}

func TestBackupExportsTablesAndReports(t *testing.T) {
	db := setupBackupTestDB(t)
	require.NoError(t, db.Create(&models.UserAccount{ID: 10, Username: "alice", IsPartner: true, Balance: 30}).Error)
	require.NoError(t, db.Create(&models.PromoCode{Code: "SAVE10", Percent: 10, UsesLeft: 5}).Error)
	require.NoError(t, db.Create(&models.ReferredOrder{OrderID: "abc123", PartnerID: 10, BuyerID: 55, Amount: 100}).Error)

	dir := t.TempDir()
	notifier := &sysChatNotifier{}
	job := newBackupJob(t, db, notifier, dir)

	require.NoError(t, job.Run(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var snap snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap.UserAccounts, 1)
	assert.Equal(t, "alice", snap.UserAccounts[0].Username)
	require.Len(t, snap.PromoCodes, 1)
	require.Len(t, snap.ReferredOrders, 1)
	assert.Equal(t, "abc123", snap.ReferredOrders[0].OrderID)

	require.Len(t, notifier.sent[testSysChatID], 1)
	assert.Contains(t, notifier.sent[testSysChatID][0], entries[0].Name())
}

func TestBackupSkipsUntilIntervalElapses(t *testing.T) {
	db := setupBackupTestDB(t)
	dir := t.TempDir()
	notifier := &sysChatNotifier{}
	job := newBackupJob(t, db, notifier, dir)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	job.clock = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	// the cron cadence fires again long before the backup is due
	now = base.Add(10 * time.Minute)
	require.NoError(t, job.Run(context.Background()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no second export inside the interval")

	now = base.Add(4 * time.Hour)
	require.NoError(t, job.Run(context.Background()))
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBackupFailureReportsToSysChat(t *testing.T) {
	db := setupBackupTestDB(t)
	require.NoError(t, db.Exec("DROP TABLE promo_codes").Error)

	notifier := &sysChatNotifier{}
	job := newBackupJob(t, db, notifier, t.TempDir())

	err := job.Run(context.Background())
	require.Error(t, err)
	require.Len(t, notifier.sent[testSysChatID], 1)
	assert.Contains(t, notifier.sent[testSysChatID][0], "backup failed")

	// a failed run stays due and retries on the next cycle
	require.NoError(t, db.Exec(`CREATE TABLE promo_codes (
  code TEXT PRIMARY KEY,
  percent REAL NOT NULL DEFAULT 0,
  uses_left INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	require.NoError(t, job.Run(context.Background()))
}
