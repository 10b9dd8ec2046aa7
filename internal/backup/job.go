package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/smolentsev/shopbot/internal/notify"
	"github.com/smolentsev/shopbot/pkg/db/models"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
)

const defaultInterval = 4 * time.Hour

// snapshot is the exported shape of the relational store. The order ledger
// lives in the spreadsheet and backs itself up there.
type snapshot struct {
	CreatedAt      time.Time              `json:"created_at"`
	UserAccounts   []models.UserAccount   `json:"user_accounts"`
	CartLines      []models.CartLine      `json:"cart_lines"`
	PromoCodes     []models.PromoCode     `json:"promo_codes"`
	ReferralLinks  []models.ReferralLink  `json:"referral_links"`
	ReferredOrders []models.ReferredOrder `json:"referred_orders"`
}

// Job periodically exports the relational tables to a timestamped JSON
// file and reports the outcome to the sys chat. It shares the cron cadence
// with the other jobs and skips cycles until its own interval has passed.
type Job struct {
	db        *gorm.DB
	notifier  notify.Notifier
	logg      *logger.Logger
	dir       string
	sysChatID int64
	interval  time.Duration
	clock     func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// JobParams configure the backup job.
type JobParams struct {
	DB        *gorm.DB
	Notifier  notify.Notifier
	Logger    *logger.Logger
	Dir       string
	SysChatID int64
	Interval  time.Duration
}

// NewJob builds the backup job.
func NewJob(params JobParams) (*Job, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dir == "" {
		return nil, fmt.Errorf("backup directory required")
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	return &Job{
		db:        params.DB,
		notifier:  params.Notifier,
		logg:      params.Logger,
		dir:       params.Dir,
		sysChatID: params.SysChatID,
		interval:  params.Interval,
		clock:     time.Now,
	}, nil
}

// Name implements cron.Job.
func (j *Job) Name() string { return "db-backup" }

// Run implements cron.Job. A failed export is reported to the sys chat
// and retried on the next due cycle.
func (j *Job) Run(ctx context.Context) error {
	now := j.clock().UTC()
	if !j.due(now) {
		return nil
	}

	path, err := j.export(ctx, now)
	if err != nil {
		notify.Best(ctx, j.logg, j.notifier, j.sysChatID,
			fmt.Sprintf("Database backup failed: %v", err))
		return err
	}
	j.markRun(now)

	notify.Best(ctx, j.logg, j.notifier, j.sysChatID,
		fmt.Sprintf("Database backup written: %s", path))
	j.logg.Info(j.logg.WithField(ctx, "path", path), "database backup written")
	return nil
}

func (j *Job) due(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun.IsZero() || now.Sub(j.lastRun) >= j.interval
}

func (j *Job) markRun(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = now
}

func (j *Job) export(ctx context.Context, now time.Time) (string, error) {
	snap := snapshot{CreatedAt: now}

	loads := []struct {
		name string
		dest any
	}{
		{"user_accounts", &snap.UserAccounts},
		{"cart_lines", &snap.CartLines},
		{"promo_codes", &snap.PromoCodes},
		{"referral_links", &snap.ReferralLinks},
		{"referred_orders", &snap.ReferredOrders},
	}
	for _, load := range loads {
		if err := j.db.WithContext(ctx).Find(load.dest).Error; err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("reading %s", load.name))
		}
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding backup")
	}

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating backup directory")
	}
	path := filepath.Join(j.dir, fmt.Sprintf("backup_%s.json", now.Format("2006-01-02_15-04-05")))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing backup file")
	}
	return path, nil
}
