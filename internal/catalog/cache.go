package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
)

// Source fetches the full catalog from upstream.
type Source interface {
	FetchAll(ctx context.Context) ([]Item, error)
}

// Cache holds the current catalog snapshot. Readers get a consistent view
// and never block on the upstream fetch; the lock guards only the swap.
type Cache struct {
	source Source
	logg   *logger.Logger
	clock  func() time.Time

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewCache builds an empty cache. Snapshot() is valid before the first
// refresh and returns an empty view.
func NewCache(source Source, logg *logger.Logger) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("catalog source is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Cache{
		source:   source,
		logg:     logg,
		clock:    time.Now,
		snapshot: NewSnapshot(nil, 0, time.Time{}),
	}, nil
}

// Snapshot returns the current catalog view.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Refresh fetches the catalog and swaps the snapshot. On fetch failure the
// previous snapshot stays in place, stale but available.
func (c *Cache) Refresh(ctx context.Context) error {
	items, err := c.source.FetchAll(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refreshing catalog")
	}

	c.mu.Lock()
	version := c.snapshot.Version() + 1
	c.snapshot = NewSnapshot(items, version, c.clock())
	c.mu.Unlock()

	ctx = c.logg.WithFields(ctx, map[string]any{"items": len(items), "version": version})
	c.logg.Info(ctx, "catalog cache refreshed")
	return nil
}
