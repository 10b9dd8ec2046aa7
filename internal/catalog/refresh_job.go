package catalog

import (
	"context"
	"fmt"
)

const refreshJobName = "catalog-refresh"

// RefreshJob refreshes the catalog cache on the cron cadence.
type RefreshJob struct {
	cache *Cache
}

// NewRefreshJob builds the cron job around the cache.
func NewRefreshJob(cache *Cache) (*RefreshJob, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	return &RefreshJob{cache: cache}, nil
}

// Name implements cron.Job.
func (j *RefreshJob) Name() string {
	return refreshJobName
}

// Run implements cron.Job.
func (j *RefreshJob) Run(ctx context.Context) error {
	return j.cache.Refresh(ctx)
}
