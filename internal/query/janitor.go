package query

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor periodically drops cache entries nobody has read within the GC time.
type Janitor struct {
	cache  *Cache
	cron   *cron.Cron
	logger *zap.Logger
}

func NewJanitor(cache *Cache, interval time.Duration, logger *zap.Logger) (*Janitor, error) {
	if interval < time.Second {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Janitor{
		cache:  cache,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
	schedule := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("schedule cache gc: %w", err)
	}
	return j, nil
}

// Sweep runs one collection.
func (j *Janitor) Sweep() {
	if j == nil || j.cache == nil {
		return
	}
	if n := j.cache.Collect(); n > 0 {
		j.logger.Debug("cache entries collected", zap.Int("count", n))
	}
}

func (j *Janitor) Start() {
	if j == nil {
		return
	}
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep.
func (j *Janitor) Stop(ctx context.Context) error {
	if j == nil {
		return nil
	}
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
