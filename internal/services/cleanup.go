package services

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/stock-monitor/internal/metrics"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/sirupsen/logrus"
)

// StatsLogger is a cache that can log its hit and miss counters.
type StatsLogger interface {
	LogStats()
}

// CleanupService purges expired archive rows on a fixed interval.
type CleanupService struct {
	archive ArchiveStore
	views   ViewCache
	caches  []StatsLogger
	metrics *metrics.Registry
	logger  *logrus.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewCleanupService creates a new cleanup service. caches have their stats
// logged after each run.
func NewCleanupService(archive ArchiveStore, views ViewCache, m *metrics.Registry, logger *logrus.Logger, caches ...StatsLogger) *CleanupService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		archive: archive,
		views:   views,
		caches:  caches,
		metrics: m,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then every interval.
func (c *CleanupService) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	c.logger.WithField("interval", interval.String()).Info("Starting archive cleanup service")
	c.started = true

	go func() {
		defer close(c.done)
		if _, err := c.RunCleanup(c.ctx); err != nil {
			c.logger.WithError(err).Error("Initial archive cleanup failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.RunCleanup(c.ctx); err != nil {
					c.logger.WithError(err).Error("Archive cleanup failed")
				}
			}
		}
	}()
}

// Stop stops the cleanup loop and waits for it to exit.
func (c *CleanupService) Stop() {
	c.logger.Info("Stopping archive cleanup service")
	c.cancel()
	if !c.started {
		return
	}
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
	}
}

// RunCleanup deletes expired archive rows and returns how many were removed.
func (c *CleanupService) RunCleanup(ctx context.Context) (int64, error) {
	purged, err := c.archive.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired archive entries: %w", err)
	}
	c.metrics.RecordPurge(purged)
	if purged > 0 {
		c.logger.WithField("purged", purged).Info("Purged expired archive entries")
		invalidateViews(ctx, c.views, c.logger, models.ViewArchive)
	}
	for _, cache := range c.caches {
		cache.LogStats()
	}
	return purged, nil
}
