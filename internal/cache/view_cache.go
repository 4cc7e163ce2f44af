package cache

import (
	"context"
	"time"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// viewGenerationPrefix keys the per-view counters. It sits outside the view
// prefix so Reset keeps them.
const viewGenerationPrefix = "monitor_view_gen:"

// ViewCache is the read-through cache of the active and archive list views.
// Writers invalidate views through Invalidate using models.InvalidatedViews.
// Each view carries a generation counter; readers fill the cache only with a
// snapshot taken under the generation they read before querying the store.
type ViewCache struct {
	store  *RedisJSONCache
	logger *logrus.Logger
}

// NewViewCache creates a view cache with the given TTL.
func NewViewCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *ViewCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ViewCache{
		store:  NewRedisJSONCache(redisClient, ttl, "monitor_view:", logger),
		logger: logger,
	}
}

// GetWatchlist returns the cached active list.
func (v *ViewCache) GetWatchlist(ctx context.Context) ([]models.WatchlistItem, bool) {
	var items []models.WatchlistItem
	if !v.store.Get(ctx, string(models.ViewWatchlist), &items) {
		return nil, false
	}
	return items, true
}

// Generation returns the current generation of view. ok is false when Redis
// cannot be read, and the caller should not fill the cache.
func (v *ViewCache) Generation(ctx context.Context, view models.View) (int64, bool) {
	gen, err := v.store.Version(ctx, generationKey(view))
	if err != nil {
		v.logger.WithError(err).WithField("view", string(view)).Warn("Redis error reading view generation")
		return 0, false
	}
	return gen, true
}

// SetWatchlist caches the active list read under generation gen.
// It is dropped when the view was invalidated since.
func (v *ViewCache) SetWatchlist(ctx context.Context, gen int64, items []models.WatchlistItem) bool {
	return v.store.SetIfVersion(ctx, string(models.ViewWatchlist), generationKey(models.ViewWatchlist), gen, items)
}

// GetArchive returns the cached archive list.
func (v *ViewCache) GetArchive(ctx context.Context) ([]models.ArchivedWatchlistItem, bool) {
	var items []models.ArchivedWatchlistItem
	if !v.store.Get(ctx, string(models.ViewArchive), &items) {
		return nil, false
	}
	return items, true
}

// SetArchive caches the archive list read under generation gen.
func (v *ViewCache) SetArchive(ctx context.Context, gen int64, items []models.ArchivedWatchlistItem) bool {
	return v.store.SetIfVersion(ctx, string(models.ViewArchive), generationKey(models.ViewArchive), gen, items)
}

// Invalidate bumps the generation of the given views and drops them.
func (v *ViewCache) Invalidate(ctx context.Context, views ...models.View) error {
	if len(views) == 0 {
		return nil
	}
	keys := make([]string, len(views))
	gens := make([]string, len(views))
	for i, view := range views {
		keys[i] = string(view)
		gens[i] = generationKey(view)
	}
	return v.store.BumpAndDelete(ctx, gens, keys...)
}

// Stats returns hit and miss counters.
func (v *ViewCache) Stats() CacheStats {
	return v.store.GetStats()
}

// Reset drops every cached view.
func (v *ViewCache) Reset(ctx context.Context) error {
	return v.store.Clear(ctx)
}

// LogStats logs hit and miss counters.
func (v *ViewCache) LogStats() {
	v.store.LogStats()
}

func generationKey(view models.View) string {
	return viewGenerationPrefix + string(view)
}
