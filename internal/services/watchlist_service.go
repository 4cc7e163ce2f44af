package services

import (
	"context"
	"time"

	"github.com/irfndi/stock-monitor/internal/metrics"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/sirupsen/logrus"
)

// WatchlistService applies client mutations: it normalizes tickers,
// serializes writes per ticker, calls the stores and drops stale views.
type WatchlistService struct {
	watchlist WatchlistStore
	archive   ArchiveStore
	views     ViewCache
	locks     *KeyedMutex
	maxBatch  int
	metrics   *metrics.Registry
	logger    *logrus.Logger
	now       func() time.Time
}

// NewWatchlistService creates a WatchlistService. views and m may be nil.
func NewWatchlistService(
	watchlist WatchlistStore,
	archive ArchiveStore,
	views ViewCache,
	locks *KeyedMutex,
	maxBatch int,
	m *metrics.Registry,
	logger *logrus.Logger,
) *WatchlistService {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WatchlistService{
		watchlist: watchlist,
		archive:   archive,
		views:     views,
		locks:     locks,
		maxBatch:  maxBatch,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Add puts ticker on the watchlist, promoting it from the archive if needed.
// created is false when the ticker was already active.
func (s *WatchlistService) Add(ctx context.Context, raw string) (models.WatchlistItem, bool, error) {
	ticker, err := models.NormalizeTicker(raw)
	if err != nil {
		return models.WatchlistItem{}, false, err
	}

	unlock := s.locks.Lock(ticker)
	item, created, err := s.watchlist.Add(ctx, ticker)
	unlock()
	s.metrics.RecordMutation(string(models.MutationAdd), err)
	if err != nil {
		return models.WatchlistItem{}, false, err
	}
	if created {
		s.invalidate(ctx, models.MutationAdd)
		s.logger.WithField("ticker", ticker).Info("Added ticker to watchlist")
	}
	return item.WithStatus(), created, nil
}

// Remove moves ticker to the archive as a manual delete.
func (s *WatchlistService) Remove(ctx context.Context, raw string) error {
	ticker, err := models.NormalizeTicker(raw)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(ticker)
	err = s.watchlist.Remove(ctx, ticker)
	unlock()
	s.metrics.RecordMutation(string(models.MutationRemove), err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, models.MutationRemove)
	s.logger.WithField("ticker", ticker).Info("Removed ticker from watchlist")
	return nil
}

// RemoveBatch archives every listed ticker that is active. The size limit and
// ticker formats are checked before anything is removed.
func (s *WatchlistService) RemoveBatch(ctx context.Context, raw []string) (models.BatchRemoveResult, error) {
	if s.maxBatch > 0 && len(raw) > s.maxBatch {
		return models.BatchRemoveResult{}, utils.BatchTooLarge(len(raw), s.maxBatch)
	}
	tickers, err := models.NormalizeTickers(raw)
	if err != nil {
		return models.BatchRemoveResult{}, err
	}
	if len(tickers) == 0 {
		return models.BatchRemoveResult{RemovedTickers: []string{}, NotFoundTickers: []string{}}, nil
	}

	unlock := s.locks.Lock(tickers...)
	result, err := s.watchlist.RemoveBatch(ctx, tickers)
	unlock()
	s.metrics.RecordMutation(string(models.MutationRemove), err)
	if err != nil {
		return models.BatchRemoveResult{}, err
	}
	if result.Removed > 0 {
		s.invalidate(ctx, models.MutationRemove)
	}
	s.logger.WithFields(logrus.Fields{
		"removed":   result.Removed,
		"not_found": result.NotFound,
	}).Info("Batch removed tickers from watchlist")
	return result, nil
}

// SetFavourite sets the favourite flag on an active ticker.
func (s *WatchlistService) SetFavourite(ctx context.Context, raw string, favourite bool) error {
	ticker, err := models.NormalizeTicker(raw)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(ticker)
	err = s.watchlist.SetFavourite(ctx, ticker, favourite)
	unlock()
	s.metrics.RecordMutation(string(models.MutationToggleFavourite), err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, models.MutationToggleFavourite)
	return nil
}

// DeleteArchived permanently deletes an archived ticker.
func (s *WatchlistService) DeleteArchived(ctx context.Context, raw string) error {
	ticker, err := models.NormalizeTicker(raw)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(ticker)
	err = s.archive.Remove(ctx, ticker)
	unlock()
	s.metrics.RecordMutation(string(models.MutationDeleteArchived), err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, models.MutationDeleteArchived)
	s.logger.WithField("ticker", ticker).Info("Deleted ticker from archive")
	return nil
}

// List returns the active watchlist with derived statuses, served from the
// view cache when possible.
func (s *WatchlistService) List(ctx context.Context) ([]models.WatchlistItem, error) {
	var gen int64
	var cacheable bool
	if s.views != nil {
		if items, ok := s.views.GetWatchlist(ctx); ok {
			return items, nil
		}
		// Read before the store so a write committed meanwhile voids the fill.
		gen, cacheable = s.views.Generation(ctx, models.ViewWatchlist)
	}

	items, err := s.watchlist.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = items[i].WithStatus()
	}
	if cacheable {
		s.views.SetWatchlist(ctx, gen, items)
	}
	return items, nil
}

// ListArchive returns archived items that have not expired.
func (s *WatchlistService) ListArchive(ctx context.Context) ([]models.ArchivedWatchlistItem, error) {
	var gen int64
	var cacheable bool
	if s.views != nil {
		if items, ok := s.views.GetArchive(ctx); ok {
			return s.unexpired(items), nil
		}
		gen, cacheable = s.views.Generation(ctx, models.ViewArchive)
	}

	items, err := s.archive.List(ctx)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.views.SetArchive(ctx, gen, items)
	}
	return items, nil
}

// unexpired drops rows that expired while the cached view was live.
func (s *WatchlistService) unexpired(items []models.ArchivedWatchlistItem) []models.ArchivedWatchlistItem {
	now := s.now()
	out := items[:0]
	for _, item := range items {
		if item.ExpiresAt.After(now) {
			out = append(out, item)
		}
	}
	return out
}

func (s *WatchlistService) invalidate(ctx context.Context, m models.Mutation) {
	invalidateViews(ctx, s.views, s.logger, models.InvalidatedViews(m)...)
}

// invalidateViews drops views after a committed write. A failure is logged;
// the view TTL bounds how long a stale copy can be served.
func invalidateViews(ctx context.Context, views ViewCache, logger *logrus.Logger, vs ...models.View) {
	if views == nil {
		return
	}
	if err := views.Invalidate(ctx, vs...); err != nil {
		logger.WithError(err).WithField("views", models.JoinViews(vs)).Warn("Failed to invalidate cached views")
	}
}
