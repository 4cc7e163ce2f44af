package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// memDB is an in-memory watchlist and archive with the repository semantics.
type memDB struct {
	mu        sync.Mutex
	active    map[string]models.WatchlistItem
	archived  map[string]models.ArchivedWatchlistItem
	retention time.Duration
	now       func() time.Time

	// failWrites makes every write return a storage error.
	failWrites bool
	// beforeWrite runs before a health check write-back.
	beforeWrite func(ticker string)
}

func newMemDB() *memDB {
	return &memDB{
		active:    make(map[string]models.WatchlistItem),
		archived:  make(map[string]models.ArchivedWatchlistItem),
		retention: 30 * 24 * time.Hour,
		now:       func() time.Time { return testNow },
	}
}

func (db *memDB) stores() (*memWatchlist, *memArchive) {
	return &memWatchlist{db}, &memArchive{db}
}

func (db *memDB) storageErr() error {
	return fmt.Errorf("memdb: %w", utils.ErrStorageUnavailable)
}

func (db *memDB) archiveLocked(ticker string, reason models.ArchiveReason, stage *models.Stage) {
	delete(db.active, ticker)
	now := db.now()
	db.archived[ticker] = models.ArchivedWatchlistItem{
		Ticker:      ticker,
		ArchivedAt:  now,
		Reason:      reason,
		FailedStage: stage,
		ExpiresAt:   now.Add(db.retention),
	}
}

type memWatchlist struct{ db *memDB }

func (w *memWatchlist) Add(_ context.Context, ticker string) (models.WatchlistItem, bool, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return models.WatchlistItem{}, false, w.db.storageErr()
	}
	if item, ok := w.db.active[ticker]; ok {
		return item, false, nil
	}
	delete(w.db.archived, ticker)
	item := models.NewWatchlistItem(ticker, w.db.now())
	w.db.active[ticker] = item
	return item, true, nil
}

func (w *memWatchlist) Remove(_ context.Context, ticker string) error {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return w.db.storageErr()
	}
	if _, ok := w.db.active[ticker]; !ok {
		return fmt.Errorf("ticker %s: %w", ticker, utils.ErrNotFound)
	}
	w.db.archiveLocked(ticker, models.ReasonManualDelete, nil)
	return nil
}

func (w *memWatchlist) ArchiveFailed(_ context.Context, ticker string, stage models.Stage) error {
	if w.db.beforeWrite != nil {
		w.db.beforeWrite(ticker)
	}
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return w.db.storageErr()
	}
	if _, ok := w.db.active[ticker]; !ok {
		return fmt.Errorf("ticker %s: %w", ticker, utils.ErrNotFound)
	}
	w.db.archiveLocked(ticker, models.ReasonFailedHealthCheck, models.StagePtr(stage))
	return nil
}

func (w *memWatchlist) RemoveBatch(_ context.Context, tickers []string) (models.BatchRemoveResult, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return models.BatchRemoveResult{}, w.db.storageErr()
	}
	res := models.BatchRemoveResult{RemovedTickers: []string{}, NotFoundTickers: []string{}}
	for _, t := range tickers {
		if _, ok := w.db.active[t]; ok {
			w.db.archiveLocked(t, models.ReasonManualDelete, nil)
			res.RemovedTickers = append(res.RemovedTickers, t)
			continue
		}
		res.NotFoundTickers = append(res.NotFoundTickers, t)
	}
	res.Removed, res.NotFound = len(res.RemovedTickers), len(res.NotFoundTickers)
	return res, nil
}

func (w *memWatchlist) SetFavourite(_ context.Context, ticker string, favourite bool) error {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return w.db.storageErr()
	}
	item, ok := w.db.active[ticker]
	if !ok {
		return fmt.Errorf("ticker %s: %w", ticker, utils.ErrNotFound)
	}
	item.IsFavourite = favourite
	w.db.active[ticker] = item
	return nil
}

func (w *memWatchlist) List(_ context.Context) ([]models.WatchlistItem, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	items := make([]models.WatchlistItem, 0, len(w.db.active))
	for _, item := range w.db.active {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Ticker < items[j].Ticker })
	return items, nil
}

func (w *memWatchlist) MarkAllPending(_ context.Context) (int64, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return 0, w.db.storageErr()
	}
	for t, item := range w.db.active {
		item.LastRefreshStatus = models.RefreshPending
		w.db.active[t] = item
	}
	return int64(len(w.db.active)), nil
}

func (w *memWatchlist) ApplyHealthPass(_ context.Context, ticker string, update models.HealthUpdate) error {
	if w.db.beforeWrite != nil {
		w.db.beforeWrite(ticker)
	}
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return w.db.storageErr()
	}
	item, ok := w.db.active[ticker]
	if !ok {
		return fmt.Errorf("ticker %s: %w", ticker, utils.ErrNotFound)
	}
	now := w.db.now()
	item.LastRefreshStatus = models.RefreshPass
	item.LastRefreshAt = &now
	item.FailedStage = nil
	item.IsLeader = update.IsLeader
	item.PatternFields = update.PatternFields
	item.VolumeFields = update.VolumeFields
	w.db.active[ticker] = item
	return nil
}

func (w *memWatchlist) MarkUnknown(_ context.Context, ticker string) error {
	if w.db.beforeWrite != nil {
		w.db.beforeWrite(ticker)
	}
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if w.db.failWrites {
		return w.db.storageErr()
	}
	item, ok := w.db.active[ticker]
	if !ok {
		return fmt.Errorf("ticker %s: %w", ticker, utils.ErrNotFound)
	}
	now := w.db.now()
	item.LastRefreshStatus = models.RefreshUnknown
	item.LastRefreshAt = &now
	w.db.active[ticker] = item
	return nil
}

type memArchive struct{ db *memDB }

func (a *memArchive) Remove(_ context.Context, ticker string) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if _, ok := a.db.archived[ticker]; !ok {
		return fmt.Errorf("archived ticker %s: %w", ticker, utils.ErrNotFound)
	}
	delete(a.db.archived, ticker)
	return nil
}

func (a *memArchive) List(_ context.Context) ([]models.ArchivedWatchlistItem, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	now := a.db.now()
	items := make([]models.ArchivedWatchlistItem, 0, len(a.db.archived))
	for _, item := range a.db.archived {
		if item.ExpiresAt.After(now) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Ticker < items[j].Ticker })
	return items, nil
}

func (a *memArchive) PurgeExpired(_ context.Context) (int64, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if a.db.failWrites {
		return 0, a.db.storageErr()
	}
	now := a.db.now()
	var n int64
	for t, item := range a.db.archived {
		if !item.ExpiresAt.After(now) {
			delete(a.db.archived, t)
			n++
		}
	}
	return n, nil
}

// recordingViews is a ViewCache that stores views in memory and records invalidations.
type recordingViews struct {
	mu          sync.Mutex
	watchlist   []models.WatchlistItem
	archive     []models.ArchivedWatchlistItem
	hasWatch    bool
	hasArchive  bool
	generations map[models.View]int64
	invalidated [][]models.View
	failInvalid bool
}

func (v *recordingViews) GetWatchlist(context.Context) ([]models.WatchlistItem, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.watchlist, v.hasWatch
}

func (v *recordingViews) SetWatchlist(_ context.Context, gen int64, items []models.WatchlistItem) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.generations[models.ViewWatchlist] != gen {
		return false
	}
	v.watchlist, v.hasWatch = items, true
	return true
}

func (v *recordingViews) GetArchive(context.Context) ([]models.ArchivedWatchlistItem, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.archive, v.hasArchive
}

func (v *recordingViews) SetArchive(_ context.Context, gen int64, items []models.ArchivedWatchlistItem) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.generations[models.ViewArchive] != gen {
		return false
	}
	v.archive, v.hasArchive = items, true
	return true
}

func (v *recordingViews) Generation(_ context.Context, view models.View) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generations[view], true
}

func (v *recordingViews) Invalidate(_ context.Context, views ...models.View) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.invalidated = append(v.invalidated, views)
	if v.failInvalid {
		return fmt.Errorf("redis down: %w", utils.ErrStorageUnavailable)
	}
	if v.generations == nil {
		v.generations = make(map[models.View]int64)
	}
	for _, view := range views {
		v.generations[view]++
		switch view {
		case models.ViewWatchlist:
			v.watchlist, v.hasWatch = nil, false
		case models.ViewArchive:
			v.archive, v.hasArchive = nil, false
		}
	}
	return nil
}

func (v *recordingViews) calls() [][]models.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]models.View, len(v.invalidated))
	copy(out, v.invalidated)
	return out
}

// mockNotifier is a testify mock of Notifier.
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyArchived(ctx context.Context, ticker string, stage models.Stage, reason string) error {
	args := m.Called(ctx, ticker, stage, reason)
	return args.Error(0)
}

func (m *mockNotifier) NotifyBuyReady(ctx context.Context, item models.WatchlistItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func f64(v float64) *float64 { return &v }
func bptr(v bool) *bool      { return &v }
func iptr(v int) *int        { return &v }
