package services

import (
	"context"

	"github.com/irfndi/stock-monitor/internal/models"
)

// WatchlistStore is the active watchlist persistence used by the services.
// database.WatchlistRepository implements it.
type WatchlistStore interface {
	Add(ctx context.Context, ticker string) (models.WatchlistItem, bool, error)
	Remove(ctx context.Context, ticker string) error
	RemoveBatch(ctx context.Context, tickers []string) (models.BatchRemoveResult, error)
	SetFavourite(ctx context.Context, ticker string, favourite bool) error
	List(ctx context.Context) ([]models.WatchlistItem, error)
	MarkAllPending(ctx context.Context) (int64, error)
	ApplyHealthPass(ctx context.Context, ticker string, update models.HealthUpdate) error
	MarkUnknown(ctx context.Context, ticker string) error
	ArchiveFailed(ctx context.Context, ticker string, stage models.Stage) error
}

// ArchiveStore is the archive persistence. database.ArchiveRepository implements it.
type ArchiveStore interface {
	Remove(ctx context.Context, ticker string) error
	List(ctx context.Context) ([]models.ArchivedWatchlistItem, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// ViewCache caches the two list views. cache.ViewCache implements it.
// A view read under generation gen is only stored while gen is current.
type ViewCache interface {
	GetWatchlist(ctx context.Context) ([]models.WatchlistItem, bool)
	SetWatchlist(ctx context.Context, gen int64, items []models.WatchlistItem) bool
	GetArchive(ctx context.Context) ([]models.ArchivedWatchlistItem, bool)
	SetArchive(ctx context.Context, gen int64, items []models.ArchivedWatchlistItem) bool
	Generation(ctx context.Context, view models.View) (int64, bool)
	Invalidate(ctx context.Context, views ...models.View) error
}

// JobStore persists refresh job records. cache.JobStore implements it.
type JobStore interface {
	Save(ctx context.Context, job models.RefreshJob) error
	Get(ctx context.Context, id string) (models.RefreshJob, error)
	Recent(ctx context.Context, limit int) ([]models.RefreshJob, error)
}

// Notifier receives lifecycle notices from the health check.
type Notifier interface {
	NotifyArchived(ctx context.Context, ticker string, stage models.Stage, reason string) error
	NotifyBuyReady(ctx context.Context, item models.WatchlistItem) error
}
