package database

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/jackc/pgx/v5"
)

const archiveColumns = `ticker, archived_at, reason, failed_stage, expires_at`

// ArchiveRepository handles database operations for archived watchlist items.
// Rows expire retention after archived_at. Every read filters expired rows out,
// and PurgeExpired deletes them physically.
type ArchiveRepository struct {
	pool      DatabasePool
	retention time.Duration
	now       func() time.Time
}

// NewArchiveRepository creates a new archive repository.
func NewArchiveRepository(pool DatabasePool, retention time.Duration) *ArchiveRepository {
	return &ArchiveRepository{
		pool:      pool,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Remove permanently deletes an unexpired archive row.
func (r *ArchiveRepository) Remove(ctx context.Context, ticker string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM archived_watchlist_items WHERE ticker = $1 AND expires_at > $2`, ticker, r.now())
	if err != nil {
		return storageError("delete archived item", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticker %s is not in the archive: %w", ticker, utils.ErrNotFound)
	}
	return nil
}

// List returns unexpired archive rows, most recently archived first.
func (r *ArchiveRepository) List(ctx context.Context) ([]models.ArchivedWatchlistItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+archiveColumns+`
		FROM archived_watchlist_items
		WHERE expires_at > $1
		ORDER BY archived_at DESC, ticker
	`, r.now())
	if err != nil {
		return nil, storageError("list archive", err)
	}
	defer rows.Close()

	items := []models.ArchivedWatchlistItem{}
	for rows.Next() {
		item, err := scanArchivedItem(rows)
		if err != nil {
			return nil, storageError("scan archived item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate archive", err)
	}

	return items, nil
}

// PurgeExpired deletes archive rows past their expiry.
//
// Returns:
//
//	int64: Number of rows deleted.
//	error: Error if cleanup fails.
func (r *ArchiveRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM archived_watchlist_items WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, storageError("purge expired archive rows", err)
	}
	return tag.RowsAffected(), nil
}

func upsertArchived(ctx context.Context, q execer, ticker string, reason models.ArchiveReason, stage *models.Stage, archivedAt, expiresAt time.Time) error {
	var failedStage *string
	if stage != nil {
		s := string(*stage)
		failedStage = &s
	}
	_, err := q.Exec(ctx, `
		INSERT INTO archived_watchlist_items (ticker, archived_at, reason, failed_stage, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ticker) DO UPDATE SET
			archived_at = EXCLUDED.archived_at,
			reason = EXCLUDED.reason,
			failed_stage = EXCLUDED.failed_stage,
			expires_at = EXCLUDED.expires_at
	`, ticker, archivedAt, string(reason), failedStage, expiresAt)
	return err
}

func scanArchivedItem(row pgx.Row) (models.ArchivedWatchlistItem, error) {
	var (
		item        models.ArchivedWatchlistItem
		reason      string
		failedStage *string
	)
	if err := row.Scan(&item.Ticker, &item.ArchivedAt, &reason, &failedStage, &item.ExpiresAt); err != nil {
		return models.ArchivedWatchlistItem{}, err
	}
	item.Reason = models.ArchiveReason(reason)
	if failedStage != nil {
		item.FailedStage = models.StagePtr(models.Stage(*failedStage))
	}
	return item, nil
}
