package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/jackc/pgx/v5"
)

const watchlistColumns = `ticker, date_added, is_favourite, is_leader, last_refresh_status,
	last_refresh_at, failed_stage, current_price, pivot_price, pivot_proximity_percent,
	is_at_pivot, has_pullback_setup, vcp_pass, has_pivot, fresh, pattern_age_days,
	days_since_pivot, vol_last, vol_50d_avg, vol_vs_50d_ratio, day_change_pct`

// WatchlistRepository handles database operations for the active watchlist.
// Moves between the watchlist and the archive run in one transaction under a
// per-ticker advisory lock, so a ticker is never in both tables or in neither.
type WatchlistRepository struct {
	pool      DatabasePool
	retention time.Duration
	now       func() time.Time
}

// NewWatchlistRepository creates a new watchlist repository.
//
// Parameters:
//
//	pool: The database connection pool.
//	retention: How long archived rows stay visible.
//
// Returns:
//
//	*WatchlistRepository: The initialized repository.
func NewWatchlistRepository(pool DatabasePool, retention time.Duration) *WatchlistRepository {
	return &WatchlistRepository{
		pool:      pool,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Add inserts ticker with PENDING defaults, promoting it out of the archive
// in the same transaction. Re-adding an active ticker returns the existing
// row and created=false.
//
// Parameters:
//
//	ctx: Context.
//	ticker: Canonical ticker.
//
// Returns:
//
//	models.WatchlistItem: The active item.
//	bool: True if a new row was created.
//	error: Error if operation fails.
func (r *WatchlistRepository) Add(ctx context.Context, ticker string) (models.WatchlistItem, bool, error) {
	var (
		item    models.WatchlistItem
		created bool
	)

	err := r.withTickerTx(ctx, []string{ticker}, func(tx pgx.Tx) error {
		existing, err := scanWatchlistItem(tx.QueryRow(ctx,
			`SELECT `+watchlistColumns+` FROM watchlist_items WHERE ticker = $1`, ticker))
		if err == nil {
			item = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return storageError("look up watchlist item", err)
		}

		// Promotion ignores expiry: any archive row for the ticker goes.
		if _, err := tx.Exec(ctx, `DELETE FROM archived_watchlist_items WHERE ticker = $1`, ticker); err != nil {
			return storageError("promote archived item", err)
		}

		item = models.NewWatchlistItem(ticker, r.now())
		_, err = tx.Exec(ctx, `
			INSERT INTO watchlist_items (ticker, date_added, is_favourite, is_leader, last_refresh_status)
			VALUES ($1, $2, false, false, $3)
		`, item.Ticker, item.DateAdded, string(item.LastRefreshStatus))
		if err != nil {
			return storageError("insert watchlist item", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return models.WatchlistItem{}, false, err
	}

	return item, created, nil
}

// Remove deletes ticker from the watchlist and archives it as MANUAL_DELETE.
func (r *WatchlistRepository) Remove(ctx context.Context, ticker string) error {
	return r.moveToArchive(ctx, ticker, models.ReasonManualDelete, nil)
}

// ArchiveFailed deletes ticker from the watchlist and archives it as
// FAILED_HEALTH_CHECK with the stage that failed.
func (r *WatchlistRepository) ArchiveFailed(ctx context.Context, ticker string, stage models.Stage) error {
	return r.moveToArchive(ctx, ticker, models.ReasonFailedHealthCheck, &stage)
}

func (r *WatchlistRepository) moveToArchive(ctx context.Context, ticker string, reason models.ArchiveReason, stage *models.Stage) error {
	return r.withTickerTx(ctx, []string{ticker}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM watchlist_items WHERE ticker = $1`, ticker)
		if err != nil {
			return storageError("delete watchlist item", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("ticker %s is not on the watchlist: %w", ticker, utils.ErrNotFound)
		}

		archivedAt := r.now()
		if err := upsertArchived(ctx, tx, ticker, reason, stage, archivedAt, archivedAt.Add(r.retention)); err != nil {
			return storageError("archive watchlist item", err)
		}
		return nil
	})
}

// RemoveBatch removes every ticker present on the watchlist and archives each
// as MANUAL_DELETE, all in one transaction. Tickers must already be canonical
// and distinct. Absent tickers are reported, not treated as errors.
func (r *WatchlistRepository) RemoveBatch(ctx context.Context, tickers []string) (models.BatchRemoveResult, error) {
	result := models.BatchRemoveResult{
		RemovedTickers:  []string{},
		NotFoundTickers: []string{},
	}
	if len(tickers) == 0 {
		return result, nil
	}

	removed := make(map[string]struct{}, len(tickers))
	err := r.withTickerTx(ctx, tickers, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM watchlist_items WHERE ticker = ANY($1) RETURNING ticker`, tickers)
		if err != nil {
			return storageError("delete watchlist items", err)
		}
		defer rows.Close()

		var gone []string
		for rows.Next() {
			var ticker string
			if err := rows.Scan(&ticker); err != nil {
				return storageError("scan removed ticker", err)
			}
			removed[ticker] = struct{}{}
			gone = append(gone, ticker)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storageError("iterate removed tickers", err)
		}
		if len(gone) == 0 {
			return nil
		}

		archivedAt := r.now()
		_, err = tx.Exec(ctx, `
			INSERT INTO archived_watchlist_items (ticker, archived_at, reason, failed_stage, expires_at)
			SELECT t, $2, $3, NULL, $4 FROM unnest($1::text[]) AS t
			ON CONFLICT (ticker) DO UPDATE SET
				archived_at = EXCLUDED.archived_at,
				reason = EXCLUDED.reason,
				failed_stage = EXCLUDED.failed_stage,
				expires_at = EXCLUDED.expires_at
		`, gone, archivedAt, string(models.ReasonManualDelete), archivedAt.Add(r.retention))
		if err != nil {
			return storageError("archive watchlist items", err)
		}
		return nil
	})
	if err != nil {
		return models.BatchRemoveResult{}, err
	}

	for _, ticker := range tickers {
		if _, ok := removed[ticker]; ok {
			result.RemovedTickers = append(result.RemovedTickers, ticker)
		} else {
			result.NotFoundTickers = append(result.NotFoundTickers, ticker)
		}
	}
	result.Removed = len(result.RemovedTickers)
	result.NotFound = len(result.NotFoundTickers)
	return result, nil
}

// SetFavourite sets is_favourite on an active item. Setting the current value again succeeds.
func (r *WatchlistRepository) SetFavourite(ctx context.Context, ticker string, favourite bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE watchlist_items SET is_favourite = $2 WHERE ticker = $1`, ticker, favourite)
	if err != nil {
		return storageError("update favourite flag", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticker %s is not on the watchlist: %w", ticker, utils.ErrNotFound)
	}
	return nil
}

// List returns every active item, oldest first.
func (r *WatchlistRepository) List(ctx context.Context) ([]models.WatchlistItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+watchlistColumns+` FROM watchlist_items ORDER BY date_added, ticker`)
	if err != nil {
		return nil, storageError("list watchlist", err)
	}
	defer rows.Close()

	items := []models.WatchlistItem{}
	for rows.Next() {
		item, err := scanWatchlistItem(rows)
		if err != nil {
			return nil, storageError("scan watchlist item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate watchlist", err)
	}

	return items, nil
}

// MarkAllPending sets every active item to PENDING when a refresh job is accepted.
func (r *WatchlistRepository) MarkAllPending(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE watchlist_items SET last_refresh_status = $1`, string(models.RefreshPending))
	if err != nil {
		return 0, storageError("mark watchlist pending", err)
	}
	return tag.RowsAffected(), nil
}

// ApplyHealthPass records a fully passing health check: PASS, a fresh
// timestamp, no failed stage and every pattern and volume field.
// ErrNotFound means the ticker left the watchlist during the pass.
func (r *WatchlistRepository) ApplyHealthPass(ctx context.Context, ticker string, update models.HealthUpdate) error {
	p, v := update.PatternFields, update.VolumeFields
	tag, err := r.pool.Exec(ctx, `
		UPDATE watchlist_items SET
			last_refresh_status = $2,
			last_refresh_at = $3,
			failed_stage = NULL,
			is_leader = $4,
			current_price = $5,
			pivot_price = $6,
			pivot_proximity_percent = $7,
			is_at_pivot = $8,
			has_pullback_setup = $9,
			vcp_pass = $10,
			has_pivot = $11,
			fresh = $12,
			pattern_age_days = $13,
			days_since_pivot = $14,
			vol_last = $15,
			vol_50d_avg = $16,
			vol_vs_50d_ratio = $17,
			day_change_pct = $18
		WHERE ticker = $1
	`,
		ticker, string(models.RefreshPass), r.now(), update.IsLeader,
		p.CurrentPrice, p.PivotPrice, p.PivotProximityPercent, p.IsAtPivot,
		p.HasPullbackSetup, p.VCPPass, p.HasPivot, p.Fresh, p.PatternAgeDays,
		p.DaysSincePivot, v.VolLast, v.Vol50dAvg, v.VolVs50dRatio, v.DayChangePct,
	)
	if err != nil {
		return storageError("apply health check result", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticker %s is not on the watchlist: %w", ticker, utils.ErrNotFound)
	}
	return nil
}

// MarkUnknown records an evaluation error. Pattern fields keep their last values.
func (r *WatchlistRepository) MarkUnknown(ctx context.Context, ticker string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE watchlist_items SET last_refresh_status = $2, last_refresh_at = $3
		WHERE ticker = $1
	`, ticker, string(models.RefreshUnknown), r.now())
	if err != nil {
		return storageError("mark watchlist item unknown", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticker %s is not on the watchlist: %w", ticker, utils.ErrNotFound)
	}
	return nil
}

// withTickerTx runs fn in a transaction holding the advisory lock of every ticker.
// Locks are taken in sorted order so concurrent batches cannot deadlock.
func (r *WatchlistRepository) withTickerTx(ctx context.Context, tickers []string, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageError("begin transaction", err)
	}

	if _, err := tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtext(t))
		FROM (SELECT DISTINCT unnest($1::text[]) AS t ORDER BY t) AS locked
	`, tickers); err != nil {
		_ = tx.Rollback(ctx)
		return storageError("lock tickers", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageError("commit transaction", err)
	}
	return nil
}

func scanWatchlistItem(row pgx.Row) (models.WatchlistItem, error) {
	var (
		item        models.WatchlistItem
		status      string
		failedStage *string
	)
	err := row.Scan(
		&item.Ticker,
		&item.DateAdded,
		&item.IsFavourite,
		&item.IsLeader,
		&status,
		&item.LastRefreshAt,
		&failedStage,
		&item.CurrentPrice,
		&item.PivotPrice,
		&item.PivotProximityPercent,
		&item.IsAtPivot,
		&item.HasPullbackSetup,
		&item.VCPPass,
		&item.HasPivot,
		&item.Fresh,
		&item.PatternAgeDays,
		&item.DaysSincePivot,
		&item.VolLast,
		&item.Vol50dAvg,
		&item.VolVs50dRatio,
		&item.DayChangePct,
	)
	if err != nil {
		return models.WatchlistItem{}, err
	}

	item.LastRefreshStatus = models.RefreshStatus(status)
	if failedStage != nil {
		item.FailedStage = models.StagePtr(models.Stage(*failedStage))
	}
	return item, nil
}
