package models

import (
	"time"
)

// RefreshStatus is the outcome of the most recent health check pass for an item.
type RefreshStatus string

const (
	RefreshPending RefreshStatus = "PENDING"
	RefreshPass    RefreshStatus = "PASS"
	RefreshFail    RefreshStatus = "FAIL"
	RefreshUnknown RefreshStatus = "UNKNOWN"
)

// Stage names a step of the health check pipeline.
type Stage string

const (
	StageScreen    Stage = "screen"
	StageVCP       Stage = "vcp"
	StageFreshness Stage = "freshness"
)

// PipelineStages is the fixed evaluation order of the health check.
var PipelineStages = []Stage{StageScreen, StageVCP, StageFreshness}

// ArchiveReason records why an item left the active watchlist.
type ArchiveReason string

const (
	ReasonManualDelete      ArchiveReason = "MANUAL_DELETE"
	ReasonFailedHealthCheck ArchiveReason = "FAILED_HEALTH_CHECK"
)

// WatchlistItem is one tracked ticker in the active watchlist
type WatchlistItem struct {
	Ticker            string        `json:"ticker" db:"ticker"`
	DateAdded         time.Time     `json:"date_added" db:"date_added"`
	IsFavourite       bool          `json:"is_favourite" db:"is_favourite"`
	IsLeader          bool          `json:"is_leader" db:"is_leader"`
	LastRefreshStatus RefreshStatus `json:"last_refresh_status" db:"last_refresh_status"`
	LastRefreshAt     *time.Time    `json:"last_refresh_at" db:"last_refresh_at"`
	FailedStage       *Stage        `json:"failed_stage" db:"failed_stage"`

	PatternFields
	VolumeFields

	// Status is derived on read and never persisted.
	Status StatusLabel `json:"status" db:"-"`
}

// PatternFields holds the price and pivot snapshot written by a passing health check.
type PatternFields struct {
	CurrentPrice          *float64 `json:"current_price" db:"current_price"`
	PivotPrice            *float64 `json:"pivot_price" db:"pivot_price"`
	PivotProximityPercent *float64 `json:"pivot_proximity_percent" db:"pivot_proximity_percent"`
	IsAtPivot             *bool    `json:"is_at_pivot" db:"is_at_pivot"`
	HasPullbackSetup      *bool    `json:"has_pullback_setup" db:"has_pullback_setup"`
	VCPPass               *bool    `json:"vcp_pass" db:"vcp_pass"`
	PatternAgeDays        *int     `json:"pattern_age_days" db:"pattern_age_days"`
	HasPivot              *bool    `json:"has_pivot" db:"has_pivot"`
	DaysSincePivot        *int     `json:"days_since_pivot" db:"days_since_pivot"`
	Fresh                 *bool    `json:"fresh" db:"fresh"`
}

// VolumeFields holds the volume snapshot refreshed alongside the health check.
type VolumeFields struct {
	VolLast       *float64 `json:"vol_last" db:"vol_last"`
	Vol50dAvg     *float64 `json:"vol_50d_avg" db:"vol_50d_avg"`
	VolVs50dRatio *float64 `json:"vol_vs_50d_ratio" db:"vol_vs_50d_ratio"`
	DayChangePct  *float64 `json:"day_change_pct" db:"day_change_pct"`
}

// NewWatchlistItem returns the PENDING defaults used when a ticker is added.
func NewWatchlistItem(ticker string, now time.Time) WatchlistItem {
	return WatchlistItem{
		Ticker:            ticker,
		DateAdded:         now,
		LastRefreshStatus: RefreshPending,
	}
}

// WithStatus returns a copy of the item with its derived status filled in.
func (w WatchlistItem) WithStatus() WatchlistItem {
	w.Status = DeriveStatus(w)
	return w
}

// ArchivedWatchlistItem is a ticker that left the active watchlist.
type ArchivedWatchlistItem struct {
	Ticker      string        `json:"ticker" db:"ticker"`
	ArchivedAt  time.Time     `json:"archived_at" db:"archived_at"`
	Reason      ArchiveReason `json:"reason" db:"reason"`
	FailedStage *Stage        `json:"failed_stage" db:"failed_stage"`
	// ExpiresAt is archived_at plus the retention window.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// HealthUpdate carries everything a fully passing health check writes back.
type HealthUpdate struct {
	IsLeader bool
	PatternFields
	VolumeFields
}

// BatchRemoveResult reports the outcome of a batch removal.
type BatchRemoveResult struct {
	Removed         int      `json:"removed"`
	NotFound        int      `json:"not_found"`
	RemovedTickers  []string `json:"removed_tickers"`
	NotFoundTickers []string `json:"not_found_tickers"`
}

// StagePtr returns a pointer to s, for optional stage fields.
func StagePtr(s Stage) *Stage {
	return &s
}
