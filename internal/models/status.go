package models

// StatusLabel is the UI-facing status derived from a watchlist item.
type StatusLabel string

const (
	StatusPending  StatusLabel = "Pending"
	StatusFailed   StatusLabel = "Failed"
	StatusWatch    StatusLabel = "Watch"
	StatusBuyAlert StatusLabel = "Buy Alert"
	StatusBuyReady StatusLabel = "Buy Ready"
)

// DeriveStatus maps an item's health and pattern fields to one label.
//
// Precedence, highest first:
//  1. FAIL                          -> Failed
//  2. PENDING, UNKNOWN or never run -> Pending
//  3. at pivot and checks pass      -> Buy Ready
//  4. pullback setup                -> Buy Alert
//  5. otherwise                     -> Watch
func DeriveStatus(item WatchlistItem) StatusLabel {
	switch item.LastRefreshStatus {
	case RefreshFail:
		return StatusFailed
	case RefreshPass:
	default:
		return StatusPending
	}
	if item.LastRefreshAt == nil {
		return StatusPending
	}

	if isTrue(item.IsAtPivot) && patternChecksPass(item.PatternFields) {
		return StatusBuyReady
	}
	if isTrue(item.HasPullbackSetup) {
		return StatusBuyAlert
	}
	return StatusWatch
}

// patternChecksPass treats an unset check as not failing.
func patternChecksPass(p PatternFields) bool {
	return !isFalse(p.VCPPass) && !isFalse(p.Fresh)
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

func isFalse(b *bool) bool {
	return b != nil && !*b
}
