package marketdata

import "context"

// BarsProvider supplies daily bars for a ticker, oldest first.
type BarsProvider interface {
	GetDailyBars(ctx context.Context, ticker string, limit int) ([]Bar, error)
}

// MarketDataClient defines the low-level provider operations
type MarketDataClient interface {
	BarsProvider
	HealthCheck(ctx context.Context) (*HealthResponse, error)
	BreakerState() string
	Close() error
}

// BarStore caches decoded bar responses. cache.RedisJSONCache satisfies it.
type BarStore interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{})
}

var _ MarketDataClient = (*Client)(nil)
