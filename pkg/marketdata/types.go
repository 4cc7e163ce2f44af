package marketdata

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by the provider.
const DateLayout = "2006-01-02"

// Bar is one daily OHLCV candle.
type Bar struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Day parses the bar date.
func (b Bar) Day() (time.Time, error) {
	t, err := time.Parse(DateLayout, b.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid bar date %q: %w", b.Date, err)
	}
	return t, nil
}

// BarsResponse represents the response from the bars endpoint
type BarsResponse struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

// HealthResponse represents the provider health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Version   string `json:"version"`
}

// ErrorResponse represents an error response from the provider
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}
