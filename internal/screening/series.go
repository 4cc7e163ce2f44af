package screening

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/irfndi/stock-monitor/pkg/marketdata"
)

// series is a column view of daily bars, oldest first.
type series struct {
	dates  []time.Time
	high   []float64
	low    []float64
	close  []float64
	volume []float64
}

func newSeries(bars []marketdata.Bar) (series, error) {
	s := series{
		dates:  make([]time.Time, len(bars)),
		high:   make([]float64, len(bars)),
		low:    make([]float64, len(bars)),
		close:  make([]float64, len(bars)),
		volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		day, err := b.Day()
		if err != nil {
			return series{}, err
		}
		s.dates[i] = day
		s.high[i] = b.High.InexactFloat64()
		s.low[i] = b.Low.InexactFloat64()
		s.close[i] = b.Close.InexactFloat64()
		s.volume[i] = b.Volume.InexactFloat64()
	}
	return s, nil
}

func (s series) len() int { return len(s.close) }

func (s series) last() int { return len(s.close) - 1 }

// loadSeries fetches bars and rejects histories shorter than minBars.
// A short history is reported as a failure reason, not an error.
func loadSeries(ctx context.Context, provider marketdata.BarsProvider, ticker string, lookback, minBars int) (series, string, error) {
	bars, err := provider.GetDailyBars(ctx, ticker, lookback)
	if err != nil {
		return series{}, "", err
	}
	s, err := newSeries(bars)
	if err != nil {
		return series{}, "", fmt.Errorf("failed to decode bars for %s: %w", ticker, err)
	}
	if s.len() < minBars {
		return s, fmt.Sprintf("insufficient history: %d bars, need %d", s.len(), minBars), nil
	}
	return s, "", nil
}

// smaLast returns the latest simple moving average of values over period.
func smaLast(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(out) == 0 {
		return 0, false
	}
	return out[len(out)-1], true
}

// atrSeries returns the average true range series aligned to the end of s.
func atrSeries(s series) []float64 {
	atr := volatility.NewAtr[float64]()
	return helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(s.high),
		helper.SliceToChan(s.low),
		helper.SliceToChan(s.close),
	))
}

// pivot is the highest high of the trailing base window.
type pivot struct {
	index int
	price float64
	date  time.Time
}

const baseWindow = 60

func findPivot(s series) pivot {
	start := baseStart(s)
	p := pivot{index: start, price: s.high[start], date: s.dates[start]}
	for i := start + 1; i < s.len(); i++ {
		if s.high[i] >= p.price {
			p = pivot{index: i, price: s.high[i], date: s.dates[i]}
		}
	}
	return p
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr[T any](v T) *T {
	return &v
}
