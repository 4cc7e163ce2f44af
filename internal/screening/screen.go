package screening

import (
	"context"
	"fmt"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/pkg/marketdata"
)

const (
	screenMinBars   = 50
	yearBars        = 252
	offHighFraction = 0.75
	offLowMultiple  = 1.25
)

// ScreenEvaluator is a trend template check: price above a rising stack of
// moving averages and in the upper part of its 52 week range.
type ScreenEvaluator struct {
	provider marketdata.BarsProvider
	opts     Options
}

// Evaluate implements Evaluator.
func (e *ScreenEvaluator) Evaluate(ctx context.Context, ticker string) (models.StageResult, error) {
	s, reason, err := loadSeries(ctx, e.provider, ticker, e.opts.Lookback, screenMinBars)
	if err != nil {
		if res, ok := unknownTicker(err); ok {
			return res, nil
		}
		return models.StageResult{}, err
	}

	result := models.StageResult{Pass: true}
	if s.len() > 0 {
		result.Pattern.CurrentPrice = ptr(round2(s.close[s.last()]))
		result.Volume = volumeSnapshot(s)
	}
	if reason != "" {
		result.Pass = false
		result.Reason = reason
		return result, nil
	}

	price := s.close[s.last()]
	if price <= 0 {
		result.Pass = false
		result.Reason = "non-positive price"
		return result, nil
	}

	sma50, _ := smaLast(s.close, 50)
	if price <= sma50 {
		result.Pass = false
		result.Reason = fmt.Sprintf("price %.2f below 50 day average %.2f", price, sma50)
		return result, nil
	}
	if sma150, ok := smaLast(s.close, 150); ok {
		if sma50 <= sma150 {
			result.Pass = false
			result.Reason = fmt.Sprintf("50 day average %.2f below 150 day average %.2f", sma50, sma150)
			return result, nil
		}
		if sma200, ok := smaLast(s.close, 200); ok && sma150 <= sma200 {
			result.Pass = false
			result.Reason = fmt.Sprintf("150 day average %.2f below 200 day average %.2f", sma150, sma200)
			return result, nil
		}
	}

	high, low := rangeOf(s, yearBars)
	if price < high*offHighFraction {
		result.Pass = false
		result.Reason = fmt.Sprintf("price %.2f more than 25%% below 52 week high %.2f", price, high)
		return result, nil
	}
	if price < low*offLowMultiple {
		result.Pass = false
		result.Reason = fmt.Sprintf("price %.2f less than 25%% above 52 week low %.2f", price, low)
		return result, nil
	}
	return result, nil
}

// rangeOf returns the highest high and lowest low of the trailing n bars.
func rangeOf(s series, n int) (float64, float64) {
	start := s.len() - n
	if start < 0 {
		start = 0
	}
	high, low := s.high[start], s.low[start]
	for i := start + 1; i < s.len(); i++ {
		if s.high[i] > high {
			high = s.high[i]
		}
		if s.low[i] < low {
			low = s.low[i]
		}
	}
	return high, low
}

func volumeSnapshot(s series) models.VolumeFields {
	last := s.last()
	v := models.VolumeFields{VolLast: ptr(s.volume[last])}
	if avg, ok := smaLast(s.volume, 50); ok {
		v.Vol50dAvg = ptr(round2(avg))
		if avg > 0 {
			v.VolVs50dRatio = ptr(round2(s.volume[last] / avg))
		}
	}
	if last > 0 && s.close[last-1] != 0 {
		v.DayChangePct = ptr(round2((s.close[last] - s.close[last-1]) / s.close[last-1] * 100))
	}
	return v
}
