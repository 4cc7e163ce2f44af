package screening

import (
	"context"
	"fmt"
	"math"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/pkg/marketdata"
)

const (
	vcpMinBars      = 45
	atrWindow       = 10
	pullbackBandPct = 2.0
)

// VCPEvaluator checks for a volatility contraction: the recent average true
// range is tighter than the one before it. It also locates the base pivot.
type VCPEvaluator struct {
	provider marketdata.BarsProvider
	opts     Options
}

// Evaluate implements Evaluator.
func (e *VCPEvaluator) Evaluate(ctx context.Context, ticker string) (models.StageResult, error) {
	s, reason, err := loadSeries(ctx, e.provider, ticker, e.opts.Lookback, vcpMinBars)
	if err != nil {
		if res, ok := unknownTicker(err); ok {
			return res, nil
		}
		return models.StageResult{}, err
	}
	if reason != "" {
		return failed(reason), nil
	}

	atr := atrSeries(s)
	if len(atr) < 2*atrWindow {
		return failed(fmt.Sprintf("insufficient history for ATR: %d values", len(atr))), nil
	}
	recent := mean(atr[len(atr)-atrWindow:])
	prior := mean(atr[len(atr)-2*atrWindow : len(atr)-atrWindow])
	contracting := prior > 0 && recent < prior

	last := s.last()
	price := s.close[last]
	p := findPivot(s)
	proximity := 0.0
	if p.price > 0 {
		proximity = (p.price - price) / p.price * 100
	}
	atPivot := proximity >= 0 && proximity <= e.opts.PivotProximityPercent

	pullback := false
	if sma10, ok := smaLast(s.close, 10); ok && !atPivot {
		pullback = math.Abs(price-sma10)/sma10*100 <= pullbackBandPct
		if sma50, ok := smaLast(s.close, 50); ok {
			pullback = pullback && price > sma50
		}
	}

	result := models.StageResult{
		Pass: contracting,
		Pattern: models.PatternFields{
			CurrentPrice:          ptr(round2(price)),
			PivotPrice:            ptr(round2(p.price)),
			PivotProximityPercent: ptr(round2(proximity)),
			IsAtPivot:             ptr(atPivot),
			HasPullbackSetup:      ptr(pullback),
			VCPPass:               ptr(contracting),
			PatternAgeDays:        ptr(daysBetween(s.dates[baseStart(s)], s.dates[last])),
			HasPivot:              ptr(p.index < last),
			DaysSincePivot:        ptr(daysBetween(p.date, s.dates[last])),
		},
	}
	if !contracting {
		result.Reason = fmt.Sprintf("volatility not contracting: recent ATR %.2f, prior ATR %.2f", recent, prior)
	}
	return result, nil
}

func baseStart(s series) int {
	if s.len() <= baseWindow {
		return 0
	}
	return s.len() - baseWindow
}
