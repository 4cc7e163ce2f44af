package screening

import (
	"context"
	"fmt"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/pkg/marketdata"
)

const (
	freshnessMinBars = 2
	// maxQuoteAgeDays allows for weekends and exchange holidays.
	maxQuoteAgeDays = 7
)

// FreshnessEvaluator passes while the latest quote is current and the base
// pivot is no older than FreshnessMaxDays.
type FreshnessEvaluator struct {
	provider marketdata.BarsProvider
	opts     Options
}

// Evaluate implements Evaluator.
func (e *FreshnessEvaluator) Evaluate(ctx context.Context, ticker string) (models.StageResult, error) {
	s, reason, err := loadSeries(ctx, e.provider, ticker, e.opts.Lookback, freshnessMinBars)
	if err != nil {
		if res, ok := unknownTicker(err); ok {
			return res, nil
		}
		return models.StageResult{}, err
	}
	if reason != "" {
		return failed(reason), nil
	}

	last := s.dates[s.last()]
	if age := daysBetween(last, e.opts.Now().UTC()); age > maxQuoteAgeDays {
		result := failed(fmt.Sprintf("latest bar is %d days old", age))
		result.Pattern.Fresh = ptr(false)
		return result, nil
	}

	p := findPivot(s)
	days := daysBetween(p.date, last)
	fresh := days <= e.opts.FreshnessMaxDays
	result := models.StageResult{
		Pass: fresh,
		Pattern: models.PatternFields{
			Fresh:          ptr(fresh),
			DaysSincePivot: ptr(days),
		},
	}
	if !fresh {
		result.Reason = fmt.Sprintf("pivot is %d days old, limit %d", days, e.opts.FreshnessMaxDays)
	}
	return result, nil
}
