package screening

import (
	"context"
	"errors"
	"fmt"

	"github.com/irfndi/stock-monitor/pkg/marketdata"
)

// leadershipBars is roughly one quarter of sessions.
const leadershipBars = 63

// LeadershipEvaluator marks a ticker as a leader when its quarterly return is
// positive and beats the benchmark's.
type LeadershipEvaluator struct {
	provider marketdata.BarsProvider
	opts     Options
}

// IsLeader implements LeadershipScorer.
func (e *LeadershipEvaluator) IsLeader(ctx context.Context, ticker string) (bool, error) {
	own, err := e.quarterReturn(ctx, ticker)
	if err != nil {
		if errors.Is(err, marketdata.ErrTickerNotFound) {
			return false, nil
		}
		return false, err
	}
	if own <= 0 {
		return false, nil
	}
	bench, err := e.quarterReturn(ctx, e.opts.Benchmark)
	if err != nil {
		return false, fmt.Errorf("benchmark %s: %w", e.opts.Benchmark, err)
	}
	return own > bench, nil
}

func (e *LeadershipEvaluator) quarterReturn(ctx context.Context, ticker string) (float64, error) {
	s, reason, err := loadSeries(ctx, e.provider, ticker, e.opts.Lookback, leadershipBars+1)
	if err != nil {
		return 0, err
	}
	if reason != "" {
		return 0, nil
	}
	from := s.close[s.len()-1-leadershipBars]
	if from <= 0 {
		return 0, nil
	}
	return (s.close[s.last()] - from) / from, nil
}
