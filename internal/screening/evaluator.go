// Package screening holds the default health check stage evaluators.
// Each evaluator is a replaceable heuristic over daily bars.
package screening

import (
	"context"
	"errors"
	"time"

	"github.com/irfndi/stock-monitor/internal/config"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/pkg/marketdata"
)

// Evaluator runs one pipeline stage for a ticker. A returned error means the
// stage could not be judged; a failed stage is a result with Pass false.
type Evaluator interface {
	Evaluate(ctx context.Context, ticker string) (models.StageResult, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, ticker string) (models.StageResult, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, ticker string) (models.StageResult, error) {
	return f(ctx, ticker)
}

// LeadershipScorer decides the informational is_leader flag.
type LeadershipScorer interface {
	IsLeader(ctx context.Context, ticker string) (bool, error)
}

// Pipeline is the ordered set of stage evaluators used by a health check pass.
type Pipeline struct {
	Screen    Evaluator
	VCP       Evaluator
	Freshness Evaluator
	// Leadership is optional.
	Leadership LeadershipScorer
}

// Evaluator returns the evaluator for stage, or nil.
func (p Pipeline) Evaluator(stage models.Stage) Evaluator {
	switch stage {
	case models.StageScreen:
		return p.Screen
	case models.StageVCP:
		return p.VCP
	case models.StageFreshness:
		return p.Freshness
	}
	return nil
}

// Options tunes the default evaluators.
type Options struct {
	Lookback              int
	PivotProximityPercent float64
	FreshnessMaxDays      int
	Benchmark             string
	Now                   func() time.Time
}

// OptionsFromConfig builds evaluator options from the monitor and market data sections.
func OptionsFromConfig(monitor config.MonitorConfig, md config.MarketDataConfig) Options {
	return Options{
		Lookback:              md.BarLookback,
		PivotProximityPercent: monitor.PivotProximityPercent,
		FreshnessMaxDays:      monitor.FreshnessMaxDays,
		Benchmark:             monitor.LeadershipBenchmark,
	}
}

func (o Options) withDefaults() Options {
	if o.Lookback <= 0 {
		o.Lookback = 260
	}
	if o.PivotProximityPercent <= 0 {
		o.PivotProximityPercent = 5
	}
	if o.FreshnessMaxDays <= 0 {
		o.FreshnessMaxDays = 90
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NewDefaultPipeline wires the bar-based evaluators to provider.
func NewDefaultPipeline(provider marketdata.BarsProvider, opts Options) Pipeline {
	opts = opts.withDefaults()
	p := Pipeline{
		Screen:    &ScreenEvaluator{provider: provider, opts: opts},
		VCP:       &VCPEvaluator{provider: provider, opts: opts},
		Freshness: &FreshnessEvaluator{provider: provider, opts: opts},
	}
	if opts.Benchmark != "" {
		p.Leadership = &LeadershipEvaluator{provider: provider, opts: opts}
	}
	return p
}

// failed builds a failing result.
func failed(reason string) models.StageResult {
	return models.StageResult{Pass: false, Reason: reason}
}

// unknownTicker turns a provider 404 into a stage failure.
func unknownTicker(err error) (models.StageResult, bool) {
	if errors.Is(err, marketdata.ErrTickerNotFound) {
		return failed("ticker unknown to market data provider"), true
	}
	return models.StageResult{}, false
}
