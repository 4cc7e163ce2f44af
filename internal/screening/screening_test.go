package screening

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/irfndi/stock-monitor/internal/config"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/irfndi/stock-monitor/pkg/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)

type fakeProvider struct {
	bars map[string][]marketdata.Bar
	errs map[string]error
}

func (f *fakeProvider) GetDailyBars(_ context.Context, ticker string, _ int) ([]marketdata.Bar, error) {
	if err, ok := f.errs[ticker]; ok {
		return nil, err
	}
	bars, ok := f.bars[ticker]
	if !ok {
		return nil, marketdata.ErrTickerNotFound
	}
	return bars, nil
}

// buildBars turns closes into bars ending on end, one calendar day apart.
// amp gives the high-low range of each bar as a fraction of its close.
func buildBars(closes []float64, amp func(i int) float64, end time.Time) []marketdata.Bar {
	bars := make([]marketdata.Bar, len(closes))
	for i, c := range closes {
		half := c * amp(i) / 2
		day := end.AddDate(0, 0, i-len(closes)+1)
		bars[i] = marketdata.Bar{
			Date:   day.Format(marketdata.DateLayout),
			Open:   decimal.NewFromFloat(c),
			High:   decimal.NewFromFloat(c + half),
			Low:    decimal.NewFromFloat(c - half),
			Close:  decimal.NewFromFloat(c),
			Volume: decimal.NewFromInt(1_000_000),
		}
	}
	bars[len(bars)-1].Volume = decimal.NewFromInt(2_000_000)
	return bars
}

func linear(n int, from, to float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return out
}

// contracting is wide early and tight over the last ten bars.
func contracting(n int) func(int) float64 {
	return func(i int) float64 {
		if i >= n-10 {
			return 0.01
		}
		return 0.04
	}
}

func expanding(n int) func(int) float64 {
	return func(i int) float64 {
		if i >= n-10 {
			return 0.06
		}
		return 0.01
	}
}

func newTestPipeline(p marketdata.BarsProvider, mutate ...func(*Options)) Pipeline {
	opts := Options{
		Lookback:              260,
		PivotProximityPercent: 5,
		FreshnessMaxDays:      90,
		Benchmark:             "SPY",
		Now:                   func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewDefaultPipeline(p, opts)
}

func leaderSetup() *fakeProvider {
	n := 260
	return &fakeProvider{bars: map[string][]marketdata.Bar{
		"NET":   buildBars(linear(n, 50, 100), contracting(n), testNow),
		"DOWN":  buildBars(linear(n, 100, 50), contracting(n), testNow),
		"WIDE":  buildBars(linear(n, 50, 100), expanding(n), testNow),
		"STALE": buildBars(linear(n, 50, 100), contracting(n), testNow.AddDate(0, 0, -30)),
		"TINY":  buildBars(linear(10, 5, 6), contracting(10), testNow),
		"SPY":   buildBars(linear(n, 400, 420), contracting(n), testNow),
	}}
}

func TestScreenEvaluator(t *testing.T) {
	pipeline := newTestPipeline(leaderSetup())
	ctx := context.Background()

	res, err := pipeline.Screen.Evaluate(ctx, "NET")
	require.NoError(t, err)
	assert.True(t, res.Pass, res.Reason)
	require.NotNil(t, res.Pattern.CurrentPrice)
	assert.Equal(t, 100.0, *res.Pattern.CurrentPrice)
	require.NotNil(t, res.Volume.VolLast)
	assert.Equal(t, 2_000_000.0, *res.Volume.VolLast)
	require.NotNil(t, res.Volume.Vol50dAvg)
	assert.Equal(t, 1_020_000.0, *res.Volume.Vol50dAvg)
	require.NotNil(t, res.Volume.VolVs50dRatio)
	assert.InDelta(t, 1.96, *res.Volume.VolVs50dRatio, 0.01)
	require.NotNil(t, res.Volume.DayChangePct)
	assert.Greater(t, *res.Volume.DayChangePct, 0.0)

	res, err = pipeline.Screen.Evaluate(ctx, "DOWN")
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "below 50 day average")

	res, err = pipeline.Screen.Evaluate(ctx, "TINY")
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "insufficient history")
}

func TestScreenEvaluator_UnknownTickerFailsStage(t *testing.T) {
	pipeline := newTestPipeline(leaderSetup())

	res, err := pipeline.Screen.Evaluate(context.Background(), "ZZZZZ")
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "unknown")
}

func TestEvaluators_UpstreamErrorIsReturned(t *testing.T) {
	provider := &fakeProvider{errs: map[string]error{
		"NET": errors.Join(utils.ErrUpstreamUnavailable, errors.New("502")),
	}}
	pipeline := newTestPipeline(provider)

	for _, stage := range models.PipelineStages {
		_, err := pipeline.Evaluator(stage).Evaluate(context.Background(), "NET")
		assert.ErrorIs(t, err, utils.ErrUpstreamUnavailable, stage)
	}
	_, err := pipeline.Leadership.IsLeader(context.Background(), "NET")
	assert.ErrorIs(t, err, utils.ErrUpstreamUnavailable)
}

func TestVCPEvaluator(t *testing.T) {
	pipeline := newTestPipeline(leaderSetup())
	ctx := context.Background()

	res, err := pipeline.VCP.Evaluate(ctx, "NET")
	require.NoError(t, err)
	assert.True(t, res.Pass, res.Reason)
	require.NotNil(t, res.Pattern.VCPPass)
	assert.True(t, *res.Pattern.VCPPass)
	require.NotNil(t, res.Pattern.IsAtPivot)
	assert.True(t, *res.Pattern.IsAtPivot)
	require.NotNil(t, res.Pattern.PivotPrice)
	assert.Equal(t, 100.5, *res.Pattern.PivotPrice)
	require.NotNil(t, res.Pattern.PivotProximityPercent)
	assert.InDelta(t, 0.5, *res.Pattern.PivotProximityPercent, 0.01)
	require.NotNil(t, res.Pattern.HasPullbackSetup)
	assert.False(t, *res.Pattern.HasPullbackSetup)
	require.NotNil(t, res.Pattern.PatternAgeDays)
	assert.Equal(t, baseWindow-1, *res.Pattern.PatternAgeDays)
	require.NotNil(t, res.Pattern.DaysSincePivot)
	assert.Equal(t, 0, *res.Pattern.DaysSincePivot)

	res, err = pipeline.VCP.Evaluate(ctx, "WIDE")
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "not contracting")
	require.NotNil(t, res.Pattern.VCPPass)
	assert.False(t, *res.Pattern.VCPPass)
}

func TestVCPEvaluator_PullbackBelowPivot(t *testing.T) {
	// Rise to a peak, then hold 5% lower on the 10 day average.
	closes := linear(200, 20, 100)
	for i := 0; i < 10; i++ {
		closes = append(closes, 95)
	}
	provider := &fakeProvider{bars: map[string][]marketdata.Bar{
		"PULL": buildBars(closes, contracting(len(closes)), testNow),
	}}
	pipeline := newTestPipeline(provider)

	res, err := pipeline.VCP.Evaluate(context.Background(), "PULL")
	require.NoError(t, err)
	require.NotNil(t, res.Pattern.IsAtPivot)
	assert.False(t, *res.Pattern.IsAtPivot)
	require.NotNil(t, res.Pattern.HasPullbackSetup)
	assert.True(t, *res.Pattern.HasPullbackSetup)
	require.NotNil(t, res.Pattern.HasPivot)
	assert.True(t, *res.Pattern.HasPivot)
	require.NotNil(t, res.Pattern.DaysSincePivot)
	assert.Equal(t, 10, *res.Pattern.DaysSincePivot)
}

func TestFreshnessEvaluator(t *testing.T) {
	ctx := context.Background()
	pipeline := newTestPipeline(leaderSetup())

	res, err := pipeline.Freshness.Evaluate(ctx, "NET")
	require.NoError(t, err)
	assert.True(t, res.Pass, res.Reason)
	require.NotNil(t, res.Pattern.Fresh)
	assert.True(t, *res.Pattern.Fresh)

	res, err = pipeline.Freshness.Evaluate(ctx, "STALE")
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "30 days old")
	require.NotNil(t, res.Pattern.Fresh)
	assert.False(t, *res.Pattern.Fresh)
}

func TestFreshnessEvaluator_OldPivot(t *testing.T) {
	closes := linear(200, 50, 100)
	for i := 0; i < 30; i++ {
		closes = append(closes, 97)
	}
	provider := &fakeProvider{bars: map[string][]marketdata.Bar{
		"OLD": buildBars(closes, contracting(len(closes)), testNow),
	}}
	pipeline := newTestPipeline(provider, func(o *Options) { o.FreshnessMaxDays = 10 })

	res, err := pipeline.Freshness.Evaluate(context.Background(), "OLD")
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "limit 10")
}

func TestLeadershipEvaluator(t *testing.T) {
	ctx := context.Background()
	pipeline := newTestPipeline(leaderSetup())
	require.NotNil(t, pipeline.Leadership)

	leader, err := pipeline.Leadership.IsLeader(ctx, "NET")
	require.NoError(t, err)
	assert.True(t, leader)

	leader, err = pipeline.Leadership.IsLeader(ctx, "DOWN")
	require.NoError(t, err)
	assert.False(t, leader)

	leader, err = pipeline.Leadership.IsLeader(ctx, "ZZZZZ")
	require.NoError(t, err)
	assert.False(t, leader)
}

func TestNewDefaultPipeline_NoBenchmark(t *testing.T) {
	pipeline := newTestPipeline(leaderSetup(), func(o *Options) { o.Benchmark = "" })
	assert.Nil(t, pipeline.Leadership)
	assert.NotNil(t, pipeline.Evaluator(models.StageScreen))
	assert.NotNil(t, pipeline.Evaluator(models.StageVCP))
	assert.NotNil(t, pipeline.Evaluator(models.StageFreshness))
	assert.Nil(t, pipeline.Evaluator(models.Stage("other")))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(
		config.MonitorConfig{PivotProximityPercent: 3, FreshnessMaxDays: 45, LeadershipBenchmark: "QQQ"},
		config.MarketDataConfig{BarLookback: 300},
	)
	assert.Equal(t, 300, opts.Lookback)
	assert.Equal(t, 3.0, opts.PivotProximityPercent)
	assert.Equal(t, 45, opts.FreshnessMaxDays)
	assert.Equal(t, "QQQ", opts.Benchmark)

	defaults := Options{}.withDefaults()
	assert.Equal(t, 260, defaults.Lookback)
	assert.NotNil(t, defaults.Now)
}

func TestEvaluatorFunc(t *testing.T) {
	var e Evaluator = EvaluatorFunc(func(_ context.Context, ticker string) (models.StageResult, error) {
		return models.StageResult{Pass: ticker == "OK"}, nil
	})
	res, err := e.Evaluate(context.Background(), "OK")
	require.NoError(t, err)
	assert.True(t, res.Pass)
}

func TestSmaLast(t *testing.T) {
	v, ok := smaLast([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5)
	require.True(t, ok)
	assert.Equal(t, 8.0, v)

	_, ok = smaLast([]float64{1, 2}, 5)
	assert.False(t, ok)
}
