package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/stock-monitor/internal/metrics"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/screening"
	"github.com/irfndi/stock-monitor/internal/telemetry"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHealthCheckWorkers = 4
	defaultEvaluatorTimeout   = 30 * time.Second
)

// HealthCheckOptions bounds a health check pass.
type HealthCheckOptions struct {
	Workers     int
	ItemTimeout time.Duration
}

// HealthCheckOrchestrator runs the screen, vcp and freshness stages over every
// active ticker and writes each verdict back under the ticker's lock.
type HealthCheckOrchestrator struct {
	watchlist WatchlistStore
	pipeline  screening.Pipeline
	views     ViewCache
	locks     *KeyedMutex
	notifier  Notifier
	tracer    *telemetry.BusinessTracer
	metrics   *metrics.Registry
	logger    *logrus.Logger

	workers int
	timeout time.Duration
	now     func() time.Time
}

// NewHealthCheckOrchestrator creates an orchestrator. views, notifier, tracer
// and m may be nil.
func NewHealthCheckOrchestrator(
	watchlist WatchlistStore,
	pipeline screening.Pipeline,
	views ViewCache,
	locks *KeyedMutex,
	notifier Notifier,
	tracer *telemetry.BusinessTracer,
	m *metrics.Registry,
	logger *logrus.Logger,
	opts HealthCheckOptions,
) *HealthCheckOrchestrator {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if tracer == nil {
		tracer = telemetry.NewBusinessTracer(nil)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultHealthCheckWorkers
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultEvaluatorTimeout
	}
	return &HealthCheckOrchestrator{
		watchlist: watchlist,
		pipeline:  pipeline,
		views:     views,
		locks:     locks,
		notifier:  notifier,
		tracer:    tracer,
		metrics:   m,
		logger:    logger,
		workers:   opts.Workers,
		timeout:   opts.ItemTimeout,
		now:       time.Now,
	}
}

// itemResult is the outcome of one ticker's health check.
type itemResult struct {
	outcome string
	stage   models.Stage
}

// RunPass checks every active ticker once. Failures of one ticker never stop
// the others; only a failure to read the watchlist or a cancelled ctx ends the
// pass early. Tickers not reached before cancellation stay PENDING.
func (o *HealthCheckOrchestrator) RunPass(ctx context.Context, jobID string) (models.PassSummary, error) {
	start := o.now()
	items, err := o.watchlist.List(ctx)
	if err != nil {
		return models.PassSummary{}, fmt.Errorf("failed to load watchlist for health check: %w", err)
	}

	ctx, span := o.tracer.TraceHealthPass(ctx, jobID, len(items))
	defer span.End()

	logger := o.logger.WithField("job_id", jobID)
	logger.WithField("items", len(items)).Info("Starting health check pass")

	var (
		mu      sync.Mutex
		summary = models.PassSummary{Total: len(items)}
	)
	record := func(r itemResult) {
		mu.Lock()
		defer mu.Unlock()
		switch r.outcome {
		case metrics.OutcomePass:
			summary.Passed++
		case metrics.OutcomeFail:
			summary.Failed++
		case metrics.OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Errored++
		}
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(o.checkItem(ctx, item))
			return nil
		})
	}
	_ = g.Wait()

	elapsed := o.now().Sub(start)
	o.metrics.RecordPass(elapsed)

	fields := logrus.Fields{
		"total":    summary.Total,
		"passed":   summary.Passed,
		"failed":   summary.Failed,
		"errored":  summary.Errored,
		"skipped":  summary.Skipped,
		"duration": elapsed.String(),
	}
	if err := ctx.Err(); err != nil {
		o.tracer.RecordOutcome(span, "cancelled", err)
		logger.WithFields(fields).Warn("Health check pass cancelled")
		return summary, fmt.Errorf("health check pass interrupted: %w", err)
	}
	o.tracer.RecordOutcome(span, "completed", nil)
	logger.WithFields(fields).Info("Health check pass completed")
	return summary, nil
}

// checkItem evaluates one ticker and applies the verdict.
func (o *HealthCheckOrchestrator) checkItem(ctx context.Context, item models.WatchlistItem) itemResult {
	start := o.now()
	ctx, span := o.tracer.TraceHealthCheck(ctx, item.Ticker)
	defer span.End()

	evalCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	result := o.evaluate(evalCtx, span, item)
	o.tracer.RecordOutcome(span, result.outcome, result.err)
	o.metrics.RecordHealthCheck(result.outcome, string(result.stage), o.now().Sub(start))
	return itemResult{outcome: result.outcome, stage: result.stage}
}

type evaluation struct {
	outcome string
	stage   models.Stage
	err     error
}

func (o *HealthCheckOrchestrator) evaluate(evalCtx context.Context, span trace.Span, item models.WatchlistItem) evaluation {
	// Writes must outlive the evaluation deadline.
	writeCtx := trace.ContextWithSpan(context.WithoutCancel(evalCtx), span)
	logger := o.logger.WithField("ticker", item.Ticker)

	update := models.HealthUpdate{IsLeader: item.IsLeader}
	for _, stage := range models.PipelineStages {
		evaluator := o.pipeline.Evaluator(stage)
		if evaluator == nil {
			continue
		}
		res, err := runStage(evalCtx, evaluator, item.Ticker)
		if err != nil {
			logger.WithError(err).WithField("stage", stage).Warn("Health check stage could not be evaluated")
			return o.markUnknown(writeCtx, item.Ticker, stage, err)
		}
		o.tracer.RecordStage(span, string(stage), res.Pass, res.Reason)
		if !res.Pass {
			return o.archiveFailed(writeCtx, item.Ticker, stage, res.Reason)
		}
		update.Merge(res)
	}

	if o.pipeline.Leadership != nil {
		leader, err := awaitCall(evalCtx, func() (bool, error) {
			return o.pipeline.Leadership.IsLeader(evalCtx, item.Ticker)
		})
		if err != nil {
			logger.WithError(err).Warn("Leadership score unavailable, keeping previous value")
		} else {
			update.IsLeader = leader
		}
	}
	return o.applyPass(writeCtx, item, update)
}

func runStage(ctx context.Context, evaluator screening.Evaluator, ticker string) (models.StageResult, error) {
	return awaitCall(ctx, func() (models.StageResult, error) {
		return evaluator.Evaluate(ctx, ticker)
	})
}

// awaitCall runs call in its own goroutine and returns when it does or when
// ctx ends, whichever is first. A call that ignores ctx is left to finish in
// the background and its result is dropped.
func awaitCall[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("evaluation abandoned: %w", ctx.Err())
	}
}

func (o *HealthCheckOrchestrator) applyPass(ctx context.Context, item models.WatchlistItem, update models.HealthUpdate) evaluation {
	unlock := o.locks.Lock(item.Ticker)
	err := o.watchlist.ApplyHealthPass(ctx, item.Ticker, update)
	unlock()
	if res, failed := o.writeFailed(item.Ticker, "", err); failed {
		return res
	}
	o.invalidate(ctx)

	after := passedItem(item, update, o.now())
	if models.DeriveStatus(after) == models.StatusBuyReady && models.DeriveStatus(priorState(item)) != models.StatusBuyReady {
		o.logger.WithField("ticker", item.Ticker).Info("Ticker is Buy Ready")
		if o.notifier != nil {
			if err := o.notifier.NotifyBuyReady(ctx, after.WithStatus()); err != nil {
				o.logger.WithError(err).WithField("ticker", item.Ticker).Warn("Failed to send buy ready notification")
			}
		}
	}
	return evaluation{outcome: metrics.OutcomePass}
}

func (o *HealthCheckOrchestrator) archiveFailed(ctx context.Context, ticker string, stage models.Stage, reason string) evaluation {
	unlock := o.locks.Lock(ticker)
	err := o.watchlist.ArchiveFailed(ctx, ticker, stage)
	unlock()
	if res, failed := o.writeFailed(ticker, stage, err); failed {
		return res
	}
	o.invalidate(ctx)

	o.logger.WithFields(logrus.Fields{
		"ticker": ticker,
		"stage":  stage,
		"reason": reason,
	}).Info("Archived ticker after failed health check")
	if o.notifier != nil {
		if err := o.notifier.NotifyArchived(ctx, ticker, stage, reason); err != nil {
			o.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to send archive notification")
		}
	}
	return evaluation{outcome: metrics.OutcomeFail, stage: stage}
}

func (o *HealthCheckOrchestrator) markUnknown(ctx context.Context, ticker string, stage models.Stage, cause error) evaluation {
	unlock := o.locks.Lock(ticker)
	err := o.watchlist.MarkUnknown(ctx, ticker)
	unlock()
	if res, failed := o.writeFailed(ticker, stage, err); failed {
		return res
	}
	o.invalidate(ctx)
	return evaluation{outcome: metrics.OutcomeError, stage: stage, err: cause}
}

// writeFailed classifies a write-back error. A ticker removed mid-pass is
// skipped; anything else counts as an errored item.
func (o *HealthCheckOrchestrator) writeFailed(ticker string, stage models.Stage, err error) (evaluation, bool) {
	if err == nil {
		return evaluation{}, false
	}
	if errors.Is(err, utils.ErrNotFound) {
		o.logger.WithField("ticker", ticker).Debug("Ticker left the watchlist during health check")
		return evaluation{outcome: metrics.OutcomeSkipped, stage: stage}, true
	}
	o.logger.WithError(err).WithField("ticker", ticker).Error("Failed to record health check result")
	return evaluation{outcome: metrics.OutcomeError, stage: stage, err: err}, true
}

func (o *HealthCheckOrchestrator) invalidate(ctx context.Context) {
	invalidateViews(ctx, o.views, o.logger, models.ViewWatchlist, models.ViewArchive)
}

// priorState is the item as it stood before the refresh job reset it to
// PENDING: a previously refreshed item had passed, since failures leave the list.
func priorState(item models.WatchlistItem) models.WatchlistItem {
	if item.LastRefreshStatus == models.RefreshPending && item.LastRefreshAt != nil {
		item.LastRefreshStatus = models.RefreshPass
	}
	return item
}

// passedItem is item after ApplyHealthPass wrote update.
func passedItem(item models.WatchlistItem, update models.HealthUpdate, at time.Time) models.WatchlistItem {
	item.LastRefreshStatus = models.RefreshPass
	item.LastRefreshAt = &at
	item.FailedStage = nil
	item.IsLeader = update.IsLeader
	item.PatternFields = update.PatternFields
	item.VolumeFields = update.VolumeFields
	return item
}
