package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/stock-monitor/internal/metrics"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/sirupsen/logrus"
)

// Refresh job triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

const jobSaveTimeout = 5 * time.Second

// ErrControllerStopped is returned when a job is requested after Stop.
var ErrControllerStopped = errors.New("refresh controller stopped")

// PassRunner runs one health check pass. HealthCheckOrchestrator implements it.
type PassRunner interface {
	RunPass(ctx context.Context, jobID string) (models.PassSummary, error)
}

// RefreshJobController starts health check passes in the background and keeps
// their records in the job store. At most one pass runs at a time; a request
// made while one is running gets that job back instead of a new one.
type RefreshJobController struct {
	runner    PassRunner
	watchlist WatchlistStore
	jobs      JobStore
	views     ViewCache
	metrics   *metrics.Registry
	logger    *logrus.Logger

	mu      sync.Mutex
	running string
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// NewRefreshJobController creates a controller. views and m may be nil.
func NewRefreshJobController(
	runner PassRunner,
	watchlist WatchlistStore,
	jobs JobStore,
	views ViewCache,
	m *metrics.Registry,
	logger *logrus.Logger,
) *RefreshJobController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshJobController{
		runner:    runner,
		watchlist: watchlist,
		jobs:      jobs,
		views:     views,
		metrics:   m,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// StartRefreshJob queues a health check pass and returns its record without
// waiting for it. accepted is false when an earlier pass is still running; the
// returned job is then that pass.
func (c *RefreshJobController) StartRefreshJob(ctx context.Context, trigger string) (models.RefreshJob, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return models.RefreshJob{}, false, ErrControllerStopped
	}
	if c.running != "" {
		job, err := c.jobs.Get(ctx, c.running)
		if err != nil {
			c.logger.WithError(err).WithField("job_id", c.running).Warn("Failed to read running refresh job")
			job = models.RefreshJob{ID: c.running, Status: models.JobRunning}
		}
		return job, false, nil
	}

	job := models.RefreshJob{
		ID:        c.newID(),
		Status:    models.JobQueued,
		Trigger:   trigger,
		CreatedAt: c.now().UTC(),
	}
	if err := c.jobs.Save(ctx, job); err != nil {
		return models.RefreshJob{}, false, err
	}

	if _, err := c.watchlist.MarkAllPending(ctx); err != nil {
		c.finish(job, models.PassSummary{}, fmt.Errorf("failed to reset watchlist status: %w", err))
		return models.RefreshJob{}, false, err
	}
	invalidateViews(ctx, c.views, c.logger, models.InvalidatedViews(models.MutationStartRefresh)...)

	c.running = job.ID
	c.wg.Add(1)
	go c.run(job)

	c.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"trigger": trigger,
	}).Info("Refresh job accepted")
	return job, true, nil
}

func (c *RefreshJobController) run(job models.RefreshJob) {
	defer c.wg.Done()

	started := c.now().UTC()
	job.Status = models.JobRunning
	job.StartedAt = &started
	c.save(job)

	summary, err := c.runner.RunPass(c.ctx, job.ID)
	c.finish(job, summary, err)

	c.mu.Lock()
	c.running = ""
	c.mu.Unlock()
}

// finish records the terminal state of job.
func (c *RefreshJobController) finish(job models.RefreshJob, summary models.PassSummary, err error) {
	finished := c.now().UTC()
	job.FinishedAt = &finished
	job.Summary = &summary
	job.Status = models.JobDone
	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
		c.logger.WithError(err).WithField("job_id", job.ID).Error("Refresh job failed")
	}
	c.save(job)
	c.metrics.RecordRefreshJob(job.Trigger, string(job.Status))
}

// save writes job on a context that survives Stop so terminal states are kept.
func (c *RefreshJobController) save(job models.RefreshJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), jobSaveTimeout)
	defer cancel()
	if err := c.jobs.Save(ctx, job); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}).Warn("Failed to save refresh job")
	}
}

// Get returns the record of job id.
func (c *RefreshJobController) Get(ctx context.Context, id string) (models.RefreshJob, error) {
	return c.jobs.Get(ctx, id)
}

// Recent returns the newest job records, newest first.
func (c *RefreshJobController) Recent(ctx context.Context, limit int) ([]models.RefreshJob, error) {
	return c.jobs.Recent(ctx, limit)
}

// Start runs a scheduled refresh every interval. A zero interval disables the schedule.
func (c *RefreshJobController) Start(interval time.Duration) {
	if interval <= 0 {
		c.logger.Info("Scheduled health checks disabled")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.logger.WithField("interval", interval.String()).Info("Starting scheduled health checks")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				job, accepted, err := c.StartRefreshJob(c.ctx, TriggerScheduled)
				if err != nil {
					if !errors.Is(err, ErrControllerStopped) {
						c.logger.WithError(err).Error("Scheduled refresh job could not start")
					}
					continue
				}
				if !accepted {
					c.logger.WithField("job_id", job.ID).Info("Scheduled refresh skipped, a pass is already running")
				}
			}
		}
	}()
}

// Stop cancels the running pass and the schedule, then waits for them to
// return or for ctx to end. No job starts once Stop has been called.
func (c *RefreshJobController) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	c.logger.WithField("job_id", c.running).Info("Stopping refresh job controller")
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
