package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix  = "refresh_job:"
	recentJobsKey = "refresh_jobs:recent"
	recentJobsMax = 50
)

// JobStore keeps refresh job records in Redis for a fixed TTL.
type JobStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewJobStore creates a new Redis-based job store
func NewJobStore(redisClient *redis.Client, ttl time.Duration) *JobStore {
	return &JobStore{redis: redisClient, ttl: ttl}
}

// Save writes job, replacing any earlier record with the same id.
// New ids are also pushed onto the bounded recent-jobs list.
func (s *JobStore) Save(ctx context.Context, job models.RefreshJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize refresh job: %w", err)
	}

	key := jobKeyPrefix + job.ID
	created, err := s.redis.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save refresh job: %w: %w", utils.ErrStorageUnavailable, err)
	}
	if !created {
		if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to save refresh job: %w: %w", utils.ErrStorageUnavailable, err)
		}
		return nil
	}

	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, recentJobsKey, job.ID)
	pipe.LTrim(ctx, recentJobsKey, 0, recentJobsMax-1)
	pipe.Expire(ctx, recentJobsKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index refresh job: %w: %w", utils.ErrStorageUnavailable, err)
	}
	return nil
}

// Get returns the job with id, or ErrNotFound once it has expired.
func (s *JobStore) Get(ctx context.Context, id string) (models.RefreshJob, error) {
	data, err := s.redis.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RefreshJob{}, fmt.Errorf("refresh job %s: %w", id, utils.ErrNotFound)
	}
	if err != nil {
		return models.RefreshJob{}, fmt.Errorf("failed to read refresh job: %w: %w", utils.ErrStorageUnavailable, err)
	}

	var job models.RefreshJob
	if err := json.Unmarshal(data, &job); err != nil {
		return models.RefreshJob{}, fmt.Errorf("failed to decode refresh job %s: %w", id, err)
	}
	return job, nil
}

// Recent returns up to limit of the newest jobs that have not expired, newest first.
func (s *JobStore) Recent(ctx context.Context, limit int) ([]models.RefreshJob, error) {
	if limit <= 0 || limit > recentJobsMax {
		limit = recentJobsMax
	}
	ids, err := s.redis.LRange(ctx, recentJobsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh jobs: %w: %w", utils.ErrStorageUnavailable, err)
	}

	jobs := make([]models.RefreshJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, utils.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
