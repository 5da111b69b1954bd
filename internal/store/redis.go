// Package store persists jobs and step logs in redis. Jobs live under
// job:<id> with a sliding TTL, step logs under joblogs:<id> as an
// append-only list, and jobs:recent is a capped index ordered by creation
// time.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/model"
)

const (
	recentKey = "jobs:recent"
	recentCap = 1000

	defaultTTL = 7 * 24 * time.Hour
)

// Store is the redis-backed jobs.Store.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a store. A non-positive ttl falls back to seven days.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string  { return "job:" + id }
func logsKey(id string) string { return "joblogs:" + id }

// SaveJob writes the job record and refreshes its index entry. The index
// score is the creation time, so rewrites keep their position.
func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.rdb.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, recentKey, redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	if err := s.rdb.ZRemRangeByRank(ctx, recentKey, 0, -(recentCap + 1)).Err(); err != nil {
		return fmt.Errorf("failed to trim job index: %w", err)
	}
	return nil
}

// GetJob loads one job record.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// ListJobs returns up to limit jobs, newest first. Index entries whose job
// key already expired are skipped.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.rdb.ZRevRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job index: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	out := make([]*model.Job, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job model.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		out = append(out, &job)
	}
	return out, nil
}

// AppendStepLog appends one entry to the job's log list.
func (s *Store) AppendStepLog(ctx context.Context, entry *model.StepLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal step log: %w", err)
	}

	key := logsKey(entry.JobID)
	if err := s.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append step log: %w", err)
	}
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire step log: %w", err)
	}
	return nil
}

// GetStepLogs returns a job's log entries in insertion order.
func (s *Store) GetStepLogs(ctx context.Context, jobID string) ([]model.StepLog, error) {
	raw, err := s.rdb.LRange(ctx, logsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read step logs: %w", err)
	}

	out := make([]model.StepLog, 0, len(raw))
	for _, item := range raw {
		var entry model.StepLog
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step log: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}
