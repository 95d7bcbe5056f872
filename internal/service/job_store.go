package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/videoweave/api/internal/model"
)

var (
	// ErrJobNotFound means no job exists under the requested id.
	ErrJobNotFound = errors.New("job not found")
	// ErrStaleJobVersion rejects a write whose snapshot is out of date. The
	// caller must re-read and retry; it is never surfaced to the end caller.
	ErrStaleJobVersion = errors.New("stale job version")
)

// JobStore persists job records. Update is compare-and-swap on Job.Version:
// a write against a version that is no longer current fails with
// ErrStaleJobVersion, so concurrent actors (worker, canceller) cannot lose
// each other's updates.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	// List returns jobs newest first. An empty owner lists all jobs.
	List(ctx context.Context, owner string) ([]*model.Job, error)
}

// MutateJob applies fn to a fresh read of the job and writes it back,
// re-reading on version conflicts. fn sees current state on every attempt, so
// state checks inside it stay correct under contention.
func MutateJob(ctx context.Context, store JobStore, id string, fn func(*model.Job) error) (*model.Job, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		job, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(job); err != nil {
			return nil, err
		}
		err = store.Update(ctx, job)
		if errors.Is(err, ErrStaleJobVersion) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, fmt.Errorf("job %s: %w after %d attempts", id, ErrStaleJobVersion, maxAttempts)
}

const (
	jobKeyPrefix = "job:"
	jobIndexKey  = "jobs:index"
	jobTTL       = 24 * time.Hour
)

// RedisJobStore keeps job records as JSON values in Redis, with a WATCH-based
// transaction implementing the version check.
type RedisJobStore struct {
	redis *redis.Client
}

func NewRedisJobStore(redisClient *redis.Client) *RedisJobStore {
	return &RedisJobStore{redis: redisClient}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (s *RedisJobStore) Create(ctx context.Context, job *model.Job) error {
	job.Version = 1
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, jobTTL)
	pipe.LPush(ctx, jobIndexKey, job.ID)
	pipe.Expire(ctx, jobIndexKey, jobTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisJobStore) Update(ctx context.Context, job *model.Job) error {
	key := jobKey(job.ID)
	newVersion := job.Version + 1

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}
		var current model.Job
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("unmarshal job %s: %w", job.ID, err)
		}
		if current.Version != job.Version {
			return ErrStaleJobVersion
		}

		next := *job
		next.Version = newVersion
		next.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, jobTTL)
			return nil
		})
		return err
	}

	err := s.redis.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleJobVersion
	}
	if err != nil {
		return err
	}
	job.Version = newVersion
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *RedisJobStore) List(ctx context.Context, owner string) ([]*model.Job, error) {
	ids, err := s.redis.LRange(ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue // expired record, index entry outlived it
		}
		if err != nil {
			return nil, err
		}
		if owner != "" && job.Owner != owner {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// MemoryJobStore is the in-process JobStore used by tests and by development
// setups without Redis. It implements the same version CAS semantics.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string][]byte
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string][]byte)}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Version = 1
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.jobs[job.ID] = data
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *MemoryJobStore) getLocked(id string) (*model.Job, error) {
	data, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MemoryJobStore) Update(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.getLocked(job.ID)
	if err != nil {
		return err
	}
	if current.Version != job.Version {
		return ErrStaleJobVersion
	}
	job.Version++
	job.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.jobs[job.ID] = data
	return nil
}

func (s *MemoryJobStore) List(ctx context.Context, owner string) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*model.Job
	for id := range s.jobs {
		job, err := s.getLocked(id)
		if err != nil {
			return nil, err
		}
		if owner != "" && job.Owner != owner {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}
