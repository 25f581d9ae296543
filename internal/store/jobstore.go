// Package store persists job records for the polling endpoint. Records are
// written by exactly one worker per job id; the store only has to protect
// the mapping itself.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptmotion/api/internal/model"
)

// ErrNotFound is returned when a job id is unknown or its record expired.
var ErrNotFound = errors.New("job not found")

// Retention bounds how long terminal job records stay readable. Without it
// the mapping grows for the process lifetime.
const Retention = 24 * time.Hour

// JobStore maps job ids to job status records.
type JobStore interface {
	Save(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
}

// RedisStore keeps job records as JSON under job:<id> with a retention TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.client.Set(ctx, jobKey(job.ID), data, Retention).Err()
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.client.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// MemoryStore is the fallback when Redis is not configured: a mutex-guarded
// map with the same retention policy enforced by a sweeper.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]memoryEntry
}

type memoryEntry struct {
	job     model.Job
	savedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = memoryEntry{job: *job, savedAt: time.Now()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[jobID]
	if !ok || time.Since(entry.savedAt) > Retention {
		return nil, ErrNotFound
	}
	job := entry.job
	return &job, nil
}

// Sweep drops entries older than the retention window. Run it periodically
// from main; it exists so a long-lived process does not accumulate records
// for every job it ever served.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.jobs {
		if time.Since(entry.savedAt) > Retention {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
