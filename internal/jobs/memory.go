package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and single-node dev runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs []*Job
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Enqueue(_ context.Context, name string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &Job{ID: uuid.NewString(), Name: name, Status: StatusPending, CreatedAt: s.now()}
	s.jobs = append(s.jobs, j)
	return *j, nil
}

func (s *MemoryStore) Start(_ context.Context, name string, at time.Time) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Name == name && j.Status == StatusPending {
			j.Status = StatusProcessing
			j.StartedAt = &at
			return *j, nil
		}
	}
	j := &Job{ID: uuid.NewString(), Name: name, Status: StatusProcessing, CreatedAt: at, StartedAt: &at}
	s.jobs = append(s.jobs, j)
	return *j, nil
}

func (s *MemoryStore) Finish(_ context.Context, id string, status Status, stats Stats, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			j.Status = status
			j.Stats = stats
			j.Error = errMsg
			j.CompletedAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) CountByStatus(_ context.Context, status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) RecoverInterrupted(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == StatusPending || j.Status == StatusProcessing {
			j.Status = StatusFailed
			j.Error = "interrupted by restart"
			j.CompletedAt = &at
			n++
		}
	}
	return n, nil
}
