// File: internal/registry/memory.go
// In-memory job registry, the default backend. It stores snapshots only, so
// callers can never reach into a record the orchestrator is still mutating.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// MemoryStore is a thread-safe, process-local schemas.JobStore.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*schemas.Job
}

var _ schemas.JobStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*schemas.Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *schemas.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Snapshot()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, job *schemas.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return schemas.ErrJobNotFound
	}
	s.jobs[job.ID] = job.Snapshot()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*schemas.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, schemas.ErrJobNotFound
	}
	return job.Snapshot(), nil
}

func (s *MemoryStore) List(_ context.Context, filter schemas.JobFilter) ([]*schemas.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*schemas.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		// CreatedAt ties happen in tests; keep the order stable anyway.
		return matched[i].ID > matched[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = schemas.DefaultListLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*schemas.Job, len(matched))
	for i, job := range matched {
		out[i] = job.Snapshot()
	}
	return out, nil
}
