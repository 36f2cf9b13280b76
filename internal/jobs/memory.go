package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps jobs in a map. Status is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.SongCode] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, songCode string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[songCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, songCode)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.SongCode]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, job.SongCode)
	}
	s.jobs[job.SongCode] = job.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, songCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[songCode]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, songCode)
	}
	delete(s.jobs, songCode)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
