// Package memstore provides an in-memory implementation of registry.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/quell/internal/registry"
)

// Store holds repo configs in memory. Suitable for dev/testing.
type Store struct {
	mu    sync.RWMutex
	repos map[string]*registry.RepoConfig
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		repos: make(map[string]*registry.RepoConfig),
	}
}

// Get retrieves a repo config by ID. Returns a copy.
func (s *Store) Get(_ context.Context, repoID string) (*registry.RepoConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.repos[repoID]
	if !ok {
		return nil, false, nil
	}
	cp := *cfg
	return &cp, true, nil
}

// Put stores a copy of the config.
func (s *Store) Put(_ context.Context, cfg *registry.RepoConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.repos[cfg.ID] = &cp
	return nil
}

// Delete removes a config; absent IDs are a no-op.
func (s *Store) Delete(_ context.Context, repoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, repoID)
	return nil
}

// IncrementIncidentCount bumps the counter and stamps LastIncidentAt.
func (s *Store) IncrementIncidentCount(_ context.Context, repoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.repos[repoID]
	if !ok {
		return nil
	}
	cfg.IncidentCount++
	cfg.LastIncidentAt = time.Now().UTC()
	return nil
}

// List returns all configs, newest connection first.
func (s *Store) List(_ context.Context) ([]*registry.RepoConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*registry.RepoConfig, 0, len(s.repos))
	for _, cfg := range s.repos {
		cp := *cfg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.After(out[j].ConnectedAt)
	})
	return out, nil
}
