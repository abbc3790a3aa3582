// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/quell/internal/incident"
)

// Store holds incidents in memory. Suitable for dev/testing.
type Store struct {
	mu        sync.RWMutex
	incidents map[string]*incident.Incident
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		incidents: make(map[string]*incident.Incident),
	}
}

// Create stores a copy of the incident. The ID must be unused.
func (s *Store) Create(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.incidents[inc.ID]; exists {
		return fmt.Errorf("incident %s already exists", inc.ID)
	}
	s.incidents[inc.ID] = clone(inc)
	return nil
}

// Get retrieves an incident by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	return clone(inc), true, nil
}

// Update applies a partial field update under the store lock.
func (s *Store) Update(_ context.Context, id string, fields incident.Fields) error {
	if fields.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	fields.Apply(inc)
	return nil
}

// SetStatus advances the status, enforcing the lifecycle guard.
func (s *Store) SetStatus(_ context.Context, id string, next incident.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	if !inc.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", incident.ErrIllegalTransition, inc.Status, next)
	}
	inc.Status = next
	if next == incident.StatusResolved && inc.ResolvedAt.IsZero() {
		inc.ResolvedAt = time.Now().UTC()
	}
	return nil
}

// AppendAudit appends one entry to the audit log under the store lock, so
// concurrent appends from the parallel stages interleave without loss.
func (s *Store) AppendAudit(_ context.Context, id string, entry incident.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	inc.AuditLog = append(inc.AuditLog, entry)
	return nil
}

// List returns up to limit incidents, newest first.
func (s *Store) List(_ context.Context, limit int) ([]*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*incident.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, clone(inc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clone copies an incident deeply enough that callers can't mutate stored
// state through the returned pointer (slices are reallocated, the payload is
// treated as immutable once created).
func clone(inc *incident.Incident) *incident.Incident {
	cp := *inc
	cp.BlastRadius = append([]string(nil), inc.BlastRadius...)
	cp.SuspectCommits = append([]incident.SuspectCommit(nil), inc.SuspectCommits...)
	cp.RunbookHits = append([]incident.RunbookHit(nil), inc.RunbookHits...)
	cp.AuditLog = append([]incident.AuditEntry(nil), inc.AuditLog...)
	return &cp
}
