package incident

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store mutations targeting an unknown incident ID.
var ErrNotFound = errors.New("incident not found")

// ErrIllegalTransition is returned by SetStatus when the requested status is
// not a legal forward step from the current one.
var ErrIllegalTransition = errors.New("illegal status transition")

// Store is the persistence interface for incidents.
//
// AppendAudit must be atomic at the storage layer, not caller-side
// read-modify-write: the two parallel pipeline stages append concurrently and
// neither entry may be lost. The relative order of racing appends is
// storage arrival order.
type Store interface {
	// Create persists a new incident. The incident ID must be unused.
	Create(ctx context.Context, inc *Incident) error

	// Get returns a copy of the incident, or ok=false when absent.
	Get(ctx context.Context, id string) (*Incident, bool, error)

	// Update applies a partial field update; each non-nil field is set
	// atomically, last-writer-wins per field.
	Update(ctx context.Context, id string, fields Fields) error

	// SetStatus advances the incident status, enforcing the lifecycle
	// guard. Transitioning to StatusResolved stamps ResolvedAt exactly once.
	// Returns ErrIllegalTransition for a non-forward step.
	SetStatus(ctx context.Context, id string, next Status) error

	// AppendAudit appends one immutable entry to the incident's audit log.
	AppendAudit(ctx context.Context, id string, entry AuditEntry) error

	// List returns up to limit incidents, newest first.
	List(ctx context.Context, limit int) ([]*Incident, error)
}
