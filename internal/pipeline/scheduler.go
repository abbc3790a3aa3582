package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/quell/internal/incident"
)

// Scheduler dispatches pipeline runs without blocking the caller. Runs are
// detached from the request context so an HTTP response going out does not
// cancel a run in flight.
type Scheduler struct {
	orch   *Orchestrator
	store  incident.Store
	logger log.Logger
}

// NewScheduler creates a scheduler around an orchestrator.
func NewScheduler(orch *Orchestrator, store incident.Store, logger log.Logger) *Scheduler {
	if orch == nil {
		panic(xerrors.New("orchestrator is required"))
	}
	if store == nil {
		panic(xerrors.New("incident store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{orch: orch, store: store, logger: logger}
}

// DispatchIncident starts run 1 for the incident in the background.
func (s *Scheduler) DispatchIncident(ctx context.Context, incidentID string) {
	go s.run(context.WithoutCancel(ctx), incidentID, "incident", s.orch.RunIncident)
}

// DispatchPostmortem starts run 2 for the incident in the background.
func (s *Scheduler) DispatchPostmortem(ctx context.Context, incidentID string) {
	go s.run(context.WithoutCancel(ctx), incidentID, "postmortem", s.orch.RunPostmortem)
}

func (s *Scheduler) run(ctx context.Context, incidentID, runName string, fn func(context.Context, string) error) {
	L := s.logger.With("incident_id", incidentID, "run", runName)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			L.Error(ctx, err, "pipeline run panicked")
			if auditErr := s.store.AppendAudit(ctx, incidentID, incident.AuditEntry{
				Timestamp:  time.Now().UTC(),
				Actor:      incident.ActorOrchestrator,
				ActionType: incident.ActionPipelineError,
				Details:    map[string]any{"run": runName, "panic": fmt.Sprint(r)},
			}); auditErr != nil {
				L.Error(ctx, auditErr, "failed to record pipeline panic")
			}
		}
	}()

	if err := fn(ctx, incidentID); err != nil {
		L.Error(ctx, err, "pipeline run failed")
	}
}
