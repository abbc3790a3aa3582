// Package pipeline orchestrates the automated incident response runs. Run 1
// drives a fresh incident from ingested through briefed; run 2 produces the
// postmortem after an operator resolves. Stage agents own disjoint fields on
// the record, so concurrent stages never write the same member.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/quell/internal/incident"
)

// Agent is one pipeline stage. Run receives a snapshot of the record and
// returns the fields the stage owns; it must not mutate its input.
type Agent interface {
	Name() string
	Run(ctx context.Context, inc *incident.Incident) (*StageResult, error)
}

// StageResult carries a stage's owned field updates plus detail for the
// stage's terminal audit entry.
type StageResult struct {
	Fields  incident.Fields
	Details map[string]any
}

// Agents is the full stage roster for both runs.
type Agents struct {
	Triage        Agent
	Investigation Agent
	Runbook       Agent
	Communication Agent
	Postmortem    Agent
}

// Orchestrator executes pipeline runs against the incident store. It owns
// every status transition; agents never touch Status.
type Orchestrator struct {
	store   incident.Store
	agents  Agents
	logger  log.Logger
	metrics *Metrics
}

// NewOrchestrator creates an orchestrator. metrics may be nil.
func NewOrchestrator(store incident.Store, agents Agents, logger log.Logger, metrics *Metrics) *Orchestrator {
	if store == nil {
		panic(xerrors.New("incident store is required"))
	}
	if agents.Triage == nil || agents.Investigation == nil || agents.Runbook == nil ||
		agents.Communication == nil || agents.Postmortem == nil {
		panic(xerrors.New("all five stage agents are required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Orchestrator{
		store:   store,
		agents:  agents,
		logger:  logger,
		metrics: metrics,
	}
}

// RunIncident executes run 1. Triage failure aborts the run before any
// status advance. The investigation/runbook pair runs concurrently behind a
// barrier that always joins both; either may fail without cancelling its
// sibling. Communication failure is fatal and parks the incident at
// investigating. There are no per-stage timeouts and no retries.
func (o *Orchestrator) RunIncident(ctx context.Context, id string) error {
	started := time.Now()
	outcome := "error"
	defer func() { o.metrics.observeRun("incident", outcome, time.Since(started).Seconds()) }()

	inc, ok, err := o.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load incident: %w", err)
	}
	if !ok {
		return fmt.Errorf("load incident %s: %w", id, incident.ErrNotFound)
	}

	L := o.logger.With("incident_id", id)

	if err := o.runStage(ctx, o.agents.Triage, inc); err != nil {
		return err
	}
	if err := o.advance(ctx, id, incident.StatusTriaged); err != nil {
		return err
	}
	if err := o.advance(ctx, id, incident.StatusInvestigating); err != nil {
		return err
	}

	snapshot, ok, err := o.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load post-triage snapshot: %w", err)
	}
	if !ok {
		return fmt.Errorf("load post-triage snapshot %s: %w", id, incident.ErrNotFound)
	}

	// Both stages read the same snapshot and write disjoint fields. The
	// barrier joins both even when one fails; a failed stage leaves its
	// field at the default and the run keeps going.
	var wg sync.WaitGroup
	for _, agent := range []Agent{o.agents.Investigation, o.agents.Runbook} {
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()
			if err := o.runStage(ctx, a, snapshot); err != nil {
				L.Warn(ctx, "parallel stage failed", "agent", a.Name(), "error", err)
			}
		}(agent)
	}
	wg.Wait()

	merged, ok, err := o.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load merged record: %w", err)
	}
	if !ok {
		return fmt.Errorf("load merged record %s: %w", id, incident.ErrNotFound)
	}

	if err := o.runStage(ctx, o.agents.Communication, merged); err != nil {
		return err
	}
	if err := o.advance(ctx, id, incident.StatusBriefed); err != nil {
		return err
	}

	outcome = "briefed"
	L.Info(ctx, "incident run complete", "duration", time.Since(started))
	return nil
}

// RunPostmortem executes run 2 on a resolved incident. On failure the
// incident stays resolved and the error propagates.
func (o *Orchestrator) RunPostmortem(ctx context.Context, id string) error {
	started := time.Now()
	outcome := "error"
	defer func() { o.metrics.observeRun("postmortem", outcome, time.Since(started).Seconds()) }()

	inc, ok, err := o.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load incident: %w", err)
	}
	if !ok {
		return fmt.Errorf("load incident %s: %w", id, incident.ErrNotFound)
	}

	if err := o.runStage(ctx, o.agents.Postmortem, inc); err != nil {
		return err
	}
	if err := o.advance(ctx, id, incident.StatusPostmortemReady); err != nil {
		return err
	}

	outcome = "postmortem_ready"
	o.logger.Info(ctx, "postmortem run complete", "incident_id", id, "duration", time.Since(started))
	return nil
}

// runStage executes one agent against a snapshot, persisting its owned
// fields and exactly one terminal audit entry. A store failure always
// propagates; audit history is never silently dropped.
func (o *Orchestrator) runStage(ctx context.Context, agent Agent, inc *incident.Incident) error {
	name := agent.Name()
	if err := o.store.AppendAudit(ctx, inc.ID, incident.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Actor:      name,
		ActionType: incident.ActionAgentStart,
	}); err != nil {
		return fmt.Errorf("record %s start: %w", name, err)
	}

	started := time.Now()
	res, err := agent.Run(ctx, inc)
	elapsed := time.Since(started)
	if err != nil {
		o.metrics.observeStage(name, "error", elapsed.Seconds())
		if auditErr := o.store.AppendAudit(ctx, inc.ID, incident.AuditEntry{
			Timestamp:  time.Now().UTC(),
			Actor:      name,
			ActionType: incident.ActionAgentError,
			Details:    map[string]any{"error": err.Error(), "duration_ms": elapsed.Milliseconds()},
		}); auditErr != nil {
			return fmt.Errorf("record %s error: %w", name, auditErr)
		}
		return fmt.Errorf("%s stage: %w", name, err)
	}

	if res != nil && !res.Fields.Empty() {
		if err := o.store.Update(ctx, inc.ID, res.Fields); err != nil {
			return fmt.Errorf("persist %s fields: %w", name, err)
		}
	}

	details := map[string]any{"duration_ms": elapsed.Milliseconds()}
	if res != nil {
		for k, v := range res.Details {
			details[k] = v
		}
	}
	if err := o.store.AppendAudit(ctx, inc.ID, incident.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Actor:      name,
		ActionType: incident.ActionAgentComplete,
		Details:    details,
	}); err != nil {
		return fmt.Errorf("record %s completion: %w", name, err)
	}

	o.metrics.observeStage(name, "success", elapsed.Seconds())
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, id string, next incident.Status) error {
	if err := o.store.SetStatus(ctx, id, next); err != nil {
		return fmt.Errorf("advance to %s: %w", next, err)
	}
	if err := o.store.AppendAudit(ctx, id, incident.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Actor:      incident.ActorOrchestrator,
		ActionType: incident.ActionStatusTransition,
		Details:    map[string]any{"to": string(next)},
	}); err != nil {
		return fmt.Errorf("record transition to %s: %w", next, err)
	}
	return nil
}
