package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/quell/internal/archive"
	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/llm"
	"github.com/linnemanlabs/quell/internal/pipeline"
)

// ArtifactKindPostmortem is the archive kind for postmortem documents.
const ArtifactKindPostmortem = "postmortem"

const postmortemTokens = 2048

// Postmortem generates the long-form markdown document from the full record
// and audit trail, then archives it. It owns PostmortemLocation.
type Postmortem struct {
	provider llm.Provider
	store    archive.Archive
	logger   log.Logger
}

// NewPostmortem creates the postmortem agent.
func NewPostmortem(provider llm.Provider, store archive.Archive, logger log.Logger) *Postmortem {
	if provider == nil {
		panic(xerrors.New("llm provider is required"))
	}
	if store == nil {
		panic(xerrors.New("artifact archive is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Postmortem{provider: provider, store: store, logger: logger}
}

func (a *Postmortem) Name() string { return "postmortem_agent" }

const postmortemSystemPrompt = `You are a senior SRE writing a production incident postmortem.
Write in a professional, factual, blameless tone. Focus on systems, not individuals.
Use proper Markdown formatting with headers (##), bullet points, and code blocks where appropriate.
Be thorough but concise. This document will be shared with engineering leadership.

Structure your response as a complete Markdown document with these EXACT sections:
## Summary
## Timeline
## Root Cause
## Contributing Factors
## Impact
## Resolution
## Action Items
## Lessons Learned`

// Run generates the postmortem and archives it.
func (a *Postmortem) Run(ctx context.Context, inc *incident.Incident) (*pipeline.StageResult, error) {
	doc, err := a.generate(ctx, inc)
	if err != nil {
		return nil, err
	}

	locator, err := a.store.Put(ctx, inc.ID, ArtifactKindPostmortem, []byte(doc))
	if err != nil {
		return nil, fmt.Errorf("archive postmortem: %w", err)
	}

	a.logger.Info(ctx, "postmortem archived",
		"incident_id", inc.ID,
		"locator", locator,
		"chars", len(doc),
	)

	return &pipeline.StageResult{
		Fields: incident.Fields{PostmortemLocation: &locator},
		Details: map[string]any{
			"location":   locator,
			"char_count": len(doc),
		},
	}, nil
}

func (a *Postmortem) generate(ctx context.Context, inc *incident.Incident) (string, error) {
	suspects, err := json.MarshalIndent(inc.SuspectCommits, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal suspects: %w", err)
	}
	hits, err := json.MarshalIndent(inc.RunbookHits, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal runbook hits: %w", err)
	}
	timeline, err := json.MarshalIndent(buildTimeline(inc), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal timeline: %w", err)
	}

	prompt := fmt.Sprintf(`Generate a complete blameless postmortem for this production incident.

INCIDENT DETAILS:
- Incident ID: %s
- Severity: %s
- Duration: %s
- Detected: %s
- Resolved: %s
- Affected Services: %s
- Triage Summary: %s

SUSPECT COMMITS (from automated investigation):
%s

RUNBOOK SECTIONS REFERENCED:
%s

FULL AUDIT TRAIL (chronological agent actions):
%s

Write the complete postmortem document.
- Summary: 2-3 sentences, what happened and impact
- Timeline: use the audit trail to reconstruct minute-by-minute
- Root Cause: identify the most likely technical root cause
- Contributing Factors: systemic issues that allowed this to happen
- Impact: quantify affected users and services
- Resolution: what was done to fix it
- Action Items: 3-5 concrete follow-up tasks with owners (use TBD for owner)
- Lessons Learned: what the team can learn from this`,
		inc.ID,
		inc.Severity,
		formatDuration(inc.CreatedAt, inc.ResolvedAt),
		inc.CreatedAt.Format(time.RFC3339),
		formatResolvedAt(inc.ResolvedAt),
		strings.Join(inc.BlastRadius, ", "),
		inc.TriageSummary,
		suspects,
		hits,
		timeline,
	)

	resp, err := a.provider.Generate(ctx, &llm.Request{
		MaxTokens: postmortemTokens,
		System:    postmortemSystemPrompt,
		Messages:  llm.UserText(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}

	header := fmt.Sprintf(`# Incident Postmortem %s

> **Auto-generated** | Severity: %s | Duration: %s
> *Review and edit before sharing with stakeholders*

---

`,
		strings.ToUpper(shortID(inc.ID)),
		inc.Severity,
		formatDuration(inc.CreatedAt, inc.ResolvedAt),
	)
	return header + strings.TrimSpace(resp.Text()), nil
}

type timelineEntry struct {
	TS    string `json:"ts"`
	Event string `json:"event"`
}

// buildTimeline flattens the audit log into human-readable events for the
// model context.
func buildTimeline(inc *incident.Incident) []timelineEntry {
	timeline := []timelineEntry{{
		TS:    inc.CreatedAt.Format(time.RFC3339),
		Event: "Incident detected, alert ingested",
	}}

	for _, entry := range inc.AuditLog {
		var event string
		switch entry.ActionType {
		case incident.ActionAgentComplete:
			event = entry.Actor + " completed"
		case incident.ActionAgentError:
			event = entry.Actor + " failed"
		case incident.ActionStatusTransition:
			if to, ok := entry.Details["to"].(string); ok {
				event = "Status advanced to " + to
			}
		case incident.ActionIncidentResolved:
			event = "Incident marked resolved by operator"
		}
		if event != "" {
			timeline = append(timeline, timelineEntry{
				TS:    entry.Timestamp.Format(time.RFC3339),
				Event: event,
			})
		}
	}

	if !inc.ResolvedAt.IsZero() {
		timeline = append(timeline, timelineEntry{
			TS:    inc.ResolvedAt.Format(time.RFC3339),
			Event: "Incident fully resolved",
		})
	}
	return timeline
}

func formatDuration(createdAt, resolvedAt time.Time) string {
	if resolvedAt.IsZero() || resolvedAt.Before(createdAt) {
		return "unknown duration"
	}
	total := int(resolvedAt.Sub(createdAt).Minutes())
	if total < 60 {
		return fmt.Sprintf("%d minutes", total)
	}
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}

func formatResolvedAt(t time.Time) string {
	if t.IsZero() {
		return "unresolved"
	}
	return t.Format(time.RFC3339)
}
