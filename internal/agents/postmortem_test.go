package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/quell/internal/incident"
)

type fakeArchive struct {
	err     error
	gotID   string
	gotKind string
	content []byte
}

func (a *fakeArchive) Put(_ context.Context, incidentID, kind string, content []byte) (string, error) {
	a.gotID = incidentID
	a.gotKind = kind
	a.content = content
	if a.err != nil {
		return "", a.err
	}
	return "file://artifacts/" + incidentID + "/" + kind + ".md", nil
}

func (a *fakeArchive) Get(_ context.Context, locator string) ([]byte, error) {
	return a.content, nil
}

func resolvedIncident() *incident.Incident {
	inc := briefedIncident()
	inc.Status = incident.StatusResolved
	inc.ResolvedAt = inc.CreatedAt.Add(47 * time.Minute)
	inc.AuditLog = []incident.AuditEntry{
		{Timestamp: inc.CreatedAt, Actor: "triage_agent", ActionType: incident.ActionAgentComplete},
		{Timestamp: inc.CreatedAt.Add(time.Minute), Actor: incident.ActorOrchestrator,
			ActionType: incident.ActionStatusTransition, Details: map[string]any{"to": "triaged"}},
		{Timestamp: inc.CreatedAt.Add(2 * time.Minute), Actor: "runbook_agent", ActionType: incident.ActionAgentError},
		{Timestamp: inc.ResolvedAt, Actor: incident.ActorAPI, ActionType: incident.ActionIncidentResolved},
	}
	return inc
}

func TestPostmortem_Run(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{text: "## Summary\nPayment gateway timeout misconfiguration.\n\n## Timeline\n..."}
	store := &fakeArchive{}
	agent := NewPostmortem(provider, store, nil)

	inc := resolvedIncident()
	res, err := agent.Run(context.Background(), inc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.gotID != inc.ID || store.gotKind != ArtifactKindPostmortem {
		t.Errorf("archived as (%s, %s)", store.gotID, store.gotKind)
	}
	wantLocator := "file://artifacts/" + inc.ID + "/postmortem.md"
	if res.Fields.PostmortemLocation == nil || *res.Fields.PostmortemLocation != wantLocator {
		t.Errorf("PostmortemLocation = %v, want %s", res.Fields.PostmortemLocation, wantLocator)
	}
	if res.Details["char_count"] != len(store.content) {
		t.Errorf("char_count = %v, want %d", res.Details["char_count"], len(store.content))
	}

	doc := string(store.content)
	if !strings.HasPrefix(doc, "# Incident Postmortem "+strings.ToUpper(shortID(inc.ID))) {
		t.Errorf("document header missing: %q", firstLine(doc))
	}
	if !strings.Contains(doc, "Duration: 47 minutes") {
		t.Errorf("header duration missing: %q", doc[:200])
	}
	if !strings.Contains(doc, "## Summary") {
		t.Error("model body not appended to header")
	}
}

func TestPostmortem_ArchiveFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{text: "## Summary\nok"}
	agent := NewPostmortem(provider, &fakeArchive{err: errors.New("bucket gone")}, nil)

	if _, err := agent.Run(context.Background(), resolvedIncident()); err == nil {
		t.Fatal("Run = nil, want archive error")
	}
}

func TestPostmortem_PromptCarriesRecord(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{text: "## Summary\nok"}
	agent := NewPostmortem(provider, &fakeArchive{}, nil)

	inc := resolvedIncident()
	if _, err := agent.Run(context.Background(), inc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	prompt := provider.lastRequest(t).Messages[0].Content[0].Text
	for _, want := range []string{"a3f8c21", "rb-payments-5xx", "Incident marked resolved by operator"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildTimeline(t *testing.T) {
	t.Parallel()

	inc := resolvedIncident()
	timeline := buildTimeline(inc)

	events := make([]string, 0, len(timeline))
	for _, e := range timeline {
		events = append(events, e.Event)
	}
	want := []string{
		"Incident detected, alert ingested",
		"triage_agent completed",
		"Status advanced to triaged",
		"runbook_agent failed",
		"Incident marked resolved by operator",
		"Incident fully resolved",
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		resolved time.Time
		want     string
	}{
		{name: "minutes", resolved: base.Add(47 * time.Minute), want: "47 minutes"},
		{name: "hours", resolved: base.Add(3*time.Hour + 5*time.Minute), want: "3h 5m"},
		{name: "unresolved", resolved: time.Time{}, want: "unknown duration"},
		{name: "clock skew", resolved: base.Add(-time.Minute), want: "unknown duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatDuration(base, tt.resolved); got != tt.want {
				t.Errorf("formatDuration = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatResolvedAt(t *testing.T) {
	t.Parallel()

	if got := formatResolvedAt(time.Time{}); got != "unresolved" {
		t.Errorf("formatResolvedAt(zero) = %q", got)
	}
	ts := time.Date(2026, 3, 14, 10, 47, 0, 0, time.UTC)
	if got := formatResolvedAt(ts); got != "2026-03-14T10:47:00Z" {
		t.Errorf("formatResolvedAt = %q", got)
	}
}
