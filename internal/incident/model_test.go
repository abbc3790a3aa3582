package incident

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStatus_CanTransition_Forward(t *testing.T) {
	t.Parallel()

	steps := []struct {
		from, to Status
	}{
		{StatusIngested, StatusTriaged},
		{StatusTriaged, StatusInvestigating},
		{StatusInvestigating, StatusBriefed},
		{StatusBriefed, StatusResolved},
		{StatusResolved, StatusPostmortemReady},
	}
	for _, s := range steps {
		if !s.from.CanTransition(s.to) {
			t.Errorf("CanTransition(%s -> %s) = false, want true", s.from, s.to)
		}
	}
}

func TestStatus_CanTransition_NeverBackward(t *testing.T) {
	t.Parallel()

	all := []Status{
		StatusIngested, StatusTriaged, StatusInvestigating,
		StatusBriefed, StatusResolved, StatusPostmortemReady,
	}
	for i, from := range all {
		for j, to := range all {
			if j <= i && from.CanTransition(to) {
				t.Errorf("CanTransition(%s -> %s) = true, want false", from, to)
			}
		}
	}
}

func TestStatus_CanTransition_ResolvedFromAnyEarlier(t *testing.T) {
	t.Parallel()

	for _, from := range []Status{StatusIngested, StatusTriaged, StatusInvestigating, StatusBriefed} {
		if !from.CanTransition(StatusResolved) {
			t.Errorf("CanTransition(%s -> resolved) = false, want true", from)
		}
	}
	if StatusResolved.CanTransition(StatusResolved) {
		t.Error("resolved -> resolved should be illegal")
	}
	if StatusPostmortemReady.CanTransition(StatusResolved) {
		t.Error("postmortem_ready -> resolved should be illegal")
	}
}

func TestStatus_CanTransition_PostmortemOnlyFromResolved(t *testing.T) {
	t.Parallel()

	for _, from := range []Status{StatusIngested, StatusTriaged, StatusInvestigating, StatusBriefed} {
		if from.CanTransition(StatusPostmortemReady) {
			t.Errorf("CanTransition(%s -> postmortem_ready) = true, want false", from)
		}
	}
}

func TestStatus_CanTransition_NoSkipping(t *testing.T) {
	t.Parallel()

	if StatusIngested.CanTransition(StatusInvestigating) {
		t.Error("ingested -> investigating should be illegal")
	}
	if StatusTriaged.CanTransition(StatusBriefed) {
		t.Error("triaged -> briefed should be illegal")
	}
}

func TestStatus_CanTransition_Unknown(t *testing.T) {
	t.Parallel()

	if Status("bogus").CanTransition(StatusTriaged) {
		t.Error("unknown source status should never transition")
	}
	if StatusIngested.CanTransition(Status("bogus")) {
		t.Error("unknown target status should never be reachable")
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Severity
	}{
		{"HIGH", SeverityHigh},
		{"MED", SeverityMed},
		{"LOW", SeverityLow},
		{"", SeverityMed},
		{"CRITICAL", SeverityMed},
		{"high", SeverityMed},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	alert := &AlertPayload{Source: SourceGitHub, AlarmName: "push:acme/shop"}
	inc := New(alert, SourceGitHub, "acme/shop")

	if inc.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if inc.Status != StatusIngested {
		t.Errorf("Status = %s, want %s", inc.Status, StatusIngested)
	}
	if inc.RepoID != "acme/shop" {
		t.Errorf("RepoID = %q, want %q", inc.RepoID, "acme/shop")
	}
	if inc.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if !inc.ResolvedAt.IsZero() {
		t.Error("expected ResolvedAt to be zero")
	}
}

func TestNew_UniqueSortableIDs(t *testing.T) {
	t.Parallel()

	a := New(&AlertPayload{}, SourceReplay, "")
	b := New(&AlertPayload{}, SourceReplay, "")
	if a.ID == b.ID {
		t.Fatalf("expected unique IDs, both %q", a.ID)
	}
}

func TestFields_Empty(t *testing.T) {
	t.Parallel()

	if !(Fields{}).Empty() {
		t.Error("zero Fields should be empty")
	}

	sev := SeverityHigh
	if (Fields{Severity: &sev}).Empty() {
		t.Error("Fields with severity should not be empty")
	}
	if (Fields{SuspectCommits: []SuspectCommit{}}).Empty() {
		t.Error("Fields with non-nil suspect slice should not be empty")
	}
}

func TestFields_Apply_PartialUpdate(t *testing.T) {
	t.Parallel()

	inc := &Incident{
		Severity:      SeverityLow,
		TriageSummary: "original",
		SlackMessageID: "msg-1",
	}

	sev := SeverityHigh
	conf := decimal.RequireFromString("0.92")
	f := Fields{
		Severity: &sev,
		SuspectCommits: []SuspectCommit{
			{SHA: "abc", Confidence: conf},
		},
	}
	f.Apply(inc)

	if inc.Severity != SeverityHigh {
		t.Errorf("Severity = %s, want HIGH", inc.Severity)
	}
	if len(inc.SuspectCommits) != 1 || !inc.SuspectCommits[0].Confidence.Equal(conf) {
		t.Errorf("SuspectCommits = %+v, want one entry with confidence 0.92", inc.SuspectCommits)
	}

	// untouched members keep their values
	if inc.TriageSummary != "original" {
		t.Errorf("TriageSummary = %q, want %q", inc.TriageSummary, "original")
	}
	if inc.SlackMessageID != "msg-1" {
		t.Errorf("SlackMessageID = %q, want %q", inc.SlackMessageID, "msg-1")
	}
}

func TestSuspectCommit_ConfidenceJSONExact(t *testing.T) {
	t.Parallel()

	// decimal must survive a JSON round trip without float drift
	conf := decimal.RequireFromString("0.1")
	sum := conf.Add(decimal.RequireFromString("0.2"))
	if sum.String() != "0.3" {
		t.Fatalf("0.1 + 0.2 = %s, want 0.3", sum.String())
	}
}

func TestAuditEntry_Timestamping(t *testing.T) {
	t.Parallel()

	e := AuditEntry{
		Timestamp:  time.Now().UTC(),
		Actor:      "triage_agent",
		ActionType: ActionAgentStart,
	}
	if e.Timestamp.Location() != time.UTC {
		t.Error("expected UTC timestamp")
	}
}
