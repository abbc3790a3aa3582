package incident

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Status tracks where an incident is in its lifecycle. Transitions are
// strictly forward; see CanTransition.
type Status string

const (
	// StatusIngested means the incident was created from an accepted alert.
	StatusIngested Status = "ingested"

	// StatusTriaged means the triage stage completed and severity is known.
	StatusTriaged Status = "triaged"

	// StatusInvestigating means the parallel investigation/runbook pair is running.
	StatusInvestigating Status = "investigating"

	// StatusBriefed means the war-room brief was posted.
	StatusBriefed Status = "briefed"

	// StatusResolved means an operator marked the incident resolved.
	StatusResolved Status = "resolved"

	// StatusPostmortemReady means the postmortem document was generated and archived.
	StatusPostmortemReady Status = "postmortem_ready"
)

// rank orders statuses for monotonicity checks. Higher never goes back to lower.
var rank = map[Status]int{
	StatusIngested:        0,
	StatusTriaged:         1,
	StatusInvestigating:   2,
	StatusBriefed:         3,
	StatusResolved:        4,
	StatusPostmortemReady: 5,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. The pipeline advances one status at a time; resolved is reachable
// from any earlier status because an operator may resolve an incident whose
// pipeline stalled or aborted. postmortem_ready only follows resolved.
func (s Status) CanTransition(next Status) bool {
	from, ok := rank[s]
	if !ok {
		return false
	}
	to, ok := rank[next]
	if !ok {
		return false
	}
	if next == StatusResolved {
		return from < rank[StatusResolved]
	}
	if next == StatusPostmortemReady {
		return s == StatusResolved
	}
	return to == from+1
}

// Severity is the triage-assigned impact level.
type Severity string

const (
	SeverityLow  Severity = "LOW"
	SeverityMed  Severity = "MED"
	SeverityHigh Severity = "HIGH"
)

// ParseSeverity normalizes a severity string, defaulting to MED for
// anything unrecognized so a sloppy model response never breaks the record.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMed, SeverityHigh:
		return Severity(s)
	}
	return SeverityMed
}

// Source identifies what produced the triggering alert.
type Source string

const (
	SourceGitHub     Source = "github"
	SourceCloudWatch Source = "cloudwatch"
	SourceReplay     Source = "replay"
)

// Commit is one commit carried by a push payload or fetched from the
// source's history.
type Commit struct {
	SHA       string    `json:"sha"`
	ShortSHA  string    `json:"short_sha"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Email     string    `json:"email,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	URL       string    `json:"url,omitempty"`
	Added     []string  `json:"added,omitempty"`
	Removed   []string  `json:"removed,omitempty"`
	Modified  []string  `json:"modified,omitempty"`
}

// AlertPayload is the canonical trigger record. The gateway produces the same
// shape for a GitHub push and for a replayed/polled alarm so stages never
// branch on origin.
type AlertPayload struct {
	Source     Source   `json:"source"`
	RepoID     string   `json:"repo_id,omitempty"`
	RepoURL    string   `json:"repo_url,omitempty"`
	Ref        string   `json:"ref,omitempty"`
	Before     string   `json:"before,omitempty"`
	After      string   `json:"after,omitempty"`
	HeadCommit *Commit  `json:"head_commit,omitempty"`
	Commits    []Commit `json:"commits,omitempty"`
	Pusher     string   `json:"pusher,omitempty"`

	// Alarm-compatible fields so the triage prompt works for every origin.
	AlarmName        string `json:"alarm_name"`
	AlarmDescription string `json:"alarm_description,omitempty"`
	AlarmReason      string `json:"alarm_reason,omitempty"`
}

// SuspectCommit is one investigation finding. Confidence is an exact decimal
// so scores survive the round trip through the store unchanged.
type SuspectCommit struct {
	SHA        string          `json:"sha"`
	ShortSHA   string          `json:"short_sha"`
	Message    string          `json:"message"`
	Author     string          `json:"author"`
	Confidence decimal.Decimal `json:"confidence"`
	Reason     string          `json:"reason,omitempty"`
}

// RunbookHit is one knowledge-base match from the runbook stage.
type RunbookHit struct {
	RunbookID       string          `json:"runbook_id"`
	Section         string          `json:"section"`
	Snippet         string          `json:"snippet"`
	Relevance       decimal.Decimal `json:"relevance"`
	SourceURI       string          `json:"source_uri,omitempty"`
	FirstActionStep string          `json:"first_action_step,omitempty"`
}

// AuditEntry is one immutable, timestamped record of a stage or orchestrator
// action. Entries are only ever appended, never modified or removed.
type AuditEntry struct {
	Timestamp  time.Time      `json:"ts"`
	Actor      string         `json:"actor"`
	ActionType string         `json:"action_type"`
	Details    map[string]any `json:"details,omitempty"`
}

// Audit actors.
const (
	ActorGateway      = "gateway"
	ActorAPI          = "api"
	ActorOrchestrator = "orchestrator"
)

// Audit action types.
const (
	ActionAgentStart       = "agent_start"
	ActionAgentComplete    = "agent_complete"
	ActionAgentError       = "agent_error"
	ActionStatusTransition = "status_transition"
	ActionPipelineError    = "pipeline_error"
	ActionIncidentResolved = "incident_resolved"
)

// Incident is one tracked occurrence of an alert, from detection through
// postmortem. Each stage-owned field is written by exactly one stage; the
// orchestrator owns Status. Incidents are never deleted.
type Incident struct {
	ID         string        `json:"id"`
	Status     Status        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt time.Time     `json:"resolved_at,omitzero"`
	Source     Source        `json:"alert_source"`
	RepoID     string        `json:"repo_id,omitempty"`
	Alert      *AlertPayload `json:"alert_payload"`

	// Owned by triage.
	Severity      Severity `json:"severity,omitempty"`
	BlastRadius   []string `json:"blast_radius"`
	TriageSummary string   `json:"triage_summary,omitempty"`

	// Owned by investigation.
	SuspectCommits []SuspectCommit `json:"suspect_commits"`

	// Owned by runbook lookup.
	RunbookHits []RunbookHit `json:"runbook_hits"`

	// Owned by communication.
	SlackMessageID         string `json:"slack_message_id,omitempty"`
	EstimatedUsersAffected int    `json:"estimated_users_affected"`

	// Owned by postmortem.
	PostmortemLocation string `json:"postmortem_location,omitempty"`

	AuditLog []AuditEntry `json:"audit_log"`
}

// New creates an incident at StatusIngested with a fresh ULID.
func New(alert *AlertPayload, source Source, repoID string) *Incident {
	return &Incident{
		ID:        ulid.Make().String(),
		Status:    StatusIngested,
		CreatedAt: time.Now().UTC(),
		Source:    source,
		RepoID:    repoID,
		Alert:     alert,
	}
}

// Fields is a partial update: each non-nil member is set atomically on the
// record, last-writer-wins per field. The pipeline's field-partitioned
// ownership means no two concurrent writers ever populate the same member.
type Fields struct {
	Severity               *Severity
	BlastRadius            []string
	TriageSummary          *string
	SuspectCommits         []SuspectCommit
	RunbookHits            []RunbookHit
	SlackMessageID         *string
	EstimatedUsersAffected *int
	PostmortemLocation     *string
}

// Empty reports whether the update carries no field at all.
func (f Fields) Empty() bool {
	return f.Severity == nil && f.BlastRadius == nil && f.TriageSummary == nil &&
		f.SuspectCommits == nil && f.RunbookHits == nil && f.SlackMessageID == nil &&
		f.EstimatedUsersAffected == nil && f.PostmortemLocation == nil
}

// Apply sets the non-nil members of f on inc.
func (f Fields) Apply(inc *Incident) {
	if f.Severity != nil {
		inc.Severity = *f.Severity
	}
	if f.BlastRadius != nil {
		inc.BlastRadius = f.BlastRadius
	}
	if f.TriageSummary != nil {
		inc.TriageSummary = *f.TriageSummary
	}
	if f.SuspectCommits != nil {
		inc.SuspectCommits = f.SuspectCommits
	}
	if f.RunbookHits != nil {
		inc.RunbookHits = f.RunbookHits
	}
	if f.SlackMessageID != nil {
		inc.SlackMessageID = *f.SlackMessageID
	}
	if f.EstimatedUsersAffected != nil {
		inc.EstimatedUsersAffected = *f.EstimatedUsersAffected
	}
	if f.PostmortemLocation != nil {
		inc.PostmortemLocation = *f.PostmortemLocation
	}
}
