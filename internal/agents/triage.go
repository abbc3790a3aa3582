package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/llm"
	"github.com/linnemanlabs/quell/internal/pipeline"
)

// Triage reads the alert payload and classifies severity, blast radius, and
// a one-line summary. It owns Severity, BlastRadius, and TriageSummary.
type Triage struct {
	provider llm.Provider
	logger   log.Logger
}

// NewTriage creates the triage agent.
func NewTriage(provider llm.Provider, logger log.Logger) *Triage {
	if provider == nil {
		panic(xerrors.New("llm provider is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Triage{provider: provider, logger: logger}
}

func (a *Triage) Name() string { return "triage_agent" }

const triageSystemPrompt = `You are an expert SRE analyzing a production incident alert.
Your job is to assess severity and identify which services are affected (blast radius).

Severity levels:
- HIGH: Data loss, complete service outage, payment failures, >10k users impacted
- MED: Degraded performance, partial outage, elevated error rates, 1k-10k users impacted
- LOW: Minor degradation, <1k users impacted, non-critical service

You must respond with ONLY valid JSON, no explanation, no markdown fences. Format:
{
  "severity": "HIGH|MED|LOW",
  "blast_radius": ["service-name-1", "service-name-2"],
  "summary": "One sentence summary of what is happening and why it's serious."
}`

// Run classifies the incident's alert payload.
func (a *Triage) Run(ctx context.Context, inc *incident.Incident) (*pipeline.StageResult, error) {
	payload, err := json.MarshalIndent(inc.Alert, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal alert payload: %w", err)
	}

	prompt := fmt.Sprintf(`Analyze this production alert:

ALERT PAYLOAD:
%s

Identify:
1. Severity level (HIGH/MED/LOW)
2. All services likely affected (blast radius), inferred from service names and alert context
3. A one-sentence triage summary

Respond with ONLY the JSON object.`, payload)

	resp, err := a.provider.Generate(ctx, &llm.Request{
		MaxTokens: responseTokens,
		System:    triageSystemPrompt,
		Messages:  llm.UserText(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	var parsed struct {
		Severity    string   `json:"severity"`
		BlastRadius []string `json:"blast_radius"`
		Summary     string   `json:"summary"`
	}
	if err := extractJSON(resp.Text(), &parsed); err != nil {
		return nil, err
	}

	severity := incident.ParseSeverity(parsed.Severity)
	if parsed.Summary == "" {
		parsed.Summary = "Incident detected."
	}
	if parsed.BlastRadius == nil {
		parsed.BlastRadius = []string{}
	}

	a.logger.Info(ctx, "triage classified incident",
		"incident_id", inc.ID,
		"severity", severity,
		"blast_radius", parsed.BlastRadius,
	)

	return &pipeline.StageResult{
		Fields: incident.Fields{
			Severity:      &severity,
			BlastRadius:   parsed.BlastRadius,
			TriageSummary: &parsed.Summary,
		},
		Details: map[string]any{
			"severity":     string(severity),
			"blast_radius": parsed.BlastRadius,
		},
	}, nil
}
