package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/shopspring/decimal"

	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/llm"
	"github.com/linnemanlabs/quell/internal/pipeline"
)

// CommitSource fetches recent commits when the alert payload carries none.
type CommitSource interface {
	RecentCommits(ctx context.Context, repoID string, lookback time.Duration) ([]incident.Commit, error)
}

// Investigation ranks recent commits by likelihood of causing the incident.
// It owns SuspectCommits.
type Investigation struct {
	provider llm.Provider
	commits  CommitSource
	lookback time.Duration
	logger   log.Logger
}

// NewInvestigation creates the investigation agent. commits may be nil, in
// which case only payload-carried commits are considered.
func NewInvestigation(provider llm.Provider, commits CommitSource, lookback time.Duration, logger log.Logger) *Investigation {
	if provider == nil {
		panic(xerrors.New("llm provider is required"))
	}
	if lookback <= 0 {
		lookback = 6 * time.Hour
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Investigation{provider: provider, commits: commits, lookback: lookback, logger: logger}
}

func (a *Investigation) Name() string { return "investigation_agent" }

const investigationSystemPrompt = `You are a senior SRE investigating a production incident.
You will be given recent git commits and incident context. Your job is to rank which commits
most likely caused the incident.

Scoring criteria:
- Commits touching payment, auth, or core services are higher risk
- Commits with "fix", "hotfix", "patch" in message may indicate known instability
- Commits with database migrations, config changes, or dependency updates are high risk
- Recent commits (closer to incident time) score higher

Respond with ONLY valid JSON, no markdown, no explanation:
{
  "suspect_commits": [
    {
      "sha": "full commit sha",
      "author": "dev-name",
      "confidence": 0.92,
      "reason": "One sentence why this commit is suspect"
    }
  ]
}`

// Run gathers commit candidates and asks the model to rank them. An empty
// candidate list is a successful no-finding run, not an error.
func (a *Investigation) Run(ctx context.Context, inc *incident.Incident) (*pipeline.StageResult, error) {
	candidates := a.candidates(ctx, inc)
	if len(candidates) == 0 {
		a.logger.Info(ctx, "no commit candidates to investigate", "incident_id", inc.ID)
		return &pipeline.StageResult{
			Fields:  incident.Fields{SuspectCommits: []incident.SuspectCommit{}},
			Details: map[string]any{"suspect_count": 0},
		}, nil
	}

	commitJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal commits: %w", err)
	}

	prompt := fmt.Sprintf(`INCIDENT CONTEXT:
Affected services (blast radius): %s
Triage summary: %s

RECENT COMMITS:
%s

Rank the commits by likelihood of causing this incident.
Include confidence 0.0-1.0 for each.
Only include commits with confidence > 0.3.
Respond with ONLY the JSON object.`,
		strings.Join(inc.BlastRadius, ", "),
		inc.TriageSummary,
		commitJSON,
	)

	resp, err := a.provider.Generate(ctx, &llm.Request{
		MaxTokens: responseTokens,
		System:    investigationSystemPrompt,
		Messages:  llm.UserText(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	var parsed struct {
		SuspectCommits []struct {
			SHA        string          `json:"sha"`
			Author     string          `json:"author"`
			Confidence decimal.Decimal `json:"confidence"`
			Reason     string          `json:"reason"`
		} `json:"suspect_commits"`
	}
	if err := extractJSON(resp.Text(), &parsed); err != nil {
		return nil, err
	}

	bySHA := make(map[string]*incident.Commit, len(candidates))
	for i := range candidates {
		bySHA[candidates[i].SHA] = &candidates[i]
	}

	suspects := make([]incident.SuspectCommit, 0, len(parsed.SuspectCommits))
	for _, s := range parsed.SuspectCommits {
		sc := incident.SuspectCommit{
			SHA:        s.SHA,
			ShortSHA:   shortSHA(s.SHA),
			Author:     s.Author,
			Confidence: s.Confidence,
			Reason:     s.Reason,
		}
		// Backfill from the candidate list so the record does not depend on
		// the model echoing commit metadata correctly.
		if c, ok := bySHA[s.SHA]; ok {
			sc.Message = c.Message
			if sc.Author == "" {
				sc.Author = c.Author
			}
		}
		suspects = append(suspects, sc)
	}

	a.logger.Info(ctx, "investigation ranked suspects",
		"incident_id", inc.ID,
		"candidates", len(candidates),
		"suspects", len(suspects),
	)

	details := map[string]any{"suspect_count": len(suspects)}
	if len(suspects) > 0 {
		details["top_suspect"] = suspects[0].ShortSHA
	}

	return &pipeline.StageResult{
		Fields:  incident.Fields{SuspectCommits: suspects},
		Details: details,
	}, nil
}

// candidates prefers commits carried by the push payload; for non-push
// alerts it polls the source's recent history when a repo is known.
func (a *Investigation) candidates(ctx context.Context, inc *incident.Incident) []incident.Commit {
	if inc.Alert != nil && len(inc.Alert.Commits) > 0 {
		return inc.Alert.Commits
	}
	if a.commits == nil || inc.RepoID == "" {
		return nil
	}
	commits, err := a.commits.RecentCommits(ctx, inc.RepoID, a.lookback)
	if err != nil {
		a.logger.Warn(ctx, "commit history fetch failed", "repo", inc.RepoID, "error", err)
		return nil
	}
	return commits
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
