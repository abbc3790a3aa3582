package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/pipeline"
	"github.com/linnemanlabs/quell/internal/runbooks"
)

// Runbook searches the knowledge base for remediation sections matching the
// triaged incident. It owns RunbookHits.
type Runbook struct {
	searcher   runbooks.Searcher
	maxResults int
	logger     log.Logger
}

// NewRunbook creates the runbook agent.
func NewRunbook(searcher runbooks.Searcher, maxResults int, logger log.Logger) *Runbook {
	if searcher == nil {
		panic(xerrors.New("runbook searcher is required"))
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Runbook{searcher: searcher, maxResults: maxResults, logger: logger}
}

func (a *Runbook) Name() string { return "runbook_agent" }

// Run queries the searcher with the triage outcome and deduplicates hits by
// runbook ID, keeping the highest relevance per runbook.
func (a *Runbook) Run(ctx context.Context, inc *incident.Incident) (*pipeline.StageResult, error) {
	query := buildSearchQuery(inc)

	hits, err := a.searcher.Search(ctx, query, a.maxResults)
	if err != nil {
		return nil, fmt.Errorf("runbook search: %w", err)
	}
	hits = runbooks.Dedupe(hits)

	a.logger.Info(ctx, "runbook search complete",
		"incident_id", inc.ID,
		"query", query,
		"hits", len(hits),
	)

	details := map[string]any{"query": query, "hits_count": len(hits)}
	if len(hits) > 0 {
		details["top_runbook"] = hits[0].RunbookID
	}

	return &pipeline.StageResult{
		Fields:  incident.Fields{RunbookHits: hits},
		Details: details,
	}, nil
}

func buildSearchQuery(inc *incident.Incident) string {
	services := strings.Join(inc.BlastRadius, " ")
	return strings.TrimSpace(fmt.Sprintf("%s incident affecting %s. %s",
		inc.Severity, services, inc.TriageSummary))
}
