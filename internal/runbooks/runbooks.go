// Package runbooks provides the runbook knowledge-base search collaborator
// used by the runbook lookup stage.
package runbooks

import (
	"context"

	"github.com/linnemanlabs/quell/internal/incident"
)

// Searcher finds runbook sections relevant to a free-text incident query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]incident.RunbookHit, error)
}

// Dedupe collapses hits sharing a runbook ID into one entry per ID, keeping
// the maximum relevance among duplicates. Ties keep the first-seen entry.
// Output preserves first-seen order of IDs.
func Dedupe(hits []incident.RunbookHit) []incident.RunbookHit {
	if len(hits) <= 1 {
		return hits
	}

	best := make(map[string]int, len(hits)) // runbook ID -> index into out
	out := make([]incident.RunbookHit, 0, len(hits))

	for _, h := range hits {
		i, seen := best[h.RunbookID]
		if !seen {
			best[h.RunbookID] = len(out)
			out = append(out, h)
			continue
		}
		if h.Relevance.GreaterThan(out[i].Relevance) {
			out[i] = h
		}
	}
	return out
}
