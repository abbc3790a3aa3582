// Package memsearch provides a keyword-scored in-memory runbooks.Searcher,
// used in dev/replay mode when no database is configured.
package memsearch

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/linnemanlabs/quell/internal/incident"
)

// Entry is one indexed runbook section.
type Entry struct {
	RunbookID       string
	Section         string
	Snippet         string
	SourceURI       string
	FirstActionStep string
}

// Searcher scores entries by token overlap between query and section text.
type Searcher struct {
	entries []Entry
}

// New builds a Searcher over the given entries.
func New(entries []Entry) *Searcher {
	return &Searcher{entries: entries}
}

// Search returns up to limit hits ordered by descending relevance. A zero
// overlap excludes the entry; no hits is a legitimate empty result, not an
// error.
func (s *Searcher) Search(_ context.Context, query string, limit int) ([]incident.RunbookHit, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []incident.RunbookHit
	for _, e := range s.entries {
		score := overlap(terms, tokenize(e.Section+" "+e.Snippet))
		if score == 0 {
			continue
		}
		// Fraction of query terms matched, to 3 decimal places.
		rel := decimal.NewFromInt(int64(score)).
			Div(decimal.NewFromInt(int64(len(terms)))).
			Round(3)
		hits = append(hits, incident.RunbookHit{
			RunbookID:       e.RunbookID,
			Section:         e.Section,
			Snippet:         e.Snippet,
			Relevance:       rel,
			SourceURI:       e.SourceURI,
			FirstActionStep: e.FirstActionStep,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Relevance.GreaterThan(hits[j].Relevance)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:()[]{}\"'")
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

func overlap(query, text map[string]bool) int {
	n := 0
	for w := range query {
		if text[w] {
			n++
		}
	}
	return n
}

// Seed returns the bundled demo runbook sections for replay mode.
func Seed() []Entry {
	return []Entry{
		{
			RunbookID: "RB-0042",
			Section:   "Payment Gateway Timeout Recovery",
			Snippet: "When payment-service reports elevated timeout errors, immediately check the " +
				"gateway configuration for recent changes. Roll back any timeout/retry config " +
				"changes deployed in the last 6 hours. Verify downstream dependency health " +
				"at /health endpoints. If timeouts exceed 30s, enable circuit breaker mode.",
			SourceURI:       "s3://quell-runbooks/payments/gateway-timeout-recovery.md",
			FirstActionStep: "Check payment gateway config for recent changes and roll back if needed.",
		},
		{
			RunbookID: "RB-0018",
			Section:   "High Error Rate General Escalation",
			Snippet: "For HIGH severity incidents with >5% error rate: (1) Page on-call lead immediately. " +
				"(2) Enable enhanced logging on affected services. (3) Check recent deploys via " +
				"deploy dashboard. (4) If deploy-related, initiate rollback procedure.",
			SourceURI:       "s3://quell-runbooks/general/high-error-rate-escalation.md",
			FirstActionStep: "Page on-call lead and enable enhanced logging on affected services.",
		},
		{
			RunbookID: "RB-0031",
			Section:   "Database Connection Pool Exhaustion",
			Snippet: "Connection pool exhaustion usually follows a slow-query regression or a " +
				"connection leak in a recent deploy. Check pg_stat_activity for idle-in-transaction " +
				"sessions, bump the pool ceiling only as a stopgap, and bisect recent migrations.",
			SourceURI:       "s3://quell-runbooks/database/pool-exhaustion.md",
			FirstActionStep: "Inspect pg_stat_activity for idle-in-transaction sessions.",
		},
	}
}
