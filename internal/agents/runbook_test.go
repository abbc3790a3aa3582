package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/linnemanlabs/quell/internal/incident"
)

type fakeSearcher struct {
	hits []incident.RunbookHit
	err  error

	gotQuery string
	gotLimit int
}

func (s *fakeSearcher) Search(_ context.Context, query string, limit int) ([]incident.RunbookHit, error) {
	s.gotQuery = query
	s.gotLimit = limit
	return s.hits, s.err
}

func TestRunbook_Run(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{hits: []incident.RunbookHit{
		{RunbookID: "rb-payments-5xx", Section: "Mitigation", Relevance: decimal.RequireFromString("0.8")},
		{RunbookID: "rb-payments-5xx", Section: "Diagnosis", Relevance: decimal.RequireFromString("0.9")},
		{RunbookID: "rb-gateway-latency", Section: "Mitigation", Relevance: decimal.RequireFromString("0.5")},
	}}
	agent := NewRunbook(searcher, 5, nil)

	inc := testIncident()
	inc.Severity = incident.SeverityHigh
	inc.BlastRadius = []string{"payments-service", "api-gateway"}
	inc.TriageSummary = "Checkout error rate spike after deploy."

	res, err := agent.Run(context.Background(), inc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if searcher.gotQuery != "HIGH incident affecting payments-service api-gateway. Checkout error rate spike after deploy." {
		t.Errorf("query = %q", searcher.gotQuery)
	}
	if searcher.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", searcher.gotLimit)
	}

	// duplicate runbook IDs collapse to the best-scoring section
	if len(res.Fields.RunbookHits) != 2 {
		t.Fatalf("RunbookHits = %v", res.Fields.RunbookHits)
	}
	if got := res.Fields.RunbookHits[0]; got.Section != "Diagnosis" || got.Relevance.String() != "0.9" {
		t.Errorf("deduped hit = %+v", got)
	}
	if res.Details["top_runbook"] != "rb-payments-5xx" {
		t.Errorf("top_runbook detail = %v", res.Details["top_runbook"])
	}
}

func TestRunbook_NoHits(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	agent := NewRunbook(searcher, 0, nil)

	res, err := agent.Run(context.Background(), testIncident())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if searcher.gotLimit != 3 {
		t.Errorf("limit = %d, want default 3", searcher.gotLimit)
	}
	if len(res.Fields.RunbookHits) != 0 {
		t.Errorf("RunbookHits = %v", res.Fields.RunbookHits)
	}
	if _, ok := res.Details["top_runbook"]; ok {
		t.Error("top_runbook detail set with no hits")
	}
}

func TestRunbook_SearcherError(t *testing.T) {
	t.Parallel()

	agent := NewRunbook(&fakeSearcher{err: errors.New("index offline")}, 3, nil)
	if _, err := agent.Run(context.Background(), testIncident()); err == nil {
		t.Fatal("Run = nil, want search error")
	}
}

func TestBuildSearchQuery_SparseRecord(t *testing.T) {
	t.Parallel()

	inc := testIncident()
	inc.Severity = incident.SeverityMed
	got := buildSearchQuery(inc)
	if got != "MED incident affecting ." {
		t.Errorf("query = %q", got)
	}
}
