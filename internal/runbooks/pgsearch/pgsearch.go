// Package pgsearch implements runbooks.Searcher with PostgreSQL full-text
// search over indexed runbook sections.
package pgsearch

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/runbooks/memsearch"
)

var tracer = otel.Tracer("github.com/linnemanlabs/quell/internal/runbooks/pgsearch")

//go:embed schema.sql
var schema string

// Searcher queries runbook sections via ts_rank over a GIN index.
type Searcher struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Searcher.
func New(ctx context.Context, pool *pgxpool.Pool) (*Searcher, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Searcher{pool: pool}, nil
}

// SeedIfEmpty loads the bundled demo sections when the table has no rows, so
// a fresh database still produces runbook hits.
func (s *Searcher) SeedIfEmpty(ctx context.Context) error {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM runbook_sections`).Scan(&n); err != nil {
		return fmt.Errorf("count runbook sections: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, e := range memsearch.Seed() {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO runbook_sections (runbook_id, section, snippet, source_uri, first_action_step)
			 VALUES ($1,$2,$3,$4,$5)`,
			e.RunbookID, e.Section, e.Snippet, e.SourceURI, e.FirstActionStep,
		)
		if err != nil {
			return fmt.Errorf("seed runbook %s: %w", e.RunbookID, err)
		}
	}
	return nil
}

// Search returns up to limit hits ordered by descending rank. Rank is scanned
// as text and parsed into an exact decimal so the score survives persistence
// unchanged.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]incident.RunbookHit, error) {
	ctx, span := tracer.Start(ctx, "pgsearch.Search", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		limit = 3
	}

	rows, err := s.pool.Query(ctx,
		`SELECT runbook_id, section, snippet, source_uri, first_action_step,
			round(ts_rank(body_tsv, websearch_to_tsquery('english', $1))::numeric, 3)::text
		 FROM runbook_sections
		 WHERE body_tsv @@ websearch_to_tsquery('english', $1)
		 ORDER BY ts_rank(body_tsv, websearch_to_tsquery('english', $1)) DESC
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query runbooks: %w", err)
	}
	defer rows.Close()

	var hits []incident.RunbookHit
	for rows.Next() {
		var (
			h       incident.RunbookHit
			rankStr string
		)
		if err := rows.Scan(&h.RunbookID, &h.Section, &h.Snippet, &h.SourceURI, &h.FirstActionStep, &rankStr); err != nil {
			return nil, fmt.Errorf("scan runbook hit: %w", err)
		}
		h.Relevance, err = decimal.NewFromString(rankStr)
		if err != nil {
			return nil, fmt.Errorf("parse rank %q: %w", rankStr, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runbook hits: %w", err)
	}
	return hits, nil
}
