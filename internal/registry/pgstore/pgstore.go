// Package pgstore provides a PostgreSQL implementation of registry.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/quell/internal/registry"
)

var tracer = otel.Tracer("github.com/linnemanlabs/quell/internal/registry/pgstore")

//go:embed schema.sql
var schema string

// Store persists repo configs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Get retrieves a repo config by normalized ID.
func (s *Store) Get(ctx context.Context, repoID string) (*registry.RepoConfig, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var (
		cfg            registry.RepoConfig
		lastIncidentAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT repo_id, repo_url, slack_webhook_url, webhook_secret, connected_at, incident_count, last_incident_at
		 FROM repos WHERE repo_id = $1`, repoID,
	).Scan(&cfg.ID, &cfg.RepoURL, &cfg.SlackWebhookURL, &cfg.WebhookSecret,
		&cfg.ConnectedAt, &cfg.IncidentCount, &lastIncidentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("select repo: %w", err)
	}
	if lastIncidentAt != nil {
		cfg.LastIncidentAt = *lastIncidentAt
	}
	return &cfg, true, nil
}

// Put upserts a repo config.
func (s *Store) Put(ctx context.Context, cfg *registry.RepoConfig) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	var lastIncidentAt *time.Time
	if !cfg.LastIncidentAt.IsZero() {
		lastIncidentAt = &cfg.LastIncidentAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO repos (repo_id, repo_url, slack_webhook_url, webhook_secret, connected_at, incident_count, last_incident_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (repo_id) DO UPDATE SET
			repo_url          = EXCLUDED.repo_url,
			slack_webhook_url = EXCLUDED.slack_webhook_url,
			webhook_secret    = EXCLUDED.webhook_secret`,
		cfg.ID, cfg.RepoURL, cfg.SlackWebhookURL, cfg.WebhookSecret,
		cfg.ConnectedAt, cfg.IncidentCount, lastIncidentAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert repo: %w", err)
	}
	return nil
}

// Delete removes a config; absent IDs are a no-op.
func (s *Store) Delete(ctx context.Context, repoID string) error {
	ctx, span := tracer.Start(ctx, "pgstore.Delete", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	if _, err := s.pool.Exec(ctx, `DELETE FROM repos WHERE repo_id = $1`, repoID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete repo: %w", err)
	}
	return nil
}

// IncrementIncidentCount bumps the counter atomically server-side.
func (s *Store) IncrementIncidentCount(ctx context.Context, repoID string) error {
	ctx, span := tracer.Start(ctx, "pgstore.IncrementIncidentCount", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`UPDATE repos SET incident_count = incident_count + 1, last_incident_at = now() WHERE repo_id = $1`,
		repoID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("increment incident count: %w", err)
	}
	return nil
}

// List returns all configs, newest connection first.
func (s *Store) List(ctx context.Context) ([]*registry.RepoConfig, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT repo_id, repo_url, slack_webhook_url, webhook_secret, connected_at, incident_count, last_incident_at
		 FROM repos ORDER BY connected_at DESC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query repos: %w", err)
	}
	defer rows.Close()

	var out []*registry.RepoConfig
	for rows.Next() {
		var (
			cfg            registry.RepoConfig
			lastIncidentAt *time.Time
		)
		if err := rows.Scan(&cfg.ID, &cfg.RepoURL, &cfg.SlackWebhookURL, &cfg.WebhookSecret,
			&cfg.ConnectedAt, &cfg.IncidentCount, &lastIncidentAt); err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		if lastIncidentAt != nil {
			cfg.LastIncidentAt = *lastIncidentAt
		}
		out = append(out, &cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repos: %w", err)
	}
	return out, nil
}
