// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/quell/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/quell/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
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

const incidentColumns = `id, status, created_at, resolved_at, alert_source, repo_id, alert_payload,
	severity, blast_radius, triage_summary, suspect_commits, runbook_hits,
	slack_message_id, estimated_users_affected, postmortem_location`

// Create inserts a new incident row.
func (s *Store) Create(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.Create", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	payloadJSON, err := json.Marshal(inc.Alert)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	var resolvedAt *time.Time
	if !inc.ResolvedAt.IsZero() {
		resolvedAt = &inc.ResolvedAt
	}

	query := `INSERT INTO incidents (
		id, status, created_at, resolved_at, alert_source, repo_id, alert_payload,
		severity, blast_radius, triage_summary, suspect_commits, runbook_hits,
		slack_message_id, estimated_users_affected, postmortem_location
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err = s.pool.Exec(ctx, query,
		inc.ID, string(inc.Status), inc.CreatedAt, resolvedAt, string(inc.Source), inc.RepoID, payloadJSON,
		string(inc.Severity), mustJSON(inc.BlastRadius), inc.TriageSummary,
		mustJSON(inc.SuspectCommits), mustJSON(inc.RunbookHits),
		inc.SlackMessageID, inc.EstimatedUsersAffected, inc.PostmortemLocation,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Get retrieves an incident by ID, including its audit log.
func (s *Store) Get(ctx context.Context, id string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncidentRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}

	if err := s.loadAuditLog(ctx, inc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	return inc, true, nil
}

// Update applies a partial field update in a single UPDATE statement, so each
// field set is atomic and concurrent writers to disjoint fields never clobber
// each other.
func (s *Store) Update(ctx context.Context, id string, fields incident.Fields) error {
	if fields.Empty() {
		return nil
	}

	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.Severity != nil {
		add("severity", string(*fields.Severity))
	}
	if fields.BlastRadius != nil {
		add("blast_radius", mustJSON(fields.BlastRadius))
	}
	if fields.TriageSummary != nil {
		add("triage_summary", *fields.TriageSummary)
	}
	if fields.SuspectCommits != nil {
		add("suspect_commits", mustJSON(fields.SuspectCommits))
	}
	if fields.RunbookHits != nil {
		add("runbook_hits", mustJSON(fields.RunbookHits))
	}
	if fields.SlackMessageID != nil {
		add("slack_message_id", *fields.SlackMessageID)
	}
	if fields.EstimatedUsersAffected != nil {
		add("estimated_users_affected", *fields.EstimatedUsersAffected)
	}
	if fields.PostmortemLocation != nil {
		add("postmortem_location", *fields.PostmortemLocation)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE incidents SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// SetStatus advances the status under a row lock so the lifecycle guard sees
// a consistent current value.
func (s *Store) SetStatus(ctx context.Context, id string, next incident.Status) error {
	ctx, span := tracer.Start(ctx, "pgstore.SetStatus", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM incidents WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incident.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("select status: %w", err)
	}

	if !incident.Status(current).CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", incident.ErrIllegalTransition, current, next)
	}

	if next == incident.StatusResolved {
		_, err = tx.Exec(ctx,
			`UPDATE incidents SET status = $1, resolved_at = COALESCE(resolved_at, now()) WHERE id = $2`,
			string(next), id)
	} else {
		_, err = tx.Exec(ctx, `UPDATE incidents SET status = $1 WHERE id = $2`, string(next), id)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendAudit inserts one audit row. A plain INSERT is atomic by itself, so
// racing appenders never corrupt each other; entry order is arrival order.
func (s *Store) AppendAudit(ctx context.Context, id string, entry incident.AuditEntry) error {
	ctx, span := tracer.Start(ctx, "pgstore.AppendAudit", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (incident_id, ts, actor, action_type, details)
		 SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM incidents WHERE id = $1)`,
		id, entry.Timestamp, entry.Actor, entry.ActionType, detailsJSON,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incident.ErrNotFound
	}
	return nil
}

// List returns up to limit incidents, newest first, without audit logs.
func (s *Store) List(ctx context.Context, limit int) ([]*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

func (s *Store) loadAuditLog(ctx context.Context, inc *incident.Incident) error {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, actor, action_type, details FROM audit_entries WHERE incident_id = $1 ORDER BY id`,
		inc.ID,
	)
	if err != nil {
		return fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry       incident.AuditEntry
			detailsJSON []byte
		)
		if err := rows.Scan(&entry.Timestamp, &entry.Actor, &entry.ActionType, &detailsJSON); err != nil {
			return fmt.Errorf("scan audit entry: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		inc.AuditLog = append(inc.AuditLog, entry)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate audit entries: %w", err)
	}
	return nil
}

// scanIncidentRow scans a single row into an Incident (without audit log).
// Returns (nil, nil) when no row is found.
func scanIncidentRow(row pgx.Row) (*incident.Incident, error) {
	var (
		inc          incident.Incident
		status       string
		source       string
		severity     string
		resolvedAt   *time.Time
		payloadJSON  []byte
		blastJSON    []byte
		suspectsJSON []byte
		runbooksJSON []byte
	)

	err := row.Scan(
		&inc.ID, &status, &inc.CreatedAt, &resolvedAt, &source, &inc.RepoID, &payloadJSON,
		&severity, &blastJSON, &inc.TriageSummary, &suspectsJSON, &runbooksJSON,
		&inc.SlackMessageID, &inc.EstimatedUsersAffected, &inc.PostmortemLocation,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	inc.Status = incident.Status(status)
	inc.Source = incident.Source(source)
	inc.Severity = incident.Severity(severity)
	if resolvedAt != nil {
		inc.ResolvedAt = *resolvedAt
	}

	if err := json.Unmarshal(payloadJSON, &inc.Alert); err != nil {
		return nil, fmt.Errorf("unmarshal alert payload: %w", err)
	}
	if err := json.Unmarshal(blastJSON, &inc.BlastRadius); err != nil {
		return nil, fmt.Errorf("unmarshal blast radius: %w", err)
	}
	if err := json.Unmarshal(suspectsJSON, &inc.SuspectCommits); err != nil {
		return nil, fmt.Errorf("unmarshal suspect commits: %w", err)
	}
	if err := json.Unmarshal(runbooksJSON, &inc.RunbookHits); err != nil {
		return nil, fmt.Errorf("unmarshal runbook hits: %w", err)
	}

	return &inc, nil
}

// mustJSON marshals values whose types cannot fail to encode (slices of
// plain structs). An empty slice encodes as [] rather than null.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	if string(b) == "null" {
		return []byte("[]")
	}
	return b
}
