// Package registry holds per-repo connection configuration: where to post
// notifications and which secret signs inbound webhooks. The gateway consults
// it; it never owns incidents.
package registry

import (
	"context"
	"strings"
	"time"
)

// RepoConfig is one connected event source. Incidents hold at most the repo
// ID as a weak reference; deleting a config never touches existing incidents.
type RepoConfig struct {
	ID              string    `json:"repo_id"`
	RepoURL         string    `json:"repo_url"`
	SlackWebhookURL string    `json:"slack_webhook_url,omitempty"`
	WebhookSecret   string    `json:"-"`
	ConnectedAt     time.Time `json:"connected_at"`
	IncidentCount   int       `json:"incident_count"`
	LastIncidentAt  time.Time `json:"last_incident_at,omitzero"`
}

// Store is the persistence interface for repo configs.
type Store interface {
	// Get returns the config for a normalized repo ID, or ok=false.
	Get(ctx context.Context, repoID string) (*RepoConfig, bool, error)

	// Put creates or replaces a config.
	Put(ctx context.Context, cfg *RepoConfig) error

	// Delete removes a config. Deleting an absent config is not an error.
	Delete(ctx context.Context, repoID string) error

	// IncrementIncidentCount bumps the counter and stamps LastIncidentAt.
	// Callers on the ingest path treat failures as best-effort.
	IncrementIncidentCount(ctx context.Context, repoID string) error

	// List returns all configs, newest connection first.
	List(ctx context.Context) ([]*RepoConfig, error)
}

// NormalizeRepoID converts a repository URL or bare "owner/repo" string into
// the canonical registry key.
//
//	"https://github.com/acme/payments-service" -> "acme/payments-service"
//	"acme/payments-service"                    -> "acme/payments-service"
func NormalizeRepoID(raw string) string {
	id := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if i := strings.Index(id, "github.com/"); i >= 0 {
		id = id[i+len("github.com/"):]
	}
	return strings.TrimSuffix(id, ".git")
}
