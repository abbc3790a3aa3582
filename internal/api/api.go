// Package api exposes the HTTP surface: webhook ingestion, incident
// listing, resolution, postmortem retrieval, and repo registry management.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/quell/internal/archive"
	"github.com/linnemanlabs/quell/internal/authmw"
	"github.com/linnemanlabs/quell/internal/gateway"
	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/registry"
)

const defaultListLimit = 50

// IngestService defines the gateway operations the API needs.
type IngestService interface {
	HandlePush(ctx context.Context, eventType, signatureHeader string, body []byte) (*gateway.Result, error)
	Replay(ctx context.Context, alert *incident.AlertPayload, source incident.Source) (*gateway.Result, error)
}

// PostmortemDispatcher starts pipeline run 2 without blocking the caller.
type PostmortemDispatcher interface {
	DispatchPostmortem(ctx context.Context, incidentID string)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	ingest    IngestService
	incidents incident.Store
	repos     registry.Store
	artifacts archive.Archive
	scheduler PostmortemDispatcher
	mgmtToken string
}

// New creates a new API handler. mgmtToken guards the repo management
// endpoints; empty leaves them open (dev mode).
func New(logger log.Logger, ingest IngestService, incidents incident.Store, repos registry.Store, artifacts archive.Archive, scheduler PostmortemDispatcher, mgmtToken string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if ingest == nil {
		panic(xerrors.New("ingest service is required"))
	}
	if incidents == nil {
		panic(xerrors.New("incident store is required"))
	}
	if repos == nil {
		panic(xerrors.New("repo registry is required"))
	}
	if artifacts == nil {
		panic(xerrors.New("artifact archive is required"))
	}
	if scheduler == nil {
		panic(xerrors.New("pipeline scheduler is required"))
	}
	return &API{
		logger:    logger,
		ingest:    ingest,
		incidents: incidents,
		repos:     repos,
		artifacts: artifacts,
		scheduler: scheduler,
		mgmtToken: mgmtToken,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhook/github", a.handleGitHubWebhook)
		r.Post("/replay", a.handleReplay)

		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", a.handleListIncidents)
			r.Get("/{id}", a.handleGetIncident)
			r.Post("/{id}/resolve", a.handleResolveIncident)
			r.Get("/{id}/postmortem", a.handleGetPostmortem)
		})

		r.Route("/repos", func(r chi.Router) {
			if a.mgmtToken != "" {
				r.Use(authmw.BearerToken(a.mgmtToken))
			}
			r.Get("/", a.handleListRepos)
			r.Post("/", a.handleConnectRepo)
			r.Delete("/{owner}/{repo}", a.handleDisconnectRepo)
		})
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
