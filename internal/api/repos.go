package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/quell/internal/registry"
)

func (a *API) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := a.repos.List(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list repos")
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"repos": repos})
}

type connectRepoRequest struct {
	RepoURL         string `json:"repo_url"`
	SlackWebhookURL string `json:"slack_webhook_url"`
	WebhookSecret   string `json:"webhook_secret"`
}

func (a *API) handleConnectRepo(w http.ResponseWriter, r *http.Request) {
	var req connectRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	id := registry.NormalizeRepoID(req.RepoURL)
	if id == "" {
		a.writeError(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	cfg := &registry.RepoConfig{
		ID:              id,
		RepoURL:         req.RepoURL,
		SlackWebhookURL: req.SlackWebhookURL,
		WebhookSecret:   req.WebhookSecret,
		ConnectedAt:     time.Now().UTC(),
	}
	if err := a.repos.Put(r.Context(), cfg); err != nil {
		a.logger.Error(r.Context(), err, "failed to connect repo", "repo", id)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.logger.Info(r.Context(), "repo connected", "repo", id)
	a.writeJSON(w, http.StatusCreated, cfg)
}

func (a *API) handleDisconnectRepo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")

	if err := a.repos.Delete(r.Context(), id); err != nil {
		a.logger.Error(r.Context(), err, "failed to disconnect repo", "repo", id)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.logger.Info(r.Context(), "repo disconnected", "repo", id)
	w.WriteHeader(http.StatusNoContent)
}
