package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/quell/internal/incident"
)

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	incidents, err := a.incidents.List(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incidents")
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("quell.incident.id", id))

	inc, ok, err := a.incidents.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		a.writeError(w, http.StatusNotFound, "incident not found")
		return
	}

	span.SetAttributes(attribute.String("quell.incident.status", string(inc.Status)))
	a.writeJSON(w, http.StatusOK, inc)
}

// handleResolveIncident marks the incident resolved and kicks off the
// postmortem run in the background.
func (a *API) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if err := a.incidents.SetStatus(ctx, id, incident.StatusResolved); err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			a.writeError(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, incident.ErrIllegalTransition):
			a.writeError(w, http.StatusConflict, "incident already resolved")
		default:
			a.logger.Error(ctx, err, "failed to resolve incident", "id", id)
			a.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if err := a.incidents.AppendAudit(ctx, id, incident.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Actor:      incident.ActorAPI,
		ActionType: incident.ActionIncidentResolved,
	}); err != nil {
		a.logger.Error(ctx, err, "failed to record resolution", "id", id)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.scheduler.DispatchPostmortem(ctx, id)

	a.logger.Info(ctx, "incident resolved", "incident_id", id)
	a.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(incident.StatusResolved)})
}

// handleGetPostmortem serves the archived postmortem document. 404 until
// run 2 has stored one.
func (a *API) handleGetPostmortem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inc, ok, err := a.incidents.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		a.writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if inc.PostmortemLocation == "" {
		a.writeError(w, http.StatusNotFound, "postmortem not generated yet")
		return
	}

	doc, err := a.artifacts.Get(r.Context(), inc.PostmortemLocation)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to fetch postmortem", "id", id, "locator", inc.PostmortemLocation)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
