package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/quell/internal/gateway"
	"github.com/linnemanlabs/quell/internal/incident"
)

func (a *API) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	signature := r.Header.Get("X-Hub-Signature-256")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("quell.webhook.event", eventType))

	res, err := a.ingest.HandlePush(r.Context(), eventType, signature, body)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrBadSignature):
			a.writeError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, gateway.ErrBadPayload):
			a.writeError(w, http.StatusBadRequest, "malformed payload")
		default:
			a.logger.Error(r.Context(), err, "webhook ingestion failed")
			a.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	a.writeJSON(w, http.StatusOK, ingestionBody(res))
}

type replayRequest struct {
	Source string                 `json:"source"`
	Alert  *incident.AlertPayload `json:"alert"`
}

func (a *API) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if req.Alert == nil {
		a.writeError(w, http.StatusBadRequest, "alert payload is required")
		return
	}

	res, err := a.ingest.Replay(r.Context(), req.Alert, incident.Source(req.Source))
	if err != nil {
		if errors.Is(err, gateway.ErrBadPayload) {
			a.writeError(w, http.StatusBadRequest, "malformed payload")
			return
		}
		a.logger.Error(r.Context(), err, "replay ingestion failed")
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.writeJSON(w, http.StatusOK, ingestionBody(res))
}

func ingestionBody(res *gateway.Result) map[string]any {
	if res.Ignored {
		return map[string]any{"status": "ignored", "reason": res.Reason}
	}
	return map[string]any{"status": "ingested", "incidentId": res.IncidentID}
}
