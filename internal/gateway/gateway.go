package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/registry"
)

// ErrBadSignature is returned when a webhook delivery fails HMAC
// verification. The HTTP layer maps it to 401.
var ErrBadSignature = errors.New("invalid webhook signature")

// ErrBadPayload is returned when a delivery body cannot be decoded. The HTTP
// layer maps it to 400.
var ErrBadPayload = errors.New("malformed webhook payload")

// Dispatcher starts the incident pipeline without blocking the caller.
type Dispatcher interface {
	DispatchIncident(ctx context.Context, incidentID string)
}

// Result is the outcome of an ingestion attempt. An ignored delivery carries
// the reason; an accepted one carries the new incident ID.
type Result struct {
	Ignored    bool   `json:"-"`
	Reason     string `json:"reason,omitempty"`
	IncidentID string `json:"incidentId,omitempty"`
	RepoID     string `json:"repoId,omitempty"`
}

// Service turns webhook deliveries into incidents.
type Service struct {
	incidents     incident.Store
	repos         registry.Store
	scheduler     Dispatcher
	secret        string
	allowUnsigned bool
	logger        log.Logger
}

// NewService creates the ingestion service. secret is the shared webhook
// credential used when a source has no credential of its own; allowUnsigned
// disables signature checks entirely and is meant for dev setups only.
func NewService(incidents incident.Store, repos registry.Store, scheduler Dispatcher, secret string, allowUnsigned bool, logger log.Logger) *Service {
	if incidents == nil {
		panic(xerrors.New("incident store is required"))
	}
	if repos == nil {
		panic(xerrors.New("repo registry is required"))
	}
	if scheduler == nil {
		panic(xerrors.New("pipeline scheduler is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		incidents:     incidents,
		repos:         repos,
		scheduler:     scheduler,
		secret:        secret,
		allowUnsigned: allowUnsigned,
		logger:        logger,
	}
}

// HandlePush processes one GitHub webhook delivery: verify, classify,
// normalize, create, dispatch. Filtered deliveries are a success with a
// reason so the sender does not retry them.
func (s *Service) HandlePush(ctx context.Context, eventType, signatureHeader string, body []byte) (*Result, error) {
	var push PushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadPayload, err)
	}

	repoID := registry.NormalizeRepoID(push.Repository.FullName)
	cfg, registered, err := s.repos.Get(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("look up repo config: %w", err)
	}

	if !s.allowUnsigned {
		secret := s.secret
		if registered && cfg.WebhookSecret != "" {
			secret = cfg.WebhookSecret
		}
		if !VerifySignature(body, signatureHeader, secret) {
			return nil, ErrBadSignature
		}
	}

	if d := Classify(eventType, push.Ref, repoID, len(push.Commits), registered); !d.Accept {
		s.logger.Info(ctx, "webhook delivery ignored", "repo", repoID, "reason", d.Reason)
		return &Result{Ignored: true, Reason: d.Reason, RepoID: repoID}, nil
	}

	return s.ingest(ctx, Normalize(&push), incident.SourceGitHub, repoID)
}

// Replay ingests an alert payload directly, bypassing classification. Used by
// the replay endpoint and for re-driving historical alarms through the
// pipeline.
func (s *Service) Replay(ctx context.Context, alert *incident.AlertPayload, source incident.Source) (*Result, error) {
	if alert == nil {
		return nil, ErrBadPayload
	}
	if source == "" {
		source = incident.SourceReplay
	}
	alert.Source = source
	return s.ingest(ctx, alert, source, registry.NormalizeRepoID(alert.RepoID))
}

func (s *Service) ingest(ctx context.Context, alert *incident.AlertPayload, source incident.Source, repoID string) (*Result, error) {
	inc := incident.New(alert, source, repoID)
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	if err := s.incidents.AppendAudit(ctx, inc.ID, incident.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Actor:      incident.ActorGateway,
		ActionType: incident.ActionStatusTransition,
		Details:    map[string]any{"to": string(incident.StatusIngested), "source": string(source)},
	}); err != nil {
		return nil, fmt.Errorf("record ingestion: %w", err)
	}

	if repoID != "" {
		// Counter bump is best-effort; a registry hiccup must not lose the incident.
		if err := s.repos.IncrementIncidentCount(ctx, repoID); err != nil {
			s.logger.Warn(ctx, "failed to bump incident count", "repo", repoID, "error", err)
		}
	}

	s.scheduler.DispatchIncident(ctx, inc.ID)

	s.logger.Info(ctx, "incident ingested", "incident_id", inc.ID, "repo", repoID, "source", string(source))
	return &Result{IncidentID: inc.ID, RepoID: repoID}, nil
}
