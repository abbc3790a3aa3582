// Package slack posts incident war-room briefs to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/quell/internal/incident"
)

const (
	maxBriefLen = 3000
	httpTimeout = 10 * time.Second
)

// Brief is the rendered war-room message for one incident.
type Brief struct {
	IncidentID     string
	Severity       incident.Severity
	Headline       string
	Body           string
	BlastRadius    []string
	EstimatedUsers int
	TopSuspect     *incident.SuspectCommit
	TopRunbook     *incident.RunbookHit
	CreatedAt      time.Time
}

// Notifier posts briefs to a Slack incoming webhook.
//
// TODO: route to the per-repo webhook from the registry instead of one
// global URL.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Post degrades to
// logging only.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Post sends a brief to the configured webhook and returns an opaque message
// identifier. Incoming webhooks return no ID of their own, so the identifier
// is minted locally. Without a webhook URL the brief is logged and a
// local identifier returned, so the pipeline never blocks on notification
// config.
func (n *Notifier) Post(ctx context.Context, b *Brief) (string, error) {
	msgID := "slack-" + ulid.Make().String()

	if n.webhookURL == "" {
		n.logger.Info(ctx, "no slack webhook configured, logging brief",
			"incident_id", b.IncidentID,
			"severity", b.Severity,
			"headline", b.Headline,
		)
		return "local-" + msgID, nil
	}

	body, err := json.Marshal(buildMessage(b))
	if err != nil {
		return "", fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return "", fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return msgID, nil
}

func buildMessage(b *Brief) map[string]any {
	blocks := []map[string]any{
		headerBlock(b),
		{"type": "divider"},
		fieldsBlock(b),
		{"type": "divider"},
		briefBlock(b),
	}
	if b.TopSuspect != nil || b.TopRunbook != nil {
		blocks = append(blocks, findingsBlock(b))
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(b))
	return map[string]any{"blocks": blocks}
}

func headerBlock(b *Brief) map[string]any {
	text := fmt.Sprintf("%s %s Incident: %s", severityEmoji(b.Severity), b.Severity, b.Headline)
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, 150),
		},
	}
}

func fieldsBlock(b *Brief) map[string]any {
	radius := strings.Join(b.BlastRadius, ", ")
	if radius == "" {
		radius = "_unknown_"
	}
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* %s", b.Severity),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Blast radius:* %s", radius),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Est. users affected:* ~%d", b.EstimatedUsers),
		},
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func briefBlock(b *Brief) map[string]any {
	text := truncate(b.Body, maxBriefLen)
	if text == "" {
		text = "_No brief available._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func findingsBlock(b *Brief) map[string]any {
	var lines []string
	if b.TopSuspect != nil {
		lines = append(lines, fmt.Sprintf("*Top suspect:* `%s` by %s: %s",
			b.TopSuspect.ShortSHA, b.TopSuspect.Author, truncate(b.TopSuspect.Message, 80)))
	}
	if b.TopRunbook != nil {
		lines = append(lines, fmt.Sprintf("*Runbook:* %s › %s: %s",
			b.TopRunbook.RunbookID, b.TopRunbook.Section, truncate(b.TopRunbook.FirstActionStep, 120)))
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": strings.Join(lines, "\n"),
		},
	}
}

func contextBlock(b *Brief) map[string]any {
	ts := b.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("quell • incident %s • %s", b.IncidentID, ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityEmoji(sev incident.Severity) string {
	switch sev {
	case incident.SeverityHigh:
		return "\U0001f534" // red circle
	case incident.SeverityMed:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
