package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/notify/slack"
)

type fakePoster struct {
	msgID string
	err   error
	brief *slack.Brief
}

func (p *fakePoster) Post(_ context.Context, b *slack.Brief) (string, error) {
	p.brief = b
	return p.msgID, p.err
}

func briefedIncident() *incident.Incident {
	inc := testIncident()
	inc.Severity = incident.SeverityHigh
	inc.BlastRadius = []string{"payments-service"}
	inc.TriageSummary = "Checkout error rate spike after deploy.\nSecond line of detail."
	inc.SuspectCommits = []incident.SuspectCommit{{
		SHA:        "a3f8c21d9e0b7f6a5c4d3e2f1a0b9c8d7e6f5a4b",
		ShortSHA:   "a3f8c21",
		Author:     "bob.chen",
		Confidence: decimal.RequireFromString("0.92"),
		Reason:     "Touches the payment gateway timeout",
	}}
	inc.RunbookHits = []incident.RunbookHit{{
		RunbookID:       "rb-payments-5xx",
		Section:         "Mitigation",
		Relevance:       decimal.RequireFromString("0.9"),
		FirstActionStep: "Roll back the last payments-service deploy",
	}}
	return inc
}

func TestCommunication_Run(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{text: "*HIGH SEVERITY* payments-service is degraded.\nReply to this thread with updates."}
	poster := &fakePoster{msgID: "slack-01ABC"}
	agent := NewCommunication(provider, poster, nil)

	inc := briefedIncident()
	res, err := agent.Run(context.Background(), inc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Fields.SlackMessageID == nil || *res.Fields.SlackMessageID != "slack-01ABC" {
		t.Errorf("SlackMessageID = %v", res.Fields.SlackMessageID)
	}
	if res.Fields.EstimatedUsersAffected == nil || *res.Fields.EstimatedUsersAffected != 12000 {
		t.Errorf("EstimatedUsersAffected = %v", res.Fields.EstimatedUsersAffected)
	}

	if poster.brief == nil {
		t.Fatal("poster never called")
	}
	if poster.brief.Headline != "Checkout error rate spike after deploy." {
		t.Errorf("Headline = %q, want first triage summary line", poster.brief.Headline)
	}
	if poster.brief.TopSuspect == nil || poster.brief.TopSuspect.ShortSHA != "a3f8c21" {
		t.Errorf("TopSuspect = %+v", poster.brief.TopSuspect)
	}
	if poster.brief.TopRunbook == nil || poster.brief.TopRunbook.RunbookID != "rb-payments-5xx" {
		t.Errorf("TopRunbook = %+v", poster.brief.TopRunbook)
	}

	prompt := provider.lastRequest(t).Messages[0].Content[0].Text
	for _, want := range []string{"a3f8c21 by bob.chen (confidence 0.92)", "rb-payments-5xx Mitigation", "Roll back the last payments-service deploy", "~12000"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestCommunication_RewritesMarkdownBold(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{text: "**HIGH SEVERITY** incident in **payments-service**"}
	poster := &fakePoster{msgID: "slack-1"}
	agent := NewCommunication(provider, poster, nil)

	if _, err := agent.Run(context.Background(), briefedIncident()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := "*HIGH SEVERITY* incident in *payments-service*"; poster.brief.Body != want {
		t.Errorf("Body = %q, want %q", poster.brief.Body, want)
	}
}

func TestCommunication_PosterFailureFatal(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{text: "brief"}
	poster := &fakePoster{err: errors.New("webhook 500")}
	agent := NewCommunication(provider, poster, nil)

	if _, err := agent.Run(context.Background(), briefedIncident()); err == nil {
		t.Fatal("Run = nil, want post error")
	}
}

func TestCommunication_SparseRecord(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{text: "brief"}
	poster := &fakePoster{msgID: "slack-2"}
	agent := NewCommunication(provider, poster, nil)

	inc := testIncident()
	res, err := agent.Run(context.Background(), inc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *res.Fields.EstimatedUsersAffected != defaultTraffic {
		t.Errorf("EstimatedUsersAffected = %d, want default", *res.Fields.EstimatedUsersAffected)
	}
	if poster.brief.Headline != "push:acme/payments-service" {
		t.Errorf("Headline = %q, want alarm name fallback", poster.brief.Headline)
	}
	if poster.brief.TopSuspect != nil || poster.brief.TopRunbook != nil {
		t.Error("empty suspects/runbooks must stay nil on the brief")
	}

	prompt := provider.lastRequest(t).Messages[0].Content[0].Text
	if !strings.Contains(prompt, "None identified") || !strings.Contains(prompt, "None found") {
		t.Error("prompt missing empty-record placeholders")
	}
}

func TestEstimateUserImpact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		blastRadius []string
		want        int
	}{
		{name: "empty radius", blastRadius: nil, want: 5000},
		{name: "known service", blastRadius: []string{"payments-service"}, want: 12000},
		{name: "max across services", blastRadius: []string{"payments-service", "api-gateway"}, want: 80000},
		{name: "unknown service", blastRadius: []string{"billing-cron"}, want: 5000},
		{name: "spaces normalized", blastRadius: []string{"Auth Service"}, want: 45000},
		{name: "substring match", blastRadius: []string{"eu-payments-service-v2"}, want: 12000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EstimateUserImpact(tt.blastRadius); got != tt.want {
				t.Errorf("EstimateUserImpact(%v) = %d, want %d", tt.blastRadius, got, tt.want)
			}
		})
	}
}

func TestFixSlackBold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"**bold**", "*bold*"},
		{"a **b** c **d**", "a *b* c *d*"},
		{"*already slack*", "*already slack*"},
		{"no bold at all", "no bold at all"},
	}
	for _, tt := range tests {
		if got := fixSlackBold(tt.in); got != tt.want {
			t.Errorf("fixSlackBold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
