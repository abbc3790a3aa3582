package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/quell/internal/incident"
	"github.com/linnemanlabs/quell/internal/llm"
	"github.com/linnemanlabs/quell/internal/notify/slack"
	"github.com/linnemanlabs/quell/internal/pipeline"
)

// Poster delivers a rendered war-room brief.
type Poster interface {
	Post(ctx context.Context, b *slack.Brief) (string, error)
}

// serviceTraffic maps known services to rough hourly active users, used for
// the deterministic impact estimate in the brief.
var serviceTraffic = map[string]int{
	"payments-service": 12000,
	"auth-service":     45000,
	"api-gateway":      80000,
	"user-service":     30000,
}

const defaultTraffic = 5000

// Communication aggregates the earlier stages into a war-room brief and
// posts it. It owns SlackMessageID and EstimatedUsersAffected.
type Communication struct {
	provider llm.Provider
	poster   Poster
	logger   log.Logger
}

// NewCommunication creates the communication agent.
func NewCommunication(provider llm.Provider, poster Poster, logger log.Logger) *Communication {
	if provider == nil {
		panic(xerrors.New("llm provider is required"))
	}
	if poster == nil {
		panic(xerrors.New("brief poster is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Communication{provider: provider, poster: poster, logger: logger}
}

func (a *Communication) Name() string { return "communication_agent" }

const communicationSystemPrompt = `You are an SRE bot generating a production incident war-room brief for Slack.
Write in a clear, urgent, professional tone. Be concise, engineers are under pressure.

CRITICAL SLACK FORMATTING RULES, follow these exactly:
- Bold text: *single asterisks*. NEVER use **double asterisks**, they do not render in Slack
- Code: ` + "`backticks`" + `
- NEVER use ## markdown headers, use *SECTION TITLE* style instead
- Bullet points: use -

Respond with ONLY the Slack message text, nothing else.`

// Run estimates user impact, renders the brief, and posts it. The stage is
// fatal to the run on failure.
func (a *Communication) Run(ctx context.Context, inc *incident.Incident) (*pipeline.StageResult, error) {
	users := EstimateUserImpact(inc.BlastRadius)

	body, err := a.generateBrief(ctx, inc, users)
	if err != nil {
		return nil, err
	}

	brief := &slack.Brief{
		IncidentID:     inc.ID,
		Severity:       inc.Severity,
		Headline:       headline(inc),
		Body:           body,
		BlastRadius:    inc.BlastRadius,
		EstimatedUsers: users,
		CreatedAt:      inc.CreatedAt,
	}
	if len(inc.SuspectCommits) > 0 {
		brief.TopSuspect = &inc.SuspectCommits[0]
	}
	if len(inc.RunbookHits) > 0 {
		brief.TopRunbook = &inc.RunbookHits[0]
	}

	msgID, err := a.poster.Post(ctx, brief)
	if err != nil {
		return nil, fmt.Errorf("post brief: %w", err)
	}

	a.logger.Info(ctx, "war-room brief posted",
		"incident_id", inc.ID,
		"message_id", msgID,
		"estimated_users", users,
	)

	return &pipeline.StageResult{
		Fields: incident.Fields{
			SlackMessageID:         &msgID,
			EstimatedUsersAffected: &users,
		},
		Details: map[string]any{
			"message_id":               msgID,
			"estimated_users_affected": users,
		},
	}, nil
}

func (a *Communication) generateBrief(ctx context.Context, inc *incident.Incident, users int) (string, error) {
	var trigger string
	if inc.Alert != nil && inc.Alert.HeadCommit != nil {
		trigger = fmt.Sprintf("\nTRIGGERING COMMIT: %s by %s: %q",
			inc.Alert.HeadCommit.ShortSHA, inc.Alert.HeadCommit.Author, firstLine(inc.Alert.HeadCommit.Message))
	}

	var suspect, runbook string
	if len(inc.SuspectCommits) > 0 {
		s := inc.SuspectCommits[0]
		suspect = fmt.Sprintf("%s by %s (confidence %s): %s", s.ShortSHA, s.Author, s.Confidence, s.Reason)
	} else {
		suspect = "None identified"
	}
	if len(inc.RunbookHits) > 0 {
		r := inc.RunbookHits[0]
		runbook = fmt.Sprintf("%s %s. First action: %s", r.RunbookID, r.Section, r.FirstActionStep)
	} else {
		runbook = "None found"
	}

	prompt := fmt.Sprintf(`Generate a Slack war-room brief for this incident:

INCIDENT ID: %s
REPO: %s
SEVERITY: %s
BLAST RADIUS: %s
ESTIMATED USERS AFFECTED: ~%d
TRIAGE SUMMARY: %s%s

TOP SUSPECT COMMIT: %s
TOP RUNBOOK MATCH: %s

The message MUST include:
1. A severity header
2. Repo and blast radius
3. Estimated user impact (~%d users)
4. Top suspect commit with author name
5. First action step from runbook (if available)
6. 2-3 immediate action items
7. "Reply to this thread with updates"

Keep it under 300 words. Make it scannable.
Remember: use *single asterisks* for bold, NEVER **double asterisks**.`,
		shortID(inc.ID),
		inc.RepoID,
		inc.Severity,
		strings.Join(inc.BlastRadius, ", "),
		users,
		inc.TriageSummary,
		trigger,
		suspect,
		runbook,
		users,
	)

	resp, err := a.provider.Generate(ctx, &llm.Request{
		MaxTokens: responseTokens,
		System:    communicationSystemPrompt,
		Messages:  llm.UserText(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}

	return fixSlackBold(strings.TrimSpace(resp.Text())), nil
}

// EstimateUserImpact maps the blast radius to a rough affected-user count
// using the static traffic table. Unknown services fall back to the default.
func EstimateUserImpact(blastRadius []string) int {
	if len(blastRadius) == 0 {
		return defaultTraffic
	}
	maxUsers := 0
	for _, service := range blastRadius {
		normalized := strings.ToLower(strings.ReplaceAll(service, " ", "-"))
		users := defaultTraffic
		for key, traffic := range serviceTraffic {
			if strings.Contains(normalized, key) || strings.Contains(key, normalized) {
				users = traffic
				break
			}
		}
		if users > maxUsers {
			maxUsers = users
		}
	}
	return maxUsers
}

var doubleBold = regexp.MustCompile(`\*\*(.+?)\*\*`)

// fixSlackBold rewrites markdown-style bold into Slack mrkdwn, which models
// get wrong often enough to post-process.
func fixSlackBold(s string) string {
	return doubleBold.ReplaceAllString(s, "*$1*")
}

func headline(inc *incident.Incident) string {
	if inc.TriageSummary != "" {
		return firstLine(inc.TriageSummary)
	}
	if inc.Alert != nil && inc.Alert.AlarmName != "" {
		return inc.Alert.AlarmName
	}
	return "Production incident " + shortID(inc.ID)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shortID(id string) string {
	return truncate(id, 8)
}
