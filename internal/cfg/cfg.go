package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config holds application configuration, bound to flags and fillable from
// the environment via the common cfg.Registerable and cfg.Validatable
// interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	ClaudeAPIKey          string
	ClaudeModel           string
	WebhookSecret         string
	AllowUnsigned         bool
	SlackWebhookURL       string
	ArchiveBucket         string
	ArchivePrefix         string
	ArchiveDir            string
	GitHubToken           string
	CommitLookbackHours   int
	MaxRunbookResults     int
	MgmtToken             string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.WebhookSecret, "webhook-secret", "", "shared HMAC secret for webhook deliveries without a per-repo secret")
	fs.BoolVar(&c.AllowUnsigned, "allow-unsigned", false, "accept webhook deliveries without signature verification (dev only)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack incoming webhook URL for war-room briefs (empty = log only)")
	fs.StringVar(&c.ArchiveBucket, "archive-bucket", "", "S3 bucket for postmortem documents (empty = local dir archive)")
	fs.StringVar(&c.ArchivePrefix, "archive-prefix", "incidents", "key prefix inside the archive bucket")
	fs.StringVar(&c.ArchiveDir, "archive-dir", "artifacts", "local directory for archived documents when no bucket is set")
	fs.StringVar(&c.GitHubToken, "github-token", "", "GitHub token for commit history polling (empty = payload commits only)")
	fs.IntVar(&c.CommitLookbackHours, "commit-lookback-hours", 6, "how far back to poll commit history during investigation (1..168)")
	fs.IntVar(&c.MaxRunbookResults, "max-runbook-results", 3, "maximum runbook sections returned per search (1..20)")
	fs.StringVar(&c.MgmtToken, "mgmt-token", "", "bearer token guarding repo management endpoints (empty = open)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude API key is required for LLM access
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}

	// Claude model is required for LLM access
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	// Signature verification needs a secret unless explicitly disabled
	if c.WebhookSecret == "" && !c.AllowUnsigned {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required unless ALLOW_UNSIGNED is set"))
	}

	if c.CommitLookbackHours <= 0 || c.CommitLookbackHours > 168 {
		errs = append(errs, fmt.Errorf("invalid COMMIT_LOOKBACK_HOURS %d (must be 1..168)", c.CommitLookbackHours))
	}

	if c.MaxRunbookResults <= 0 || c.MaxRunbookResults > 20 {
		errs = append(errs, fmt.Errorf("invalid MAX_RUNBOOK_RESULTS %d (must be 1..20)", c.MaxRunbookResults))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
