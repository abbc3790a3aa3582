package cfg

import (
	"flag"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		WebhookSecret:         "test-secret",
		ArchivePrefix:         "incidents",
		ArchiveDir:            "artifacts",
		CommitLookbackHours:   6,
		MaxRunbookResults:     3,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.AllowUnsigned {
		t.Error("AllowUnsigned = true, want false")
	}
	if c.ArchivePrefix != "incidents" {
		t.Errorf("ArchivePrefix = %q, want %q", c.ArchivePrefix, "incidents")
	}
	if c.ArchiveDir != "artifacts" {
		t.Errorf("ArchiveDir = %q, want %q", c.ArchiveDir, "artifacts")
	}
	if c.CommitLookbackHours != 6 {
		t.Errorf("CommitLookbackHours = %d, want 6", c.CommitLookbackHours)
	}
	if c.MaxRunbookResults != 3 {
		t.Errorf("MaxRunbookResults = %d, want 3", c.MaxRunbookResults)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-database-url", "postgres://localhost/quell",
		"-claude-api-key", "sk-override",
		"-claude-model", "claude-opus-4-20250514",
		"-webhook-secret", "hmac-secret",
		"-allow-unsigned",
		"-archive-bucket", "quell-artifacts",
		"-mgmt-token", "mgmt-123",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.DatabaseURL != "postgres://localhost/quell" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.WebhookSecret != "hmac-secret" {
		t.Errorf("WebhookSecret = %q, want %q", c.WebhookSecret, "hmac-secret")
	}
	if !c.AllowUnsigned {
		t.Error("AllowUnsigned = false, want true")
	}
	if c.ArchiveBucket != "quell-artifacts" {
		t.Errorf("ArchiveBucket = %q, want %q", c.ArchiveBucket, "quell-artifacts")
	}
	if c.MgmtToken != "mgmt-123" {
		t.Errorf("MgmtToken = %q, want %q", c.MgmtToken, "mgmt-123")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	unsigned := validBase()
	unsigned.WebhookSecret = ""
	unsigned.AllowUnsigned = true

	noSecret := validBase()
	noSecret.WebhookSecret = ""

	noKey := validBase()
	noKey.ClaudeAPIKey = ""

	noModel := validBase()
	noModel.ClaudeModel = ""

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: Config{
				DrainSeconds: 1, ShutdownBudgetSeconds: 2, APIPort: 1,
				ClaudeAPIKey: "k", ClaudeModel: "m", WebhookSecret: "s",
				CommitLookbackHours: 1, MaxRunbookResults: 1,
			},
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: Config{
				DrainSeconds: 299, ShutdownBudgetSeconds: 300, APIPort: 65535,
				ClaudeAPIKey: "k", ClaudeModel: "m", WebhookSecret: "s",
				CommitLookbackHours: 168, MaxRunbookResults: 20,
			},
			wantErr: false,
		},
		{
			name:    "unsigned mode needs no secret",
			cfg:     unsigned,
			wantErr: false,
		},
		{
			name:      "missing secret without unsigned mode",
			cfg:       noSecret,
			wantErr:   true,
			errSubstr: []string{"WEBHOOK_SECRET", "ALLOW_UNSIGNED"},
		},
		{
			name:      "missing claude api key",
			cfg:       noKey,
			wantErr:   true,
			errSubstr: []string{"CLAUDE_API_KEY"},
		},
		{
			name:      "missing claude model",
			cfg:       noModel,
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		{
			name:      "drain zero",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 90, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       Config{DrainSeconds: 301, ShutdownBudgetSeconds: 302, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 301, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 60, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 0},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 65536},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name: "lookback zero",
			cfg: func() Config {
				c := validBase()
				c.CommitLookbackHours = 0
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"COMMIT_LOOKBACK_HOURS"},
		},
		{
			name: "lookback above max",
			cfg: func() Config {
				c := validBase()
				c.CommitLookbackHours = 169
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"COMMIT_LOOKBACK_HOURS"},
		},
		{
			name: "runbook results zero",
			cfg: func() Config {
				c := validBase()
				c.MaxRunbookResults = 0
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"MAX_RUNBOOK_RESULTS"},
		},
		{
			name: "runbook results above max",
			cfg: func() Config {
				c := validBase()
				c.MaxRunbookResults = 21
				return c
			}(),
			wantErr:   true,
			errSubstr: []string{"MAX_RUNBOOK_RESULTS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				for _, substr := range tt.errSubstr {
					if !strings.Contains(err.Error(), substr) {
						t.Errorf("error %q does not mention %q", err, substr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	err := (&Config{}).Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, substr := range []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "CLAUDE_API_KEY", "CLAUDE_MODEL", "WEBHOOK_SECRET", "COMMIT_LOOKBACK_HOURS", "MAX_RUNBOOK_RESULTS"} {
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("error does not mention %q", substr)
		}
	}
}
