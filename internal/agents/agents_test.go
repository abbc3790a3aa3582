package agents

import (
	"context"
	"sync"
	"testing"

	"github.com/linnemanlabs/quell/internal/llm"
)

// fakeProvider returns canned text and records every request it saw.
type fakeProvider struct {
	text string
	err  error

	mu       sync.Mutex
	requests []*llm.Request
}

func (p *fakeProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: "text", Text: p.text}},
		StopReason: llm.StopEnd,
	}, nil
}

func (p *fakeProvider) lastRequest(t *testing.T) *llm.Request {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		t.Fatal("provider was never called")
	}
	return p.requests[len(p.requests)-1]
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Severity string `json:"severity"`
	}

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare object", raw: `{"severity":"HIGH"}`, want: "HIGH"},
		{name: "fenced", raw: "```\n{\"severity\":\"MED\"}\n```", want: "MED"},
		{name: "fenced with language tag", raw: "```json\n{\"severity\":\"LOW\"}\n```", want: "LOW"},
		{name: "surrounding prose", raw: "Here is the analysis:\n{\"severity\":\"HIGH\"}\nHope that helps.", want: "HIGH"},
		{name: "no object", raw: "I cannot classify this alert.", wantErr: true},
		{name: "truncated object", raw: `{"severity":"HI`, wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got payload
			err := extractJSON(tt.raw, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractJSON(%q) = nil, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON(%q): %v", tt.raw, err)
			}
			if got.Severity != tt.want {
				t.Errorf("severity = %q, want %q", got.Severity, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("abcdefghij", 8); got != "abcdefgh" {
		t.Errorf("truncate = %q, want %q", got, "abcdefgh")
	}
	if got := truncate("abc", 8); got != "abc" {
		t.Errorf("truncate = %q, want %q", got, "abc")
	}
}
