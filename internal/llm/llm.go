// Package llm defines the provider-neutral interface the stage agents use to
// talk to a language model backend.
package llm

import (
	"context"
	"strings"
)

// Provider is the interface for any LLM backend.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single-turn generation request.
type Request struct {
	MaxTokens int
	System    string
	Messages  []Message
}

// Message is one conversation message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block of message content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Response is the provider's reply.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Text concatenates all text blocks of the response.
func (r *Response) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

// Usage is the token accounting for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// UserText builds a one-message conversation from a single user prompt.
func UserText(prompt string) []Message {
	return []Message{{
		Role:    "user",
		Content: []ContentBlock{{Type: "text", Text: prompt}},
	}}
}
