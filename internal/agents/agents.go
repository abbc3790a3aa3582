// Package agents implements the five pipeline stage agents. Each agent owns a
// disjoint slice of the incident record and returns it through the stage
// result; none of them touches Status.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

const responseTokens = 1024

// extractJSON pulls a JSON document out of a model response, tolerating
// markdown fences and prose around the object.
func extractJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text[3:], "```"); idx >= 0 {
			text = text[3 : idx+3]
		} else {
			text = text[3:]
		}
		text = strings.TrimPrefix(strings.TrimSpace(text), "json")
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model response")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
