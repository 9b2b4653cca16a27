package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSON pulls the first JSON object out of model text, tolerating code
// fences and surrounding prose, and unmarshals it into dst.
func DecodeJSON(raw string, dst any) error {
	text := extractJSONObject(stripCodeFence(raw))
	if text == "" {
		return errors.New("llm: empty response")
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return fmt.Errorf("llm: decode json: %w", err)
	}
	return nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
