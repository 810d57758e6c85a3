package utils

import (
	"encoding/json"
	"strings"
)

// ParseJSON parses a JSON string into result. Markdown code fences around the
// document, common in LLM responses, are stripped first.
func ParseJSON(jsonStr string, result any) error {
	return json.Unmarshal([]byte(StripCodeFence(jsonStr)), result)
}

// StripCodeFence removes a surrounding ``` or ```json fence
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
