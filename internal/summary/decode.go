package summary

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michellemayes/logseq-assistant/internal/notes"
)

// Decode parses a model reply leniently. Lists may arrive as a single
// string, non-string items are dropped, "follow_ups" stands in for an
// empty "todos", and a list-valued summary is joined with spaces.
func Decode(content string) (notes.Summary, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return notes.Summary{}, fmt.Errorf("decode summary payload: %w", err)
	}

	todos := stringList(payload["todos"])
	if len(todos) == 0 {
		todos = stringList(payload["follow_ups"])
	}
	return notes.Summary{
		Summary:      summaryText(payload["summary"]),
		KeyPoints:    stringList(payload["key_points"]),
		Todos:        todos,
		ContextNotes: stringList(payload["context_notes"]),
		Topics:       stringList(payload["topics"]),
	}.Normalized(), nil
}

func stringList(value any) []string {
	switch v := value.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func summaryText(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
