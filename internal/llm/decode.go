package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeLoose parses model output that should be JSON but often is not
// quite. It tries, in order: the raw string, the substring between the
// first opening bracket and its matching close, and a repaired variant
// of that substring.
func DecodeLoose(raw string, out any) error {
	trimmed := stripFences(raw)
	if trimmed == "" {
		return fmt.Errorf("empty reply")
	}

	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	candidate := extractJSON(trimmed)
	if candidate != "" {
		if err := json.Unmarshal([]byte(candidate), out); err == nil {
			return nil
		}
		repaired, err := jsonrepair.JSONRepair(candidate)
		if err == nil {
			if err := json.Unmarshal([]byte(repaired), out); err == nil {
				return nil
			}
		}
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return fmt.Errorf("reply is not JSON: %q", truncate(trimmed, 200))
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("reply is not JSON after repair: %q", truncate(trimmed, 200))
	}
	return nil
}

func stripFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

// extractJSON returns the substring from the first { or [ to its
// matching close bracket, skipping brackets inside string literals.
func extractJSON(value string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(value); i++ {
		if value[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if value[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(value); i++ {
		c := value[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return value[start : i+1]
			}
		}
	}
	// Unbalanced: hand the tail to the repair layer.
	return value[start:]
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
