package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/archdrift/internal/logging"
)

// ErrNoJSON is returned when a completion contains no JSON payload at all
var ErrNoJSON = errors.New("no JSON found in response")

// DecodeResult describes how a completion was turned into a value
type DecodeResult struct {
	RepairStats  RepairStats
	ExtractedLen int
}

// DecodeResponse extracts the JSON payload of a completion, repairs it if
// needed and unmarshals it into target. logger may be nil.
func DecodeResponse(raw string, target interface{}, logger *logging.RunLogger) (DecodeResult, error) {
	var result DecodeResult

	payload := ExtractJSON(raw)
	if payload == "" {
		logger.Log("No JSON found in completion: %s", truncateForLog(raw, 200))
		return result, ErrNoJSON
	}
	result.ExtractedLen = len(payload)

	repaired, stats, err := RepairJSON(payload)
	result.RepairStats = stats
	if stats.WasRepaired {
		logger.Log("JSON repair applied: %s (%d -> %d bytes, %d comments lost)",
			strings.Join(stats.Strategies, ", "), stats.OriginalBytes, stats.RepairedBytes, stats.CommentsLost)
	}
	if err != nil {
		logger.Log("JSON repair failed: %v; payload: %s", err, truncateForLog(payload, 500))
		return result, err
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		logger.Log("JSON decoding failed after repair: %v", err)
		return result, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}

// ExtractJSON returns the JSON object or array embedded in a completion.
// Code fences are preferred; otherwise the first balanced structure is taken.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw[0] == '{' || raw[0] == '[' {
		return raw
	}

	if fenced := StripCodeFences(raw); fenced != raw {
		fenced = strings.TrimSpace(fenced)
		if strings.HasPrefix(fenced, "{") || strings.HasPrefix(fenced, "[") {
			return fenced
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}
	open := raw[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
		case closing:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}

	// Unterminated; let the repair strategies close it.
	return raw[start:]
}

// StripCodeFences returns the body of the first fenced block in s, or s unchanged
func StripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}

	var body []string
	inBlock, found := false, false
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inBlock {
				break
			}
			inBlock, found = true, true
			continue
		}
		if inBlock {
			body = append(body, line)
		}
	}

	if !found {
		return s
	}
	return strings.Join(body, "\n")
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
