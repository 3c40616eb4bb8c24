package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats describes what RepairJSON had to do to a payload
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	CommentsLost  int           `json:"comments_lost"`
	ErrorsFixed   int           `json:"errors_fixed"`
	RepairTime    time.Duration `json:"repair_time"`
	Strategies    []string      `json:"strategies"`
	WasRepaired   bool          `json:"was_repaired"`
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	innerQuoteRe    = regexp.MustCompile(`("(?:description|summary|suggestion|notes)":\s*")([^"\n]*)"([^"\n]*)"([^"\n]*)("\s*[,}\]])`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
	singleQuotedRe  = regexp.MustCompile(`'([^'\n]*)'`)
)

// repairStrategy is one cheap textual fix, applied only when it changes the input
type repairStrategy struct {
	name string
	fix  func(s string, stats *RepairStats) string
}

// Order matters: structural completion runs before key quoting so that
// truncated payloads are closed first.
var repairStrategies = []repairStrategy{
	{"trailing_commas", func(s string, _ *RepairStats) string { return trailingCommaRe.ReplaceAllString(s, "$1") }},
	{"unescaped_quotes", func(s string, _ *RepairStats) string { return innerQuoteRe.ReplaceAllString(s, `$1$2\"$3\"$4$5`) }},
	{"completion", func(s string, _ *RepairStats) string { return closeOpenStructures(s) }},
	{"comments_removed", stripComments},
	{"key_quotes", func(s string, _ *RepairStats) string { return bareKeyRe.ReplaceAllString(s, `$1"$2"$3`) }},
	{"single_quotes", func(s string, _ *RepairStats) string {
		if strings.Contains(s, `"`) {
			return s
		}
		return singleQuotedRe.ReplaceAllString(s, `"$1"`)
	}},
}

// RepairJSON returns raw unchanged when it is valid JSON. Otherwise it applies
// the textual strategies in order and finally hands the result to jsonrepair.
func RepairJSON(raw string) (string, RepairStats, error) {
	start := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}

	finish := func(s string, err error) (string, RepairStats, error) {
		stats.RepairedBytes = len(s)
		stats.RepairTime = time.Since(start)
		return s, stats, err
	}

	if json.Valid([]byte(raw)) {
		return finish(raw, nil)
	}

	stats.WasRepaired = true
	repaired := raw
	for _, strategy := range repairStrategies {
		next := strategy.fix(repaired, &stats)
		if next == repaired {
			continue
		}
		repaired = next
		stats.Strategies = append(stats.Strategies, strategy.name)
		stats.ErrorsFixed++
		if json.Valid([]byte(repaired)) {
			return finish(repaired, nil)
		}
	}

	if fixed, err := jsonrepair.JSONRepair(repaired); err == nil && fixed != repaired {
		repaired = fixed
		stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		stats.ErrorsFixed++
	}

	if !json.Valid([]byte(repaired)) {
		return finish(repaired, fmt.Errorf("JSON repair failed after %d strategies", len(stats.Strategies)))
	}
	return finish(repaired, nil)
}

// closeOpenStructures appends the closers of every brace or bracket left open,
// innermost first. Characters inside string literals are ignored.
func closeOpenStructures(s string) string {
	var stack []byte
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

// stripComments removes // line comments that start outside string literals and /* */ blocks
func stripComments(s string, stats *RepairStats) string {
	if !strings.Contains(s, "//") && !strings.Contains(s, "/*") {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := lineCommentIndex(line); idx >= 0 {
			lines[i] = line[:idx]
			stats.CommentsLost++
		}
	}
	s = strings.Join(lines, "\n")

	blocks := blockCommentRe.FindAllStringIndex(s, -1)
	stats.CommentsLost += len(blocks)
	return blockCommentRe.ReplaceAllString(s, "")
}

func lineCommentIndex(line string) int {
	inString := false
	for i := 0; i < len(line)-1; i++ {
		switch {
		case line[i] == '\\' && inString:
			i++
		case line[i] == '"':
			inString = !inString
		case !inString && line[i] == '/' && line[i+1] == '/':
			return i
		}
	}
	return -1
}
