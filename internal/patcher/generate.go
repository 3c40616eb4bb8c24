package patcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/archdrift/internal/ai"
	"github.com/archdrift/internal/llm"
)

// ErrNoInsertionPoint is returned when a file has no closing brace to insert before
var ErrNoInsertionPoint = errors.New("no insertion point found")

// Generator produces the full new content of a model file with lines added
type Generator interface {
	Name() string
	Generate(ctx context.Context, content string, lines []string) (string, error)
}

// AIGenerator asks the completion service to rewrite the file
type AIGenerator struct {
	Patcher ai.ModelPatcher
	Format  Format
}

func (g *AIGenerator) Name() string { return "ai" }

func (g *AIGenerator) Generate(ctx context.Context, content string, lines []string) (string, error) {
	out, err := g.Patcher.PatchModel(ctx, content, lines, g.Format.Name())
	if err != nil {
		return "", err
	}
	return llm.StripCodeFences(out), nil
}

// DeterministicGenerator splices the lines before the end of the model block
type DeterministicGenerator struct {
	Format Format
}

func (g *DeterministicGenerator) Name() string { return "deterministic" }

func (g *DeterministicGenerator) Generate(ctx context.Context, content string, lines []string) (string, error) {
	return insertLines(content, lines, g.Format)
}

// insertLines places a blank line and lines, re-indented, before the line closing the model block.
// Without a model block the last line holding "}" is used.
func insertLines(content string, lines []string, f Format) (string, error) {
	src := strings.Split(content, "\n")

	at := closingLine(src, f)
	if at < 0 {
		var sc braceScanner
		for i, l := range src {
			if _, closes := sc.counts(l); closes > 0 {
				at = i
			}
		}
	}
	if at < 0 {
		return "", ErrNoInsertionPoint
	}

	indent := indentBefore(src, at, f)

	out := make([]string, 0, len(src)+len(lines)+1)
	out = append(out, src[:at]...)
	out = append(out, "")
	for _, l := range lines {
		out = append(out, indent+strings.TrimSpace(l))
	}
	out = append(out, src[at:]...)
	return strings.Join(out, "\n"), nil
}

// closingLine returns the index of the line where brace depth, counted from the first
// model block line, returns to zero; -1 when there is none
func closingLine(src []string, f Format) int {
	var sc braceScanner
	start, depth, opened := -1, 0, false
	for i, l := range src {
		inString := sc.inString()
		opens, closes := sc.counts(l)
		if start < 0 {
			if inString || !f.IsModelBlockLine(l) {
				continue
			}
			start = i
		}
		if opens > 0 {
			opened = true
		}
		depth += opens - closes
		if opened && depth <= 0 {
			if i == start {
				// single-line block has no interior line to insert before
				return -1
			}
			return i
		}
	}
	return -1
}

// indentBefore is the indentation of the nearest non-blank line above at, unless that line
// is the model block opener or unindented, in which case the closing line's indent plus the
// canonical indent is used
func indentBefore(src []string, at int, f Format) string {
	closing := leadingSpace(src[at])
	for i := at - 1; i >= 0; i-- {
		if strings.TrimSpace(src[i]) == "" {
			continue
		}
		if f.IsModelBlockLine(src[i]) {
			break
		}
		if ind := leadingSpace(src[i]); ind != "" {
			return ind
		}
		break
	}
	return closing + f.CanonicalIndent()
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// braceScanner counts braces outside quoted strings and line comments. A triple-quoted
// string may span lines, so one scanner follows a whole document line by line.
type braceScanner struct {
	triple string
}

func (s *braceScanner) inString() bool { return s.triple != "" }

func (s *braceScanner) counts(line string) (opens, closes int) {
	var quote byte
	for i := 0; i < len(line); i++ {
		if s.triple != "" {
			if strings.HasPrefix(line[i:], s.triple) {
				i += len(s.triple) - 1
				s.triple = ""
			}
			continue
		}
		c := line[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			if d := line[i:min(i+3, len(line))]; d == "'''" || d == `"""` {
				s.triple = d
				i += 2
				continue
			}
			quote = c
		case '/':
			if i+1 < len(line) && line[i+1] == '/' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t') {
				return
			}
		case '{':
			opens++
		case '}':
			closes++
		}
	}
	return
}

// precheck rejects candidates that lost the model block, unbalanced braces, dropped content
// or are missing any of lines
func precheck(original, candidate string, lines []string, f Format) error {
	hasBlock := false
	depth := 0
	candidateLines := make(map[string]bool)
	var sc braceScanner
	for _, l := range strings.Split(candidate, "\n") {
		if !sc.inString() && f.IsModelBlockLine(l) {
			hasBlock = true
		}
		opens, closes := sc.counts(l)
		depth += opens - closes
		if depth < 0 {
			return errors.New("unbalanced braces")
		}
		candidateLines[strings.TrimSpace(l)] = true
	}

	if !hasBlock {
		return errors.New("model block missing")
	}
	if sc.inString() {
		return errors.New("unterminated string")
	}
	if depth != 0 {
		return errors.New("unbalanced braces")
	}
	if got, want := nonBlankLines(candidate), nonBlankLines(original); got < want {
		return fmt.Errorf("content shrank from %d to %d lines", want, got)
	}
	for _, l := range lines {
		if !candidateLines[strings.TrimSpace(l)] {
			return fmt.Errorf("generated line missing: %s", strings.TrimSpace(l))
		}
	}
	return nil
}

func nonBlankLines(s string) int {
	n := 0
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}
