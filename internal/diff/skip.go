package diff

import (
	_ "embed"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/archdrift/pkg/models"
)

//go:embed skip_patterns.txt
var skipPatternsFile string

var (
	skipPatternsOnce sync.Once
	skipPatterns     []string
)

// SkipPatterns returns the built-in exclusion globs, parsed once
func SkipPatterns() []string {
	skipPatternsOnce.Do(func() {
		skipPatterns = ParsePatterns(skipPatternsFile)
	})
	out := make([]string, len(skipPatterns))
	copy(out, skipPatterns)
	return out
}

// ParsePatterns splits a pattern list into globs, dropping blank lines and # comments
func ParsePatterns(text string) []string {
	var patterns []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// FilterResult holds the files that survived skip-pattern filtering
type FilterResult struct {
	Included      []models.ChangedFile
	ExcludedCount int
}

// FilterFiles drops every file whose path matches one of the patterns.
// Order of the included files is preserved.
func FilterFiles(files []models.ChangedFile, patterns []string) FilterResult {
	result := FilterResult{Included: make([]models.ChangedFile, 0, len(files))}
	for _, f := range files {
		if MatchesAny(f.Filename, patterns) {
			result.ExcludedCount++
			continue
		}
		result.Included = append(result.Included, f)
	}
	return result
}

// MatchesAny reports whether name matches one of the patterns.
// A pattern without a slash is matched against the base name as well.
func MatchesAny(name string, patterns []string) bool {
	name = strings.TrimPrefix(name, "/")
	base := path.Base(name)
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			log.Debug().Str("pattern", pattern).Err(err).Msg("invalid skip pattern")
			continue
		}
		if ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}
