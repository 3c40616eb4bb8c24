package architecture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Format identifies an architecture model DSL
type Format string

const (
	FormatLikeC4      Format = "likec4"
	FormatStructurizr Format = "structurizr"
)

var (
	ErrUnknownFormat = errors.New("unknown architecture model format")
	ErrNoModelFiles  = errors.New("no architecture model files found")
)

// Adapter loads architecture models of one format
type Adapter interface {
	Format() Format
	Extensions() []string
	LoadFromPath(ctx context.Context, path string) (*Model, error)
}

type dialect struct {
	format       Format
	extensions   []string
	metaBlock    string
	hashComments bool
	hierarchical bool
}

var dialects = map[Format]dialect{
	FormatLikeC4: {
		format:       FormatLikeC4,
		extensions:   []string{".c4", ".likec4"},
		metaBlock:    "metadata",
		hierarchical: true,
	},
	FormatStructurizr: {
		format:       FormatStructurizr,
		extensions:   []string{".dsl"},
		metaBlock:    "properties",
		hashComments: true,
	},
}

// skipDirs are never descended into when scanning a model workspace
var skipDirs = map[string]bool{
	".git":             true,
	".hg":              true,
	".svn":             true,
	"node_modules":     true,
	"bower_components": true,
	".yarn":            true,
	"vendor":           true,
}

// IsSkippedDir reports whether a directory named name holds version-control or dependency-manager state
func IsSkippedDir(name string) bool {
	return skipDirs[name]
}

// NewAdapter returns the adapter for format
func NewAdapter(format Format) (Adapter, error) {
	d, ok := dialects[Format(strings.ToLower(string(format)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &dslAdapter{d: d}, nil
}

// ParseFormat maps a configured format name onto a Format; "auto" and "" map to "".
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return "", nil
	case string(FormatLikeC4):
		return FormatLikeC4, nil
	case string(FormatStructurizr):
		return FormatStructurizr, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// DetectFormat inspects the file extensions under path. LikeC4 wins when both are present.
func DetectFormat(path string) (Format, error) {
	files, err := ListFiles(path, nil)
	if err != nil {
		return "", err
	}

	var sawDSL bool
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".c4", ".likec4":
			return FormatLikeC4, nil
		case ".dsl":
			sawDSL = true
		}
	}
	if sawDSL {
		return FormatStructurizr, nil
	}
	return "", fmt.Errorf("%w under %s", ErrNoModelFiles, path)
}

// Load detects the format when format is empty and loads the model at path
func Load(ctx context.Context, path string, format Format) (*Model, error) {
	if format == "" {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}
	adapter, err := NewAdapter(format)
	if err != nil {
		return nil, err
	}
	return adapter.LoadFromPath(ctx, path)
}

type dslAdapter struct {
	d dialect
}

func (a *dslAdapter) Format() Format       { return a.d.format }
func (a *dslAdapter) Extensions() []string { return append([]string(nil), a.d.extensions...) }

// LoadFromPath scans a model file, or every model file below a directory
func (a *dslAdapter) LoadFromPath(ctx context.Context, path string) (*Model, error) {
	files, err := ListFiles(path, a.d.extensions)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s files under %s", ErrNoModelFiles, strings.Join(a.d.extensions, "/"), path)
	}

	contents := make([]string, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read model file %s: %w", f, err)
		}
		contents[i] = string(data)
	}

	s := newScanner(a.d)
	if a.d.format == FormatLikeC4 {
		for _, c := range contents {
			s.seedKinds(c)
		}
	}
	for _, c := range contents {
		s.scanFile(c)
	}
	components, rels := s.finish()

	root := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		root = filepath.Dir(path)
	}

	log.Debug().
		Str("format", string(a.d.format)).
		Int("files", len(files)).
		Int("components", len(components)).
		Int("relationships", len(rels)).
		Msg("architecture model loaded")

	return NewModel(a.d.format, root, files, components, rels), nil
}

// ListFiles returns the files at or below path with one of exts (all files when exts is nil), sorted
func ListFiles(path string, exts []string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("model path %s: %w", path, err)
	}

	matches := func(name string) bool {
		if exts == nil {
			return true
		}
		ext := strings.ToLower(filepath.Ext(name))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}

	if !info.IsDir() {
		if matches(path) {
			return []string{path}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if matches(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan model directory %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}
