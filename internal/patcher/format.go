package patcher

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/archdrift/internal/architecture"
	"github.com/archdrift/internal/sandbox"
	"github.com/archdrift/pkg/models"
)

// Default validator commands per format
const (
	DefaultLikeC4Validator      = "likec4 validate {workspace}"
	DefaultStructurizrValidator = "structurizr-cli validate -workspace {file}"
)

// Format is the per-dialect part of model patching
type Format interface {
	Name() string
	Extensions() []string

	// IsModelBlockLine reports whether line opens the block that holds elements and relationships
	IsModelBlockLine(line string) bool

	// GenerateLines renders one relationship line per entry. A kind is kept only when knownKinds contains it.
	GenerateLines(rels []models.StructuredRelationship, knownKinds map[string]bool) []string

	// FindTargetFile picks the model file under dir that should receive new relationships; "" when none
	FindTargetFile(dir string) (string, error)

	// Validate checks content as a replacement for file inside workspace
	Validate(ctx context.Context, sb *sandbox.Sandbox, workspace, file, content string) models.DslValidationResult

	CanonicalIndent() string
	StringDelimiter() string
}

// NewFormat returns the strategy for name. A nil checker runs the format's default validator command.
func NewFormat(name string, checker sandbox.Checker) (Format, error) {
	switch architecture.Format(strings.ToLower(name)) {
	case architecture.FormatLikeC4:
		if checker == nil {
			checker = sandbox.NewCommandChecker(DefaultLikeC4Validator)
		}
		return &likeC4{base{checker: checker, modelBlock: likec4ModelBlock, exts: []string{".c4", ".likec4"}}}, nil
	case architecture.FormatStructurizr:
		if checker == nil {
			checker = sandbox.NewCommandChecker(DefaultStructurizrValidator)
		}
		return &structurizr{base{checker: checker, modelBlock: structurizrModelBlock, exts: []string{".dsl"}}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", architecture.ErrUnknownFormat, name)
	}
}

var (
	likec4ModelBlock      = regexp.MustCompile(`^\s*model\s*\{`)
	structurizrModelBlock = regexp.MustCompile(`(?i)^\s*model\s*\{`)
)

// base holds what both dialects share
type base struct {
	checker    sandbox.Checker
	modelBlock *regexp.Regexp
	exts       []string
}

func (b base) Extensions() []string { return b.exts }

func (b base) IsModelBlockLine(line string) bool {
	return b.modelBlock.MatchString(line)
}

func (b base) Validate(ctx context.Context, sb *sandbox.Sandbox, workspace, file, content string) models.DslValidationResult {
	return sb.Validate(ctx, workspace, file, content, b.checker)
}

// FindTargetFile prefers a file with a model block and a relationship, then any file with a
// model block, then the first model file.
func (b base) FindTargetFile(dir string) (string, error) {
	files, err := architecture.ListFiles(dir, b.exts)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	withBlock := ""
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f, err)
		}
		hasBlock, hasRel := false, false
		for _, line := range strings.Split(string(data), "\n") {
			if b.IsModelBlockLine(line) {
				hasBlock = true
			}
			if strings.Contains(line, "->") && !isCommentLine(line) {
				hasRel = true
			}
		}
		if hasBlock && hasRel {
			return f, nil
		}
		if hasBlock && withBlock == "" {
			withBlock = f
		}
	}
	if withBlock != "" {
		return withBlock, nil
	}
	return files[0], nil
}

type likeC4 struct{ base }

func (likeC4) Name() string            { return string(architecture.FormatLikeC4) }
func (likeC4) CanonicalIndent() string { return "  " }
func (likeC4) StringDelimiter() string { return "'" }

// GenerateLines renders `a -> b 'desc'` or `a -[kind]-> b 'desc'`
func (f *likeC4) GenerateLines(rels []models.StructuredRelationship, knownKinds map[string]bool) []string {
	lines := make([]string, 0, len(rels))
	for _, r := range rels {
		arrow := "->"
		if r.Kind != "" && knownKinds[r.Kind] {
			arrow = "-[" + r.Kind + "]->"
		}
		line := fmt.Sprintf("%s %s %s", r.Source, arrow, r.Target)
		if desc := sanitize(r.Description, f.StringDelimiter()); desc != "" {
			line += " '" + desc + "'"
		}
		lines = append(lines, line)
	}
	return lines
}

type structurizr struct{ base }

func (structurizr) Name() string            { return string(architecture.FormatStructurizr) }
func (structurizr) CanonicalIndent() string { return "    " }
func (structurizr) StringDelimiter() string { return `"` }

// GenerateLines renders `a -> b "desc"` or `a -> b "desc" "kind"`
func (f *structurizr) GenerateLines(rels []models.StructuredRelationship, knownKinds map[string]bool) []string {
	lines := make([]string, 0, len(rels))
	for _, r := range rels {
		line := fmt.Sprintf("%s -> %s", r.Source, r.Target)
		desc := sanitize(r.Description, f.StringDelimiter())
		withKind := r.Kind != "" && knownKinds[r.Kind]
		if desc != "" || withKind {
			line += ` "` + desc + `"`
		}
		if withKind {
			line += ` "` + sanitize(r.Kind, f.StringDelimiter()) + `"`
		}
		lines = append(lines, line)
	}
	return lines
}

// sanitize removes the string delimiter and line breaks from s
func sanitize(s, delim string) string {
	s = strings.ReplaceAll(s, delim, "")
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "*") || strings.HasPrefix(t, "/*")
}
