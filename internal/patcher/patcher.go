package patcher

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/archdrift/internal/ai"
	"github.com/archdrift/internal/architecture"
	"github.com/archdrift/internal/logging"
	"github.com/archdrift/internal/sandbox"
	"github.com/archdrift/pkg/models"
)

// Skip reasons recorded for relationships that are not applied
const (
	ReasonUnknownSource = "Unknown source component: %s"
	ReasonUnknownTarget = "Unknown target component: %s"
	ReasonExists        = "Relationship already exists"
	ReasonSelf          = "Self-referencing relationship"
	ReasonDuplicate     = "Duplicate proposed relationship"
)

// Patcher turns proposed relationships into a validated edit of one model file
type Patcher struct {
	format     Format
	sandbox    *sandbox.Sandbox
	generators []Generator
	logger     *logging.RunLogger
}

// Option configures a Patcher
type Option func(*Patcher)

// WithModelPatcher puts an AI rewrite ahead of deterministic insertion
func WithModelPatcher(mp ai.ModelPatcher) Option {
	return func(p *Patcher) {
		if mp != nil {
			p.generators = append([]Generator{&AIGenerator{Patcher: mp, Format: p.format}}, p.generators...)
		}
	}
}

// WithGenerators replaces the generator list; each entry passes the same gate in order
func WithGenerators(gens ...Generator) Option {
	return func(p *Patcher) { p.generators = gens }
}

func WithSandbox(sb *sandbox.Sandbox) Option {
	return func(p *Patcher) { p.sandbox = sb }
}

func WithLogger(logger *logging.RunLogger) Option {
	return func(p *Patcher) { p.logger = logger }
}

// New returns a patcher for format with deterministic insertion as the last generator
func New(format Format, opts ...Option) *Patcher {
	p := &Patcher{
		format:     format,
		sandbox:    sandbox.New(),
		generators: []Generator{&DeterministicGenerator{Format: format}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Format returns the patcher's format strategy
func (p *Patcher) Format() Format { return p.format }

// Patch applies rels to the model. It returns nil when nothing is applicable: every
// relationship was filtered, no target file exists, or no generator produced valid content.
func (p *Patcher) Patch(ctx context.Context, model *architecture.Model, rels []models.StructuredRelationship) *models.PatchResult {
	kept, skipped := Filter(model, rels)
	for _, s := range skipped {
		p.logger.Log("Skipping relationship %s -> %s: %s", s.Source, s.Target, s.Reason)
	}
	if len(kept) == 0 {
		p.logger.Log("No new relationships to add to the model")
		return nil
	}

	kinds := make(map[string]bool)
	for _, k := range model.RelationshipKinds() {
		kinds[k] = true
	}
	lines := p.format.GenerateLines(kept, kinds)

	target, err := p.format.FindTargetFile(model.Root)
	if err != nil || target == "" {
		log.Debug().Err(err).Str("root", model.Root).Msg("No target file for model patch")
		p.logger.Log("No %s model file found under %s", p.format.Name(), model.Root)
		return nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		p.logger.LogError("read patch target", err)
		return nil
	}
	original := string(data)

	for _, gen := range p.generators {
		content, err := p.attempt(ctx, gen, model.Root, target, original, lines)
		if err != nil {
			p.logger.Log("Patch generator %s rejected: %v", gen.Name(), err)
			log.Debug().Err(err).Str("generator", gen.Name()).Str("file", target).Msg("Patch candidate rejected")
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		p.logger.Log("Patch generator %s produced a valid edit of %s", gen.Name(), target)
		return &models.PatchResult{
			FilePath:      RepositoryPath(ctx, target),
			Content:       content,
			InsertedLines: lines,
			Skipped:       skipped,
			Generator:     gen.Name(),
		}
	}

	p.logger.Log("No patch generator produced valid content")
	return nil
}

// attempt runs one generator through the pre-check and sandbox gate
func (p *Patcher) attempt(ctx context.Context, gen Generator, workspace, target, original string, lines []string) (string, error) {
	content, err := gen.Generate(ctx, original, lines)
	if err != nil {
		return "", err
	}
	if err := precheck(original, content, lines, p.format); err != nil {
		return "", fmt.Errorf("pre-check failed: %w", err)
	}

	result := p.format.Validate(ctx, p.sandbox, workspace, target, content)
	if !result.Accepted() {
		return "", fmt.Errorf("validation failed: %v", result.Errors)
	}
	if result.Skipped {
		p.logger.Log("Validator unavailable for %s, accepting %s edit optimistically", p.format.Name(), gen.Name())
	}
	return content, nil
}

// Filter splits rels into those that can be applied and skip records for the rest
func Filter(model *architecture.Model, rels []models.StructuredRelationship) ([]models.StructuredRelationship, []models.SkippedRelationship) {
	var kept []models.StructuredRelationship
	skipped := []models.SkippedRelationship{}
	proposed := make(map[[2]string]bool)

	skip := func(r models.StructuredRelationship, reason string) {
		skipped = append(skipped, models.SkippedRelationship{Source: r.Source, Target: r.Target, Reason: reason})
	}

	for _, r := range rels {
		pair := [2]string{r.Source, r.Target}
		switch {
		case !model.HasComponent(r.Source):
			skip(r, fmt.Sprintf(ReasonUnknownSource, r.Source))
		case !model.HasComponent(r.Target):
			skip(r, fmt.Sprintf(ReasonUnknownTarget, r.Target))
		case r.Source == r.Target:
			skip(r, ReasonSelf)
		case model.HasRelationship(r.Source, r.Target):
			skip(r, ReasonExists)
		case proposed[pair]:
			skip(r, ReasonDuplicate)
		default:
			proposed[pair] = true
			kept = append(kept, r)
		}
	}
	return kept, skipped
}
