package drift

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/archdrift/internal/ai"
	"github.com/archdrift/internal/architecture"
	"github.com/archdrift/internal/diff"
	"github.com/archdrift/internal/logging"
	"github.com/archdrift/internal/modelsource"
	"github.com/archdrift/internal/patcher"
	"github.com/archdrift/internal/providers"
	"github.com/archdrift/internal/sandbox"
	"github.com/archdrift/pkg/models"
)

// DefaultKind groups relationships declared without a kind
const DefaultKind = "uses"

// ModelResolver locates the architecture model for a run
type ModelResolver interface {
	Resolve(ctx context.Context, src modelsource.Source) (*modelsource.Resolved, error)
}

// ModelLoader parses the model at path; an empty format is detected
type ModelLoader func(ctx context.Context, path string, format architecture.Format) (*architecture.Model, error)

// Patcher applies proposed relationships to a model; nil means no patch was applicable
type Patcher interface {
	Patch(ctx context.Context, model *architecture.Model, rels []models.StructuredRelationship) *models.PatchResult
}

// PatcherFactory builds the patcher for a model format
type PatcherFactory func(format architecture.Format, logger *logging.RunLogger) (Patcher, error)

// Publisher writes a finished analysis back to the platforms, narrating into the run logger
type Publisher interface {
	Publish(ctx context.Context, result *models.DriftAnalysisResult, logger *logging.RunLogger) (*models.PublicationResult, error)
}

// RunLogged is implemented by completion providers that can record into a run transcript
type RunLogged interface {
	WithLogger(logger *logging.RunLogger) ai.Provider
}

// Config holds the service configuration
type Config struct {
	Limits            diff.Limits
	ExtraSkipPatterns []string
	// Timeout bounds a whole run; zero disables it
	Timeout   time.Duration
	MaxTokens int
	// LogDir receives per-run transcripts when set
	LogDir string
	// Validators maps a format name to its validator command
	Validators map[string]string
	// PatchWithAI tries an AI rewrite of the model file before deterministic insertion
	PatchWithAI bool
}

// Request is one change request to analyze
type Request struct {
	URL    string
	Model  modelsource.Source
	Format architecture.Format
	// Patch enables model patching when drift analysis proposes relationships
	Patch bool
	// Publisher is optional; nil skips publication
	Publisher Publisher
}

// Service runs the drift analysis pipeline
type Service struct {
	platforms providers.Factory
	provider  ai.Provider
	config    Config
	resolver  ModelResolver
	loader    ModelLoader
	patchers  PatcherFactory
}

// Option configures a Service
type Option func(*Service)

func WithResolver(r ModelResolver) Option {
	return func(s *Service) { s.resolver = r }
}

func WithLoader(l ModelLoader) Option {
	return func(s *Service) { s.loader = l }
}

func WithPatcherFactory(f PatcherFactory) Option {
	return func(s *Service) { s.patchers = f }
}

// NewService creates the pipeline over the configured platforms and completion provider
func NewService(platforms providers.Factory, provider ai.Provider, config Config, opts ...Option) *Service {
	if config.Limits.MaxFiles <= 0 || config.Limits.MaxLines <= 0 {
		defaults := diff.DefaultLimits()
		if config.Limits.MaxFiles <= 0 {
			config.Limits.MaxFiles = defaults.MaxFiles
		}
		if config.Limits.MaxLines <= 0 {
			config.Limits.MaxLines = defaults.MaxLines
		}
	}

	s := &Service{
		platforms: platforms,
		provider:  provider,
		config:    config,
		resolver:  modelsource.NewResolver(nil),
		loader:    architecture.Load,
	}
	s.patchers = s.defaultPatcher
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultPatcher validates with the configured command for the format and, when enabled,
// uses the completion provider for AI rewrites if it supports them
func (s *Service) defaultPatcher(format architecture.Format, logger *logging.RunLogger) (Patcher, error) {
	var checker sandbox.Checker
	if cmd := s.config.Validators[string(format)]; cmd != "" {
		checker = sandbox.NewCommandChecker(cmd)
	}
	f, err := patcher.NewFormat(string(format), checker)
	if err != nil {
		return nil, err
	}

	opts := []patcher.Option{patcher.WithLogger(logger)}
	if mp, ok := s.providerFor(logger).(ai.ModelPatcher); ok && s.config.PatchWithAI {
		opts = append(opts, patcher.WithModelPatcher(mp))
	}
	return patcher.New(f, opts...), nil
}

// providerFor binds the completion provider to a run's logger when it supports one
func (s *Service) providerFor(logger *logging.RunLogger) ai.Provider {
	if rl, ok := s.provider.(RunLogged); ok {
		return rl.WithLogger(logger)
	}
	return s.provider
}

// run is the state of one Analyze call
type run struct {
	logger    *logging.RunLogger
	provider  ai.Provider
	platform  providers.Platform
	ref       models.ChangeRequestRef
	model     *architecture.Model
	component models.ArchitecturalComponent
	data      *models.ChangeRequestData
	commits   []models.Commit
	result    *models.DriftAnalysisResult
}

func (r *run) fail(stage Stage, err error) error {
	r.logger.StageFailed(string(stage), err)
	return &StageError{Stage: stage, ComponentID: r.component.ID, Repository: r.ref.RepositoryURL, Err: err}
}

// Analyze runs one change request through the pipeline. A model that does not know the
// change request's repository yields a result with an empty ComponentID and no error.
func (s *Service) Analyze(ctx context.Context, req Request) (*models.DriftAnalysisResult, error) {
	runID := uuid.NewString()
	logger, err := logging.StartRunLogging(runID, s.config.LogDir)
	if err != nil {
		log.Warn().Err(err).Msg("Run transcript disabled")
		logger = logging.NewRunLogger(runID)
	}
	defer logger.Close()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	r := &run{logger: logger, provider: s.providerFor(logger)}
	logger.LogSection("DRIFT ANALYSIS")
	logger.Log("Change request: %s", req.URL)

	r.platform, err = s.platforms.ForURL(req.URL)
	if err != nil {
		return nil, r.fail(StageParseURL, err)
	}
	r.ref, err = r.platform.ParseURL(req.URL)
	if err != nil {
		return nil, r.fail(StageParseURL, err)
	}
	r.result = &models.DriftAnalysisResult{
		RunID:         runID,
		ChangeRequest: r.ref,
		Violations:    []models.Violation{},
		Improvements:  []string{},
		Warnings:      []string{},
	}

	// 1. resolve model source
	logger.StageStarted(string(StageResolveModel))
	resolved, err := s.resolver.Resolve(ctx, req.Model)
	if err != nil {
		return nil, r.fail(StageResolveModel, err)
	}
	defer resolved.Cleanup()
	logger.StageCompleted(string(StageResolveModel))

	// 2. load model
	logger.StageStarted(string(StageLoadModel))
	r.model, err = s.loader(ctx, resolved.Path, req.Format)
	if err != nil {
		return nil, r.fail(StageLoadModel, err)
	}
	logger.Log("Loaded %s model: %d components, %d relationships", r.model.Format, len(r.model.Components), len(r.model.Relationships))
	logger.StageCompleted(string(StageLoadModel))

	// 3. resolve component
	logger.StageStarted(string(StageResolveComponent))
	found, err := s.resolveComponent(ctx, r)
	if err != nil {
		return nil, r.fail(StageResolveComponent, err)
	}
	if !found {
		logger.Log("No component in the model references %s", r.ref.RepositoryURL)
		logger.StageCompleted(string(StageResolveComponent))
		return r.result, nil
	}
	r.result.ComponentID = r.component.ID
	r.result.ComponentName = r.component.Name
	logger.StageCompleted(string(StageResolveComponent))

	// 4. fetch diff and commits
	logger.StageStarted(string(StageFetchChangeRequest))
	if err := s.fetch(ctx, r); err != nil {
		return nil, r.fail(StageFetchChangeRequest, err)
	}
	s.preprocess(r)
	logger.StageCompleted(string(StageFetchChangeRequest))

	// 5. extract dependencies
	logger.StageStarted(string(StageExtractDeps))
	if err := s.extractDependencies(ctx, r); err != nil {
		return nil, r.fail(StageExtractDeps, err)
	}
	logger.StageCompleted(string(StageExtractDeps))

	// 6. analyze drift
	logger.StageStarted(string(StageAnalyzeDrift))
	if err := s.analyzeDrift(ctx, r); err != nil {
		return nil, r.fail(StageAnalyzeDrift, err)
	}
	logger.StageCompleted(string(StageAnalyzeDrift))

	// 7. patch model
	if req.Patch && r.result.ModelUpdates != nil && len(r.result.ModelUpdates.Relationships) > 0 {
		logger.StageStarted(string(StagePatchModel))
		s.patch(ctx, r)
		logger.StageCompleted(string(StagePatchModel))
	}

	// 8. publish
	if req.Publisher != nil {
		logger.StageStarted(string(StagePublish))
		pub, err := req.Publisher.Publish(ctx, r.result, logger)
		r.result.Publication = pub
		if err != nil {
			return r.result, r.fail(StagePublish, err)
		}
		logger.StageCompleted(string(StagePublish))
	}

	log.Info().
		Str("run_id", runID).
		Str("component", r.component.ID).
		Int("violations", len(r.result.Violations)).
		Bool("patched", r.result.Patch != nil).
		Msg("Drift analysis completed")
	return r.result, nil
}

// resolveComponent picks the component owning the change request's repository.
// It reports false when the model has none.
func (s *Service) resolveComponent(ctx context.Context, r *run) (bool, error) {
	candidates := r.model.FindAllComponentsByRepository(r.ref.RepositoryURL)
	switch len(candidates) {
	case 0:
		return false, nil
	case 1:
		r.component = candidates[0]
		r.logger.Log("Resolved component %s", r.component.ID)
		return true, nil
	}

	// Selection needs the changed file names, so the change request is fetched here
	if err := s.fetch(ctx, r); err != nil {
		return false, err
	}
	files := make([]string, 0, len(r.data.Files))
	for _, f := range r.data.Files {
		files = append(files, f.Filename)
	}

	r.logger.Log("%d components reference %s, asking for a selection", len(candidates), r.ref.RepositoryURL)
	id, err := r.provider.SelectComponent(ctx, candidates, files)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if c.ID == id {
			r.component = c
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: selection returned %q", ErrUnknownComponent, id)
}

// fetch loads the change request and its commits once per run
func (s *Service) fetch(ctx context.Context, r *run) error {
	if r.data != nil {
		return nil
	}
	data, err := r.platform.FetchChangeRequest(ctx, r.ref)
	if err != nil {
		return fmt.Errorf("failed to fetch change request: %w", err)
	}
	commits, err := r.platform.FetchCommits(ctx, r.ref)
	if err != nil {
		return fmt.Errorf("failed to fetch commits: %w", err)
	}
	r.data, r.commits = data, commits
	r.logger.Log("Fetched %q: %d files, %d commits", data.Title, len(data.Files), len(commits))
	return nil
}

// preprocess applies skip patterns, then truncation, and narrows the raw diff to the kept files
func (s *Service) preprocess(r *run) {
	patterns := append(diff.SkipPatterns(), s.config.ExtraSkipPatterns...)
	filtered := diff.FilterFiles(r.data.Files, patterns)
	truncated := diff.Truncate(filtered.Included, diff.TotalChangedLines(filtered.Included), s.config.Limits)

	r.data.Files = truncated.Files
	r.data.Diff = diff.FilterDiff(r.data.Diff, truncated.Files)
	r.data.WasTruncated = truncated.WasTruncated
	r.data.TruncationReason = truncated.Reason

	r.result.AnalyzedFiles = len(truncated.Files)
	r.result.ExcludedFiles = filtered.ExcludedCount
	r.result.WasTruncated = truncated.WasTruncated
	r.result.TruncationReason = truncated.Reason

	r.logger.Log("Analyzing %d files (%d excluded by skip patterns)", len(truncated.Files), filtered.ExcludedCount)
	if truncated.WasTruncated {
		r.logger.Log("%s", truncated.Reason)
	}
}

// patch runs the model patcher; failures only suppress the patch
func (s *Service) patch(ctx context.Context, r *run) {
	p, err := s.patchers(r.model.Format, r.logger)
	if err != nil {
		r.logger.LogError("patch model", err)
		log.Warn().Err(err).Msg("Model patching unavailable")
		return
	}
	r.result.Patch = p.Patch(ctx, r.model, r.result.ModelUpdates.Relationships)
	if r.result.Patch == nil {
		r.logger.Log("No model patch produced")
	}
}

// dependencyGroups deduplicates relationships by target and groups them by kind
func dependencyGroups(rels []models.ModelRelationship) map[string][]models.ModelRelationship {
	seen := make(map[string]bool, len(rels))
	groups := make(map[string][]models.ModelRelationship)
	for _, rel := range rels {
		if seen[rel.Target] {
			continue
		}
		seen[rel.Target] = true
		kind := rel.Kind
		if kind == "" {
			kind = DefaultKind
		}
		groups[kind] = append(groups[kind], rel)
	}
	return groups
}

func componentIDs(m *architecture.Model) []string {
	ids := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}
