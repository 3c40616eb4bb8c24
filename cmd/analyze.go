package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/archdrift/internal/architecture"
	"github.com/archdrift/internal/config"
	"github.com/archdrift/internal/diff"
	"github.com/archdrift/internal/drift"
	"github.com/archdrift/internal/logging"
	"github.com/archdrift/internal/modelsource"
	"github.com/archdrift/internal/providers"
	"github.com/archdrift/internal/publish"
)

// AnalyzeCommand returns the analyze command
func AnalyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Check a pull/merge request against the architecture model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "model-path",
				Usage: "Model workspace directory or file (inside --model-repo when set)",
			},
			&cli.StringFlag{
				Name:  "model-repo",
				Usage: "Git repository holding the architecture model",
			},
			&cli.StringFlag{
				Name:  "model-ref",
				Usage: "Branch or tag of --model-repo",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Model format: auto, likec4 or structurizr",
			},
			&cli.BoolFlag{
				Name:  "patch",
				Usage: "Patch the model with the proposed relationships",
			},
			&cli.BoolFlag{
				Name:  "comment",
				Usage: "Post the analysis as a comment on the change request",
			},
			&cli.BoolFlag{
				Name:  "open-pr",
				Usage: "Open a change request against the model repository with the patch",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Run the analysis without writing to any platform",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Result format: text, json or yaml",
				Value:   string(OutputText),
			},
			&cli.StringFlag{
				Name:  "ci-output",
				Usage: "File receiving key=value outputs (defaults to $GITHUB_OUTPUT)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging for this command",
			},
		},
		ArgsUsage: "CHANGE_REQUEST_URL",
		Action:    runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: change request URL")
	}
	crURL := c.Args().Get(0)

	output, err := ParseOutputFormat(c.String("output"))
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyAnalyzeFlags(c, cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.General.LogLevel
	if c.Bool("verbose") {
		level = "debug"
	}
	logging.Setup(level, logging.Format(cfg.General.LogFormat))

	format, err := architecture.ParseFormat(cfg.Model.Format)
	if err != nil {
		return err
	}

	platforms, detector, err := createPlatforms(cfg)
	if err != nil {
		return fmt.Errorf("failed to create platform clients: %w", err)
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	aiProvider, err := createAIProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create AI provider: %w", err)
	}

	service := drift.NewService(platforms, aiProvider, drift.Config{
		Limits:            diff.Limits{MaxFiles: cfg.Analysis.MaxFiles, MaxLines: cfg.Analysis.MaxLines},
		ExtraSkipPatterns: cfg.Analysis.ExtraSkipPatterns,
		Timeout:           cfg.Analysis.Timeout,
		MaxTokens:         cfg.AI.MaxTokens,
		LogDir:            cfg.General.LogDir,
		Validators:        cfg.Patch.Validators,
		PatchWithAI:       cfg.Patch.UseAI,
	}, drift.WithResolver(modelsource.NewResolver(cloneCredentials(cfg, detector))))

	publisher, err := createPublisher(cfg, format, platforms, detector, crURL, c.Bool("dry-run"))
	if err != nil {
		return err
	}

	log.Debug().
		Str("url", crURL).
		Str("format", cfg.Model.Format).
		Bool("patch", cfg.Patch.Enabled).
		Bool("dry_run", c.Bool("dry-run")).
		Msg("Starting analysis")

	result, err := service.Analyze(ctx, drift.Request{
		URL: crURL,
		Model: modelsource.Source{
			Path: cfg.Model.Path,
			Repo: cfg.Model.Repo,
			Ref:  cfg.Model.Ref,
		},
		Format:    format,
		Patch:     cfg.Patch.Enabled,
		Publisher: publisher,
	})

	var stageErr *drift.StageError
	if err != nil && !(errors.As(err, &stageErr) && stageErr.Stage == drift.StagePublish && result != nil) {
		return err
	}
	if printErr := WriteResult(os.Stdout, result, output); printErr != nil {
		return printErr
	}
	return err
}

// applyAnalyzeFlags lets command flags override the loaded configuration
func applyAnalyzeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("model-path") {
		cfg.Model.Path = c.String("model-path")
	}
	if c.IsSet("model-repo") {
		cfg.Model.Repo = c.String("model-repo")
	}
	if c.IsSet("model-ref") {
		cfg.Model.Ref = c.String("model-ref")
	}
	if c.IsSet("format") {
		cfg.Model.Format = c.String("format")
	}
	if c.IsSet("patch") {
		cfg.Patch.Enabled = c.Bool("patch")
	}
	if c.IsSet("comment") {
		cfg.Publish.Comment = c.Bool("comment")
	}
	if c.IsSet("open-pr") {
		cfg.Publish.OpenPR = c.Bool("open-pr")
	}
	if c.IsSet("ci-output") {
		cfg.Publish.CIOutput = c.String("ci-output")
	}
	if cfg.Publish.OpenPR {
		cfg.Patch.Enabled = true
	}
}

// createPublisher wires the comment writer for the change request's platform and,
// when a model repository is configured, the writer for model change requests.
// A dry run only writes CI outputs.
func createPublisher(cfg *config.Config, format architecture.Format, platforms providers.Factory, detector *providers.Detector, crURL string, dryRun bool) (drift.Publisher, error) {
	opts := publish.Options{
		Comment:    cfg.Publish.Comment && !dryRun,
		OpenPR:     cfg.Publish.OpenPR && !dryRun,
		Draft:      cfg.Publish.Draft,
		BaseBranch: cfg.Publish.BaseBranch,
		CIOutput:   cfg.Publish.CIOutput,
		Format:     string(format),
	}
	if dryRun {
		return publish.New(nil, opts), nil
	}

	// An unusable URL is reported by the analysis itself
	crPlatform, err := platforms.ForURL(crURL)
	if err != nil {
		log.Debug().Err(err).Str("url", crURL).Msg("No platform for change request URL")
	}
	publisher := publish.New(crPlatform, opts)

	if opts.OpenPR {
		repo, err := detector.ParseRepositoryURL(cfg.Model.Repo)
		if err != nil {
			return nil, fmt.Errorf("invalid model repository: %w", err)
		}
		modelPlatform, err := platforms.ForPlatform(repo.Platform)
		if err != nil {
			return nil, err
		}
		publisher.WithModelRepository(modelPlatform, repo)
	}
	return publisher, nil
}
