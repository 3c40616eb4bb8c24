package cmd

import (
	"context"
	"fmt"

	"github.com/archdrift/internal/ai/langchain"
	"github.com/archdrift/internal/aiconnectors"
	"github.com/archdrift/internal/config"
	"github.com/archdrift/internal/modelsource"
	"github.com/archdrift/internal/providers"
	"github.com/archdrift/internal/providers/github"
	"github.com/archdrift/internal/providers/gitlab"
	"github.com/archdrift/internal/retry"
	"github.com/archdrift/pkg/models"
)

// createPlatforms registers a client for every hosting platform. Self-hosted
// instances are taught to the detector through their configured URLs.
func createPlatforms(cfg *config.Config) (*providers.StandardFactory, *providers.Detector, error) {
	detector := providers.NewDetector().
		AddHost(models.PlatformGitHub, cfg.Platform.GitHub.URL).
		AddHost(models.PlatformGitLab, cfg.Platform.GitLab.URL)
	factory := providers.NewStandardFactory(detector)

	gh, err := github.NewClient(github.Options{
		Token:   cfg.Platform.GitHub.Token,
		BaseURL: cfg.Platform.GitHub.URL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	factory.Register(gh)

	gl, err := gitlab.New(gitlab.GitLabConfig{
		URL:   cfg.Platform.GitLab.URL,
		Token: cfg.Platform.GitLab.Token,
	})
	if err != nil {
		return nil, nil, err
	}
	factory.Register(gl)

	return factory, detector, nil
}

// cloneCredentials authenticates model repository clones with the platform tokens
func cloneCredentials(cfg *config.Config, detector *providers.Detector) modelsource.Credentials {
	return func(repoURL string) (string, string) {
		platform, err := detector.Detect(repoURL)
		if err != nil {
			return "", ""
		}
		switch platform {
		case models.PlatformGitHub:
			return "x-access-token", cfg.Platform.GitHub.Token
		case models.PlatformGitLab:
			return "oauth2", cfg.Platform.GitLab.Token
		}
		return "", ""
	}
}

func connectorOptions(cfg *config.Config) aiconnectors.ConnectorOptions {
	return aiconnectors.ConnectorOptions{
		Provider: aiconnectors.Provider(cfg.AI.Provider),
		APIKey:   cfg.AI.APIKey,
		BaseURL:  cfg.AI.BaseURL,
		ModelConfig: aiconnectors.ModelConfig{
			Model:       cfg.AI.AdvancedModel,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		},
	}
}

func createAIProvider(ctx context.Context, cfg *config.Config) (*langchain.LangchainProvider, error) {
	return langchain.NewFromOptions(ctx, connectorOptions(cfg), langchain.Config{
		FastModel:     cfg.AI.FastModel,
		AdvancedModel: cfg.AI.AdvancedModel,
		MaxTokens:     cfg.AI.MaxTokens,
		Retry:         retry.LLMRetryConfig(),
	})
}
