package langchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/archdrift/internal/ai"
	"github.com/archdrift/internal/aiconnectors"
	"github.com/archdrift/internal/llm"
	"github.com/archdrift/internal/logging"
	"github.com/archdrift/internal/prompts"
	"github.com/archdrift/internal/retry"
	"github.com/archdrift/pkg/models"
)

const (
	selectionMaxTokens = 1024
	defaultMaxTokens   = 8192
)

// completer is the part of aiconnectors.Connector the provider needs
type completer interface {
	Call(ctx context.Context, input string, options ...llms.CallOption) (string, error)
}

// Config for the langchain provider
type Config struct {
	FastModel     string
	AdvancedModel string
	MaxTokens     int
	Retry         retry.RetryConfig
}

// LangchainProvider implements ai.Provider and ai.ModelPatcher over a langchaingo connector
type LangchainProvider struct {
	llm    completer
	config Config
	logger *logging.RunLogger
}

// New creates a provider over an existing completer
func New(llm completer, config Config) *LangchainProvider {
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}
	return &LangchainProvider{llm: llm, config: config}
}

// NewFromOptions builds the connector for options and wraps it
func NewFromOptions(ctx context.Context, options aiconnectors.ConnectorOptions, config Config) (*LangchainProvider, error) {
	connector, err := aiconnectors.NewConnector(ctx, options)
	if err != nil {
		return nil, err
	}
	return New(connector, config), nil
}

// WithLogger returns a copy of the provider that records prompts, responses and retries in logger
func (p *LangchainProvider) WithLogger(logger *logging.RunLogger) ai.Provider {
	cp := *p
	cp.logger = logger
	return &cp
}

func (p *LangchainProvider) FastModel() string     { return p.config.FastModel }
func (p *LangchainProvider) AdvancedModel() string { return p.config.AdvancedModel }

// Call sends prompt with retries on recoverable failures. Errors are *ai.Error.
func (p *LangchainProvider) Call(ctx context.Context, model, prompt string, phase ai.Phase, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	opts := []llms.CallOption{llms.WithMaxTokens(maxTokens)}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}

	p.logger.LogRequest(string(phase), model, prompt)

	var response string
	result := retry.RetryWithBackoffAndReason(ctx, p.config.Retry, func() (error, string) {
		out, err := p.llm.Call(ctx, prompt, opts...)
		if err != nil {
			classified := ai.Classify(err, phase, model)
			var aiErr *ai.Error
			errors.As(classified, &aiErr)
			return classified, string(aiErr.Kind)
		}
		if strings.TrimSpace(out) == "" {
			return ai.Malformed(phase, model, errors.New("empty completion")), string(ai.KindMalformedResponse)
		}
		response = out
		return nil, ""
	}, p.logger)

	if !result.Success {
		log.Debug().
			Str("phase", string(phase)).
			Str("model", model).
			Int("attempts", result.Attempts).
			Strs("reasons", result.RetryReasons).
			Msg("Completion failed")
		return "", ai.Classify(result.LastError, phase, model)
	}

	p.logger.LogResponse(string(phase), response)
	return response, nil
}

type selectionResponse struct {
	ComponentID string `json:"componentId"`
	Reason      string `json:"reason"`
}

// SelectComponent asks the fast model which candidate owns the changed files
func (p *LangchainProvider) SelectComponent(ctx context.Context, candidates []models.ArchitecturalComponent, files []string) (string, error) {
	prompt := prompts.BuildComponentSelectionPrompt(candidates, files)
	raw, err := p.Call(ctx, p.config.FastModel, prompt, ai.PhaseComponentSelection, selectionMaxTokens)
	if err != nil {
		return "", err
	}

	var resp selectionResponse
	if _, err := llm.DecodeResponse(raw, &resp, p.logger); err != nil {
		return "", ai.Malformed(ai.PhaseComponentSelection, p.config.FastModel, err)
	}
	id := strings.TrimSpace(resp.ComponentID)
	if id == "" {
		return "", ai.Malformed(ai.PhaseComponentSelection, p.config.FastModel, errors.New("no componentId in response"))
	}

	p.logger.Log("Selected component %s: %s", id, resp.Reason)
	return id, nil
}

// PatchModel asks the advanced model to rewrite content with newLines inserted
func (p *LangchainProvider) PatchModel(ctx context.Context, content string, newLines []string, format string) (string, error) {
	prompt := prompts.BuildModelPatchPrompt(content, newLines, format)
	raw, err := p.Call(ctx, p.config.AdvancedModel, prompt, ai.PhaseModelPatch, 0)
	if err != nil {
		return "", err
	}

	patched := strings.TrimSpace(llm.StripCodeFences(raw))
	if patched == "" {
		return "", ai.Malformed(ai.PhaseModelPatch, p.config.AdvancedModel, fmt.Errorf("completion contained no %s content", format))
	}
	if strings.HasSuffix(content, "\n") {
		patched += "\n"
	}
	return patched, nil
}
