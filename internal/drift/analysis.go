package drift

import (
	"context"
	"strings"

	"github.com/archdrift/internal/ai"
	"github.com/archdrift/internal/llm"
	"github.com/archdrift/internal/prompts"
	"github.com/archdrift/pkg/models"
)

// analysisResponse is the JSON shape requested by the drift-analysis prompt
type analysisResponse struct {
	HasViolations bool                 `json:"hasViolations"`
	Violations    []models.Violation   `json:"violations"`
	Improvements  []string             `json:"improvements"`
	Warnings      []string             `json:"warnings"`
	Summary       string               `json:"summary"`
	ModelUpdates  *models.ModelUpdates `json:"modelUpdates"`
}

// extractDependencies asks the fast model for the dependency changes in the diff
func (s *Service) extractDependencies(ctx context.Context, r *run) error {
	model := r.provider.FastModel()
	prompt := prompts.BuildDependencyScanPrompt(r.component, r.data, r.commits)

	raw, err := r.provider.Call(ctx, model, prompt, ai.PhaseDependencyScan, s.config.MaxTokens)
	if err != nil {
		return err
	}

	var extraction models.DependencyExtraction
	if _, err := llm.DecodeResponse(raw, &extraction, r.logger); err != nil {
		return ai.Malformed(ai.PhaseDependencyScan, model, err)
	}
	if extraction.Dependencies == nil {
		extraction.Dependencies = []models.DependencyChange{}
	}
	r.result.Dependencies = &extraction
	r.logger.Log("Extracted %d dependency changes", len(extraction.Dependencies))
	return nil
}

// analyzeDrift asks the advanced model to compare the changes with the declared relationships
func (s *Service) analyzeDrift(ctx context.Context, r *run) error {
	model := r.provider.AdvancedModel()
	prompt := prompts.BuildDriftAnalysisPrompt(prompts.DriftInput{
		Component:       r.component,
		Dependencies:    dependencyGroups(r.model.GetComponentDependencies(r.component.ID)),
		Dependents:      r.model.GetComponentDependents(r.component.ID),
		KnownComponents: componentIDs(r.model),
		Changes:         r.result.Dependencies.Dependencies,
	})

	raw, err := r.provider.Call(ctx, model, prompt, ai.PhaseDriftAnalysis, s.config.MaxTokens)
	if err != nil {
		return err
	}

	var resp analysisResponse
	if _, err := llm.DecodeResponse(raw, &resp, r.logger); err != nil {
		return ai.Malformed(ai.PhaseDriftAnalysis, model, err)
	}

	res := r.result
	if resp.Violations != nil {
		res.Violations = resp.Violations
	}
	if resp.Improvements != nil {
		res.Improvements = resp.Improvements
	}
	if resp.Warnings != nil {
		res.Warnings = resp.Warnings
	}
	res.HasViolations = resp.HasViolations || len(res.Violations) > 0
	res.Summary = strings.TrimSpace(resp.Summary)
	res.ModelUpdates = resp.ModelUpdates

	r.logger.Log("Drift analysis: %d violations, %d warnings", len(res.Violations), len(res.Warnings))
	return nil
}
