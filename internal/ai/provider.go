package ai

import (
	"context"

	"github.com/archdrift/pkg/models"
)

// Phase names one kind of completion request in a pipeline run
type Phase string

const (
	PhaseComponentSelection Phase = "component-selection"
	PhaseDependencyScan     Phase = "dependency-scan"
	PhaseDriftAnalysis      Phase = "drift-analysis"
	PhaseModelPatch         Phase = "model-patch"
)

// Provider is the completion capability used by the pipeline
type Provider interface {
	// Call sends one prompt and returns the raw completion text
	Call(ctx context.Context, model, prompt string, phase Phase, maxTokens int) (string, error)

	// SelectComponent picks exactly one of candidates as the owner of the changed files
	SelectComponent(ctx context.Context, candidates []models.ArchitecturalComponent, files []string) (string, error)

	// FastModel is used for extraction and selection; AdvancedModel for judgement
	FastModel() string
	AdvancedModel() string
}

// ModelPatcher is implemented by providers that can rewrite a model file.
// It returns the complete new file content.
type ModelPatcher interface {
	PatchModel(ctx context.Context, content string, newLines []string, format string) (string, error)
}
