package drift

import (
	"errors"
	"fmt"
)

// ErrUnknownComponent is returned when component selection names an id that is not a candidate
var ErrUnknownComponent = errors.New("unknown component")

// Stage names one step of an analysis run
type Stage string

const (
	StageParseURL           Stage = "parse-url"
	StageResolveModel       Stage = "resolve-model"
	StageLoadModel          Stage = "load-model"
	StageResolveComponent   Stage = "resolve-component"
	StageFetchChangeRequest Stage = "fetch-change-request"
	StageExtractDeps        Stage = "extract-dependencies"
	StageAnalyzeDrift       Stage = "analyze-drift"
	StagePatchModel         Stage = "patch-model"
	StagePublish            Stage = "publish"
)

// StageError is a hard failure of one stage, with enough context to diagnose it
type StageError struct {
	Stage       Stage
	ComponentID string
	Repository  string
	Err         error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Stage)
	if e.ComponentID != "" {
		msg += fmt.Sprintf(" for component %s", e.ComponentID)
	}
	if e.Repository != "" {
		msg += fmt.Sprintf(" (repository %s)", e.Repository)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
