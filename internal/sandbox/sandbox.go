package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
	"github.com/rs/zerolog/log"

	"github.com/archdrift/internal/architecture"
	"github.com/archdrift/pkg/models"
)

// ErrToolUnavailable is returned by a Checker whose validator cannot be started
var ErrToolUnavailable = errors.New("validation tool unavailable")

// Checker parses a workspace copy in which file has been replaced.
// A returned error means the check could not run at all.
type Checker interface {
	Check(ctx context.Context, workspace, file string) (models.DslValidationResult, error)
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context, workspace, file string) (models.DslValidationResult, error)

func (f CheckerFunc) Check(ctx context.Context, workspace, file string) (models.DslValidationResult, error) {
	return f(ctx, workspace, file)
}

// Sandbox validates candidate model content in disposable copies of the model workspace
type Sandbox struct {
	// TempDir is the parent of the per-call directories; empty uses os.TempDir
	TempDir string
}

// New returns a sandbox using the system temporary directory
func New() *Sandbox {
	return &Sandbox{}
}

// Validate copies workspace, overwrites targetFile in the copy with content and runs checker.
// Relative paths are taken from the current directory, as returned by architecture.ListFiles.
// The copy is removed on every return path. A checker that errors or panics yields Skipped.
func (s *Sandbox) Validate(ctx context.Context, workspace, targetFile, content string, checker Checker) (result models.DslValidationResult) {
	workspace, rel, err := relativeTarget(workspace, targetFile)
	if err != nil {
		return models.DslValidationResult{Errors: []string{err.Error()}}
	}

	dir, err := os.MkdirTemp(s.TempDir, "archdrift-sandbox-")
	if err != nil {
		log.Warn().Err(err).Msg("Sandbox directory could not be created, skipping validation")
		return models.DslValidationResult{Skipped: true}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("Failed to remove sandbox directory")
		}
	}()

	if err := ctx.Err(); err != nil {
		return models.DslValidationResult{Skipped: true, Errors: []string{err.Error()}}
	}

	opts := copy.Options{
		Skip: func(info os.FileInfo, src, dest string) (bool, error) {
			return info.IsDir() && src != workspace && architecture.IsSkippedDir(info.Name()), nil
		},
	}
	if err := copy.Copy(workspace, dir, opts); err != nil {
		log.Warn().Err(err).Str("workspace", workspace).Msg("Workspace copy failed, skipping validation")
		return models.DslValidationResult{Skipped: true}
	}

	target := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		log.Warn().Err(err).Msg("Sandbox target directory could not be created, skipping validation")
		return models.DslValidationResult{Skipped: true}
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		log.Warn().Err(err).Msg("Sandbox target could not be written, skipping validation")
		return models.DslValidationResult{Skipped: true}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Validator panicked, skipping validation")
			result = models.DslValidationResult{Skipped: true}
		}
	}()

	result, err = checker.Check(ctx, dir, target)
	if err != nil {
		log.Debug().Err(err).Str("file", rel).Msg("Validator could not run, accepting optimistically")
		return models.DslValidationResult{Skipped: true, Errors: []string{err.Error()}}
	}

	log.Debug().Str("file", rel).Bool("valid", result.Valid).Int("errors", len(result.Errors)).Msg("Sandbox validation finished")
	return result
}

// relativeTarget returns the absolute workspace and the path of targetFile inside it,
// rejecting paths outside the workspace
func relativeTarget(workspace, targetFile string) (string, string, error) {
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve workspace %s: %w", workspace, err)
	}
	absTarget, err := filepath.Abs(targetFile)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve target file %s: %w", targetFile, err)
	}
	rel, err := filepath.Rel(absWorkspace, absTarget)
	if err != nil {
		return "", "", fmt.Errorf("target file %s is not inside workspace %s: %w", targetFile, workspace, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("target file %s is not inside workspace %s", targetFile, workspace)
	}
	return absWorkspace, rel, nil
}
