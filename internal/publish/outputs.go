package publish

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/archdrift/pkg/models"
)

// Output names written for CI
const (
	OutputHasViolations  = "has-violations"
	OutputViolationCount = "violation-count"
	OutputComponentID    = "component-id"
	OutputModelPRURL     = "model-pr-url"
	OutputPatchedFile    = "patched-file"
)

// Outputs returns the CI outputs of a run in a fixed order
func Outputs(result *models.DriftAnalysisResult, pub *models.PublicationResult) [][2]string {
	prURL := ""
	if pub != nil && pub.ModelChangeRequest != nil {
		prURL = pub.ModelChangeRequest.URL
	}
	patched := ""
	if result.Patch != nil {
		patched = result.Patch.FilePath
	}
	return [][2]string{
		{OutputHasViolations, strconv.FormatBool(result.HasViolations)},
		{OutputViolationCount, strconv.Itoa(len(result.Violations))},
		{OutputComponentID, result.ComponentID},
		{OutputModelPRURL, prURL},
		{OutputPatchedFile, patched},
	}
}

// WriteOutputs appends key=value lines to path, or to $GITHUB_OUTPUT when path is empty.
// It reports false when there is no destination.
func WriteOutputs(path string, result *models.DriftAnalysisResult, pub *models.PublicationResult) (bool, error) {
	if path == "" {
		path = os.Getenv("GITHUB_OUTPUT")
	}
	if path == "" {
		return false, nil
	}

	var sb strings.Builder
	for _, kv := range Outputs(result, pub) {
		fmt.Fprintf(&sb, "%s=%s\n", kv[0], strings.ReplaceAll(kv[1], "\n", " "))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open CI output file: %w", err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write CI outputs: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to write CI outputs: %w", err)
	}
	return true, nil
}
