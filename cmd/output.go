package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/archdrift/pkg/models"
)

// OutputFormat selects how the analyze command prints its result
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// ParseOutputFormat validates an --output value
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON, OutputYAML:
		return f, nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unsupported output format: %s (expected text, json or yaml)", s)
}

var (
	colorOK      = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7A89")

	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(colorOK)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// WriteResult prints result to w in the requested format
func WriteResult(w io.Writer, result *models.DriftAnalysisResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := io.WriteString(w, RenderText(result)+"\n")
	return err
}

// RenderText is the human-readable summary of an analysis
func RenderText(result *models.DriftAnalysisResult) string {
	var b strings.Builder

	if result.ComponentID == "" {
		b.WriteString(titleStyle.Render("Architecture drift") + "\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("No component in the model references %s", result.ChangeRequest.RepositoryURL)))
		return boxStyle.Render(b.String())
	}

	component := result.ComponentID
	if result.ComponentName != "" && result.ComponentName != result.ComponentID {
		component = fmt.Sprintf("%s (%s)", result.ComponentID, result.ComponentName)
	}
	b.WriteString(titleStyle.Render("Architecture drift: "+component) + "\n")

	if result.HasViolations {
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ %d violation(s)", len(result.Violations))) + "\n")
	} else {
		b.WriteString(okStyle.Render("✓ No violations") + "\n")
	}
	if result.Summary != "" {
		b.WriteString("\n" + result.Summary + "\n")
	}

	if len(result.Violations) > 0 {
		b.WriteString("\n" + titleStyle.Render("Violations") + "\n")
		for _, v := range result.Violations {
			fmt.Fprintf(&b, "  %s %s", severityStyle(v.Severity).Render("["+string(v.Severity)+"]"), v.Description)
			if loc := location(v); loc != "" {
				b.WriteString(mutedStyle.Render(" " + loc))
			}
			b.WriteString("\n")
			if v.Suggestion != "" {
				b.WriteString(mutedStyle.Render("    → "+v.Suggestion) + "\n")
			}
		}
	}

	writeList(&b, "Warnings", result.Warnings, warningStyle.Render("⚠"))
	writeList(&b, "Improvements", result.Improvements, okStyle.Render("•"))

	if result.Patch != nil {
		b.WriteString("\n" + titleStyle.Render("Model patch") + mutedStyle.Render(" "+result.Patch.FilePath) + "\n")
		for _, line := range result.Patch.InsertedLines {
			b.WriteString(okStyle.Render("  + "+line) + "\n")
		}
		for _, s := range result.Patch.Skipped {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("  - %s -> %s: %s", s.Source, s.Target, s.Reason)) + "\n")
		}
	}

	if pub := result.Publication; pub != nil && pub.ModelChangeRequest != nil {
		fmt.Fprintf(&b, "\nModel change request %s: %s\n", pub.ModelChangeRequest.Action, pub.ModelChangeRequest.URL)
	}

	if result.WasTruncated {
		b.WriteString("\n" + warningStyle.Render(result.TruncationReason) + "\n")
	}
	b.WriteString("\n" + mutedStyle.Render(fmt.Sprintf("%d files analyzed, %d excluded · run %s", result.AnalyzedFiles, result.ExcludedFiles, result.RunID)))

	return boxStyle.Render(b.String())
}

func writeList(b *strings.Builder, title string, items []string, bullet string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + titleStyle.Render(title) + "\n")
	for _, item := range items {
		fmt.Fprintf(b, "  %s %s\n", bullet, item)
	}
}

func severityStyle(s models.Severity) lipgloss.Style {
	switch s {
	case models.SeverityHigh:
		return errorStyle
	case models.SeverityMedium:
		return warningStyle
	}
	return mutedStyle
}

func location(v models.Violation) string {
	if v.File == "" {
		return ""
	}
	if v.Line > 0 {
		return fmt.Sprintf("%s:%d", v.File, v.Line)
	}
	return v.File
}
