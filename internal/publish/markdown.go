package publish

import (
	"fmt"
	"strings"

	"github.com/archdrift/pkg/models"
)

// RenderComment formats the analysis comment, starting with Marker
func RenderComment(result *models.DriftAnalysisResult, mcr *models.ModelChangeRequest) string {
	var sb strings.Builder

	sb.WriteString(Marker + "\n")
	if n := len(result.Violations); n > 0 {
		fmt.Fprintf(&sb, "## Architecture drift: %d %s found\n\n", n, plural(n, "violation", "violations"))
	} else {
		sb.WriteString("## Architecture drift: no violations\n\n")
	}

	name := result.ComponentID
	if result.ComponentName != "" && result.ComponentName != result.ComponentID {
		name = fmt.Sprintf("%s (%s)", result.ComponentID, result.ComponentName)
	}
	fmt.Fprintf(&sb, "**Component:** `%s`\n\n", name)

	if s := strings.TrimSpace(result.Summary); s != "" {
		sb.WriteString(s + "\n\n")
	}

	if len(result.Violations) > 0 {
		sb.WriteString("### Violations\n\n")
		sb.WriteString("| Severity | Description | Location | Suggestion |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, v := range result.Violations {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", v.Severity, cell(v.Description), cell(location(v)), cell(v.Suggestion))
		}
		sb.WriteString("\n")
	}

	writeList(&sb, "Warnings", result.Warnings)
	writeList(&sb, "Improvements", result.Improvements)

	if result.ModelUpdates != nil && len(result.ModelUpdates.Relationships) > 0 {
		sb.WriteString("### Proposed model updates\n\n")
		for _, r := range result.ModelUpdates.Relationships {
			line := fmt.Sprintf("- `%s -> %s`", r.Source, r.Target)
			if r.Description != "" {
				line += ": " + oneLine(r.Description)
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	if mcr != nil {
		fmt.Fprintf(&sb, "Model update %s: %s\n\n", mcr.Action, mcr.URL)
	}

	if result.WasTruncated && result.TruncationReason != "" {
		fmt.Fprintf(&sb, "> %s\n\n", result.TruncationReason)
	}

	fmt.Fprintf(&sb, "<sub>Analyzed %d %s", result.AnalyzedFiles, plural(result.AnalyzedFiles, "file", "files"))
	if result.ExcludedFiles > 0 {
		fmt.Fprintf(&sb, ", %d excluded by skip patterns", result.ExcludedFiles)
	}
	if result.RunID != "" {
		fmt.Fprintf(&sb, ". Run `%s`", result.RunID)
	}
	sb.WriteString(".</sub>\n")

	return sb.String()
}

// RenderModelRequestBody describes the model patch for reviewers of the model repository
func RenderModelRequestBody(result *models.DriftAnalysisResult, format string) string {
	var sb strings.Builder
	ref := result.ChangeRequest

	fmt.Fprintf(&sb, "Relationships discovered while analyzing %s", ref.URL)
	if result.ComponentID != "" {
		fmt.Fprintf(&sb, " (component `%s`)", result.ComponentID)
	}
	sb.WriteString(".\n\n")

	if result.Patch == nil {
		return sb.String()
	}

	fmt.Fprintf(&sb, "Changes to `%s`:\n\n```%s\n", result.Patch.FilePath, format)
	for _, l := range result.Patch.InsertedLines {
		sb.WriteString(l + "\n")
	}
	sb.WriteString("```\n")

	if len(result.Patch.Skipped) > 0 {
		sb.WriteString("\nNot applied:\n\n")
		for _, s := range result.Patch.Skipped {
			fmt.Fprintf(&sb, "- `%s -> %s`: %s\n", s.Source, s.Target, s.Reason)
		}
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "### %s\n\n", title)
	for _, item := range items {
		sb.WriteString("- " + oneLine(item) + "\n")
	}
	sb.WriteString("\n")
}

func location(v models.Violation) string {
	loc := v.File
	if loc != "" && v.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, v.Line)
	}
	if v.Commit != "" {
		c := v.Commit
		if len(c) > 8 {
			c = c[:8]
		}
		if loc != "" {
			loc += " "
		}
		loc += "(" + c + ")"
	}
	return loc
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
