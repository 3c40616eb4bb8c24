package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/archdrift/pkg/models"
)

// DriftInput is everything the drift-analysis prompt shows about a component
type DriftInput struct {
	Component       models.ArchitecturalComponent
	Dependencies    map[string][]models.ModelRelationship // grouped by kind
	Dependents      []models.ModelRelationship
	KnownComponents []string
	Changes         []models.DependencyChange
}

// BuildComponentSelectionPrompt lists the candidates and the changed file names
func BuildComponentSelectionPrompt(candidates []models.ArchitecturalComponent, files []string) string {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		line := fmt.Sprintf("- %s: %s (%s)", c.ID, c.Name, c.Type)
		if c.Description != "" {
			line += " - " + c.Description
		}
		if len(c.Tags) > 0 {
			line += " #" + strings.Join(c.Tags, " #")
		}
		lines = append(lines, line)
	}
	return Render(ComponentSelectionTemplate, Vars{
		"candidates": lines,
		"files":      files,
	})
}

// BuildDependencyScanPrompt shows the full diff with the change request and commit metadata
func BuildDependencyScanPrompt(component models.ArchitecturalComponent, cr *models.ChangeRequestData, commits []models.Commit) string {
	commitLines := make([]string, 0, len(commits))
	for _, c := range commits {
		commitLines = append(commitLines, fmt.Sprintf("- %s %s (%s)", shortSHA(c.SHA), firstLine(c.Message), c.Author))
	}
	return Render(DependencyScanTemplate, Vars{
		"component_id":   component.ID,
		"component_name": component.Name,
		"title":          cr.Title,
		"body":           cr.Body,
		"commits":        commitLines,
		"diff":           cr.Diff,
	})
}

// BuildDriftAnalysisPrompt shows the declared relationships grouped by kind next to the extracted changes
func BuildDriftAnalysisPrompt(in DriftInput) string {
	kinds := make([]string, 0, len(in.Dependencies))
	for kind := range in.Dependencies {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var deps []string
	for _, kind := range kinds {
		deps = append(deps, fmt.Sprintf("%s:", kind))
		for _, rel := range in.Dependencies[kind] {
			deps = append(deps, "  - "+describeRelationship(rel.Target, rel.Title))
		}
	}

	dependents := make([]string, 0, len(in.Dependents))
	for _, rel := range in.Dependents {
		dependents = append(dependents, "- "+describeRelationship(rel.Source, rel.Title))
	}

	changes := make([]string, 0, len(in.Changes))
	for _, ch := range in.Changes {
		line := fmt.Sprintf("- [%s] %s", ch.Type, ch.Dependency)
		if ch.File != "" {
			line += " in " + ch.File
		}
		if ch.Description != "" {
			line += ": " + ch.Description
		}
		changes = append(changes, line)
	}

	return Render(DriftAnalysisTemplate, Vars{
		"component_id":     in.Component.ID,
		"component_name":   in.Component.Name,
		"component_type":   in.Component.Type,
		"dependencies":     deps,
		"dependents":       dependents,
		"known_components": in.KnownComponents,
		"changes":          changes,
	})
}

// BuildModelPatchPrompt asks for the full file with newLines inserted
func BuildModelPatchPrompt(content string, newLines []string, format string) string {
	return Render(ModelPatchTemplate, Vars{
		"format":    format,
		"new_lines": newLines,
		"content":   content,
	})
}

func describeRelationship(id, title string) string {
	if title == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", id, title)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
