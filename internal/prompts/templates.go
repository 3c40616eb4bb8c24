package prompts

// Role lines prefixed to every template
const (
	ArchitectRole = "You are a software architect who keeps an architecture model in sync with the code it describes."
)

// ComponentSelectionTemplate asks which of several components owns a change
const ComponentSelectionTemplate = ArchitectRole + `

Several components of the architecture model are linked to the same repository.
Decide which single component the changed files belong to.

## Candidate components
{{VAR:candidates|join="\n"}}

## Changed files
{{VAR:files|join="\n"|default="(no files)"}}

Respond with JSON only:
` + "```json" + `
{"componentId": "<one of the candidate ids>", "reason": "<one sentence>"}
` + "```"

// DependencyScanTemplate extracts code-level dependency changes from a diff
const DependencyScanTemplate = ArchitectRole + `

Read the change request below and list every dependency the code of component
"{{VAR:component_id}}" ({{VAR:component_name}}) gains, changes or loses on other
services, systems, libraries, queues or datastores. Ignore purely internal
refactoring, tests and formatting.

## Change request
Title: {{VAR:title}}
{{VAR:body|default="(no description)"}}

## Commits
{{VAR:commits|join="\n"|default="(no commits)"}}

## Diff
` + "```diff" + `
{{VAR:diff}}
` + "```" + `

Respond with JSON only:
` + "```json" + `
{
  "dependencies": [
    {"type": "added|modified|removed", "file": "path", "dependency": "target name", "description": "what the code does", "code": "short snippet"}
  ],
  "summary": "one paragraph"
}
` + "```"

// DriftAnalysisTemplate judges extracted dependencies against the declared model
const DriftAnalysisTemplate = ArchitectRole + `

Component "{{VAR:component_id}}" ({{VAR:component_name}}, {{VAR:component_type}}) is
declared in the architecture model with the relationships below. Compare the
dependency changes found in a change request against them.

## Declared dependencies of {{VAR:component_id}}
{{VAR:dependencies|join="\n"|default="(none)"}}

## Components that depend on {{VAR:component_id}}
{{VAR:dependents|join="\n"|default="(none)"}}

## Known component ids
{{VAR:known_components|join=", "}}

## Dependency changes in this change request
{{VAR:changes|join="\n"|default="(none)"}}

A violation is a new or modified dependency that the model does not declare,
or one that contradicts the direction of a declared relationship. Removed
dependencies that are still declared are warnings. Only propose
modelUpdates.relationships between known component ids, and only use a kind
that appears in the declared relationships.

Respond with JSON only:
` + "```json" + `
{
  "hasViolations": true,
  "violations": [
    {"severity": "high|medium|low", "description": "...", "file": "path", "line": 0, "commit": "sha", "suggestion": "..."}
  ],
  "improvements": ["..."],
  "warnings": ["..."],
  "summary": "one paragraph",
  "modelUpdates": {
    "add": ["..."],
    "remove": ["..."],
    "notes": "...",
    "relationships": [{"source": "id", "target": "id", "kind": "optional kind", "description": "short label"}]
  }
}
` + "```"

// ModelPatchTemplate asks for a full rewrite of a model file with new lines inserted
const ModelPatchTemplate = ArchitectRole + `

Insert the relationship lines below into this {{VAR:format}} model file. Place
them inside the model block next to related relationships, keep the file's
indentation style, and change nothing else. Every line must appear verbatim
(apart from indentation).

## Lines to insert
{{VAR:new_lines|join="\n"}}

## Current file
{{VAR:content}}

Respond with the complete updated file only, without explanations or code fences.`
