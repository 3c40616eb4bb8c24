package models

// Platform identifies the hosting service of a change request
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// PlatformID locates a repository on its hosting platform.
// For GitLab, Owner holds the full namespace path (group/subgroup).
type PlatformID struct {
	Owner string `json:"owner" yaml:"owner"`
	Repo  string `json:"repo" yaml:"repo"`
}

// ChangeRequestRef is the immutable identity of a pull/merge request, produced once by parsing a URL
type ChangeRequestRef struct {
	Number        int        `json:"number" yaml:"number"`
	URL           string     `json:"url" yaml:"url"`
	RepositoryURL string     `json:"repositoryUrl" yaml:"repositoryUrl"`
	PlatformID    PlatformID `json:"platformId" yaml:"platformId"`
	Platform      Platform   `json:"platform" yaml:"platform"`
}

// BranchRef is one side of a change request
type BranchRef struct {
	Ref string `json:"ref" yaml:"ref"`
	SHA string `json:"sha" yaml:"sha"`
}

// ChangedFile is a single file touched by a change request
type ChangedFile struct {
	Filename  string `json:"filename" yaml:"filename"`
	Status    string `json:"status" yaml:"status"`
	Additions int    `json:"additions" yaml:"additions"`
	Deletions int    `json:"deletions" yaml:"deletions"`
	Patch     string `json:"patch,omitempty" yaml:"patch,omitempty"`
}

// ChangeStats summarizes the size of a change request
type ChangeStats struct {
	Additions int `json:"additions" yaml:"additions"`
	Deletions int `json:"deletions" yaml:"deletions"`
	Files     int `json:"files" yaml:"files"`
}

// ChangeRequestData is fetched once per analysis run; Files may be truncated
type ChangeRequestData struct {
	Title            string        `json:"title" yaml:"title"`
	Body             string        `json:"body" yaml:"body"`
	Author           string        `json:"author" yaml:"author"`
	Base             BranchRef     `json:"base" yaml:"base"`
	Head             BranchRef     `json:"head" yaml:"head"`
	Files            []ChangedFile `json:"files" yaml:"files"`
	Diff             string        `json:"-" yaml:"-"`
	Stats            ChangeStats   `json:"stats" yaml:"stats"`
	WasTruncated     bool          `json:"wasTruncated" yaml:"wasTruncated"`
	TruncationReason string        `json:"truncationReason,omitempty" yaml:"truncationReason,omitempty"`
}

// Commit is the metadata of one commit in a change request
type Commit struct {
	SHA     string `json:"sha" yaml:"sha"`
	Message string `json:"message" yaml:"message"`
	Author  string `json:"author" yaml:"author"`
}

// ArchitecturalComponent is a node in the architecture model; ID is unique within a loaded model
type ArchitecturalComponent struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Repository  string   `json:"repository,omitempty" yaml:"repository,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Parent      string   `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// ModelRelationship is an existing declared edge
type ModelRelationship struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Kind   string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
}

// StructuredRelationship is a candidate edge proposed by drift analysis, not yet validated against the model
type StructuredRelationship struct {
	Source      string `json:"source" yaml:"source"`
	Target      string `json:"target" yaml:"target"`
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Description string `json:"description" yaml:"description"`
}

// SkippedRelationship records why a candidate relationship was not applied
type SkippedRelationship struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Reason string `json:"reason" yaml:"reason"`
}

// PatchResult is a validated edit of one model file. A nil *PatchResult means no patch was applicable.
type PatchResult struct {
	FilePath      string                `json:"filePath" yaml:"filePath"`
	Content       string                `json:"-" yaml:"-"`
	InsertedLines []string              `json:"insertedLines" yaml:"insertedLines"`
	Skipped       []SkippedRelationship `json:"skipped" yaml:"skipped"`
	Generator     string                `json:"generator,omitempty" yaml:"generator,omitempty"`
}

// DslValidationResult reports whether candidate model content still parses.
// Skipped means the validator could not run and the content is provisionally accepted.
type DslValidationResult struct {
	Valid   bool     `json:"valid" yaml:"valid"`
	Errors  []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Skipped bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Accepted reports whether the content may be used
func (r DslValidationResult) Accepted() bool {
	return r.Valid || r.Skipped
}

// DependencyChangeType classifies an extracted dependency change
type DependencyChangeType string

const (
	DependencyAdded    DependencyChangeType = "added"
	DependencyModified DependencyChangeType = "modified"
	DependencyRemoved  DependencyChangeType = "removed"
)

// DependencyChange is one code-level dependency change found in the diff
type DependencyChange struct {
	Type        DependencyChangeType `json:"type" yaml:"type"`
	File        string               `json:"file" yaml:"file"`
	Dependency  string               `json:"dependency" yaml:"dependency"`
	Description string               `json:"description" yaml:"description"`
	Code        string               `json:"code,omitempty" yaml:"code,omitempty"`
}

// DependencyExtraction is the parsed output of the dependency-scan phase
type DependencyExtraction struct {
	Dependencies []DependencyChange `json:"dependencies" yaml:"dependencies"`
	Summary      string             `json:"summary" yaml:"summary"`
}

// Severity of a drift violation
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Violation is a code dependency that contradicts the declared architecture
type Violation struct {
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
	File        string   `json:"file,omitempty" yaml:"file,omitempty"`
	Line        int      `json:"line,omitempty" yaml:"line,omitempty"`
	Commit      string   `json:"commit,omitempty" yaml:"commit,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// ModelUpdates are model changes suggested by drift analysis
type ModelUpdates struct {
	Add           []string                 `json:"add,omitempty" yaml:"add,omitempty"`
	Remove        []string                 `json:"remove,omitempty" yaml:"remove,omitempty"`
	Notes         string                   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Relationships []StructuredRelationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// ModelChangeRequest describes the change request opened against the model repository
type ModelChangeRequest struct {
	URL    string `json:"url" yaml:"url"`
	Number int    `json:"number" yaml:"number"`
	Action string `json:"action" yaml:"action"`
}

// PublicationResult records the side effects of publishing an analysis
type PublicationResult struct {
	CommentPosted      bool                `json:"commentPosted" yaml:"commentPosted"`
	CommentDeleted     bool                `json:"commentDeleted" yaml:"commentDeleted"`
	ModelChangeRequest *ModelChangeRequest `json:"modelChangeRequest,omitempty" yaml:"modelChangeRequest,omitempty"`
	ModelRequestClosed bool                `json:"modelRequestClosed,omitempty" yaml:"modelRequestClosed,omitempty"`
	OutputsWritten     bool                `json:"outputsWritten" yaml:"outputsWritten"`
}

// DriftAnalysisResult is the outcome of one pipeline run.
// An empty ComponentID means the model has no knowledge of the repository.
type DriftAnalysisResult struct {
	RunID            string                `json:"runId" yaml:"runId"`
	ComponentID      string                `json:"componentId" yaml:"componentId"`
	ComponentName    string                `json:"componentName,omitempty" yaml:"componentName,omitempty"`
	ChangeRequest    ChangeRequestRef      `json:"changeRequest" yaml:"changeRequest"`
	HasViolations    bool                  `json:"hasViolations" yaml:"hasViolations"`
	Violations       []Violation           `json:"violations" yaml:"violations"`
	Improvements     []string              `json:"improvements" yaml:"improvements"`
	Warnings         []string              `json:"warnings" yaml:"warnings"`
	Summary          string                `json:"summary" yaml:"summary"`
	ModelUpdates     *ModelUpdates         `json:"modelUpdates,omitempty" yaml:"modelUpdates,omitempty"`
	Dependencies     *DependencyExtraction `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	AnalyzedFiles    int                   `json:"analyzedFiles" yaml:"analyzedFiles"`
	ExcludedFiles    int                   `json:"excludedFiles" yaml:"excludedFiles"`
	WasTruncated     bool                  `json:"wasTruncated" yaml:"wasTruncated"`
	TruncationReason string                `json:"truncationReason,omitempty" yaml:"truncationReason,omitempty"`
	Patch            *PatchResult          `json:"patch,omitempty" yaml:"patch,omitempty"`
	Publication      *PublicationResult    `json:"publication,omitempty" yaml:"publication,omitempty"`
}
