package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/archdrift/pkg/models"
)

// Reader fetches change request data from a hosting platform
type Reader interface {
	ParseURL(rawURL string) (models.ChangeRequestRef, error)
	FetchChangeRequest(ctx context.Context, ref models.ChangeRequestRef) (*models.ChangeRequestData, error)
	FetchCommits(ctx context.Context, ref models.ChangeRequestRef) ([]models.Commit, error)
}

// Writer publishes results back to a hosting platform
type Writer interface {
	// CreateOrUpdateChangeRequest commits the file changes to spec.BranchName and
	// opens a change request for it, or updates the one already open.
	CreateOrUpdateChangeRequest(ctx context.Context, repo RepoRef, spec ChangeRequestSpec) (*models.ModelChangeRequest, error)

	// CommentOnChangeRequest posts body, or edits the existing comment carrying opts.UpsertMarker
	CommentOnChangeRequest(ctx context.Context, ref models.ChangeRequestRef, body string, opts CommentOptions) error

	// DeleteComment removes the comment carrying marker; false when there was none
	DeleteComment(ctx context.Context, ref models.ChangeRequestRef, marker string) (bool, error)

	// CloseChangeRequest closes open change requests from branchName and deletes the branch; false when none was open
	CloseChangeRequest(ctx context.Context, repo RepoRef, branchName string) (bool, error)
}

// Platform is a complete change-request platform client
type Platform interface {
	Reader
	Writer
	Name() models.Platform
}

// RepoRef identifies a repository that is written to, such as the model repository
type RepoRef struct {
	Platform models.Platform
	Owner    string
	Repo     string
	URL      string
}

// FullName is owner/repo, the GitLab project path
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// FileChange is the full new content of one file
type FileChange struct {
	Path    string
	Content string
}

// ChangeRequestSpec describes a change request to open or update
type ChangeRequestSpec struct {
	BranchName  string
	Title       string
	Body        string
	FileChanges []FileChange
	BaseBranch  string // empty means the repository default branch
	Draft       bool
}

// CommentOptions controls comment publication
type CommentOptions struct {
	UpsertMarker string
}

// Factory resolves the platform client for a URL
type Factory interface {
	ForURL(rawURL string) (Platform, error)
	ForPlatform(p models.Platform) (Platform, error)
}

// StandardFactory holds the configured platform clients
type StandardFactory struct {
	mu        sync.RWMutex
	platforms map[models.Platform]Platform
	detector  *Detector
}

// NewStandardFactory creates an empty factory using detector for URL classification
func NewStandardFactory(detector *Detector) *StandardFactory {
	if detector == nil {
		detector = NewDetector()
	}
	return &StandardFactory{
		platforms: make(map[models.Platform]Platform),
		detector:  detector,
	}
}

// Register adds a platform client
func (f *StandardFactory) Register(p Platform) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.platforms[p.Name()] = p
}

// ForPlatform returns the client registered for p
func (f *StandardFactory) ForPlatform(p models.Platform) (Platform, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	platform, ok := f.platforms[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlatformNotConfigured, p)
	}
	return platform, nil
}

// ForURL detects the platform of rawURL and returns its client
func (f *StandardFactory) ForURL(rawURL string) (Platform, error) {
	p, err := f.detector.Detect(rawURL)
	if err != nil {
		return nil, err
	}
	return f.ForPlatform(p)
}
