package publish

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/archdrift/internal/logging"
	"github.com/archdrift/internal/providers"
	"github.com/archdrift/pkg/models"
)

// Marker identifies the analysis comment so later runs edit it instead of posting again
const Marker = "<!-- archdrift-analysis -->"

// Options selects which side effects Publish performs
type Options struct {
	Comment    bool
	OpenPR     bool
	Draft      bool
	BaseBranch string
	// CIOutput is the file receiving key=value outputs; empty falls back to $GITHUB_OUTPUT
	CIOutput string
	// Format names the model DSL, used for the code block in the model change request body
	Format string
}

// Publisher writes an analysis back to the hosting platforms
type Publisher struct {
	changeRequests providers.Writer
	model          providers.Writer
	modelRepo      providers.RepoRef
	opts           Options
}

// New returns a publisher commenting through crWriter
func New(crWriter providers.Writer, opts Options) *Publisher {
	return &Publisher{changeRequests: crWriter, opts: opts}
}

// WithModelRepository sets where model change requests are opened
func (p *Publisher) WithModelRepository(w providers.Writer, repo providers.RepoRef) *Publisher {
	p.model = w
	p.modelRepo = repo
	return p
}

// Publish opens or closes the model change request, upserts or deletes the analysis
// comment and writes CI outputs, in that order. logger may be nil.
func (p *Publisher) Publish(ctx context.Context, result *models.DriftAnalysisResult, logger *logging.RunLogger) (*models.PublicationResult, error) {
	pub := &models.PublicationResult{}
	ref := result.ChangeRequest

	// Analyze never publishes a result without a component, but direct callers can.
	// Such a result only gets CI outputs.
	if result.ComponentID != "" && p.opts.OpenPR && p.model != nil {
		if err := p.publishModelChange(ctx, result, pub, logger); err != nil {
			return pub, err
		}
	}

	if result.ComponentID != "" && p.opts.Comment && p.changeRequests != nil {
		if needsComment(result, pub) {
			body := RenderComment(result, pub.ModelChangeRequest)
			if err := p.changeRequests.CommentOnChangeRequest(ctx, ref, body, providers.CommentOptions{UpsertMarker: Marker}); err != nil {
				return pub, fmt.Errorf("failed to comment on %s: %w", ref.URL, err)
			}
			pub.CommentPosted = true
			logger.Log("Analysis comment published on %s", ref.URL)
		} else {
			deleted, err := p.changeRequests.DeleteComment(ctx, ref, Marker)
			if err != nil {
				return pub, fmt.Errorf("failed to delete stale comment on %s: %w", ref.URL, err)
			}
			pub.CommentDeleted = deleted
			if deleted {
				logger.Log("Removed stale analysis comment from %s", ref.URL)
			}
		}
	}

	written, err := WriteOutputs(p.opts.CIOutput, result, pub)
	if err != nil {
		return pub, err
	}
	pub.OutputsWritten = written

	return pub, nil
}

func (p *Publisher) publishModelChange(ctx context.Context, result *models.DriftAnalysisResult, pub *models.PublicationResult, logger *logging.RunLogger) error {
	branch := BranchName(result.ChangeRequest)

	if result.Patch == nil {
		closed, err := p.model.CloseChangeRequest(ctx, p.modelRepo, branch)
		if err != nil {
			return fmt.Errorf("failed to close model change request %s: %w", branch, err)
		}
		pub.ModelRequestClosed = closed
		if closed {
			logger.Log("Closed model change request on branch %s", branch)
		}
		return nil
	}

	spec := providers.ChangeRequestSpec{
		BranchName: branch,
		Title:      ModelRequestTitle(result),
		Body:       RenderModelRequestBody(result, p.opts.Format),
		FileChanges: []providers.FileChange{{
			Path:    result.Patch.FilePath,
			Content: result.Patch.Content,
		}},
		BaseBranch: p.opts.BaseBranch,
		Draft:      p.opts.Draft,
	}

	mcr, err := p.model.CreateOrUpdateChangeRequest(ctx, p.modelRepo, spec)
	if err != nil {
		return fmt.Errorf("failed to open model change request in %s: %w", p.modelRepo.FullName(), err)
	}
	pub.ModelChangeRequest = mcr
	log.Info().Str("url", mcr.URL).Str("action", mcr.Action).Msg("Model change request published")
	logger.Log("Model change request %s: %s", mcr.Action, mcr.URL)
	return nil
}

// needsComment is false for a clean run, whose stale comment is deleted instead
func needsComment(result *models.DriftAnalysisResult, pub *models.PublicationResult) bool {
	return result.HasViolations || len(result.Violations) > 0 || len(result.Warnings) > 0 || pub.ModelChangeRequest != nil
}

var unsafeBranchChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// BranchName is the model branch for one change request: archdrift/<repo>/pr-<number>
func BranchName(ref models.ChangeRequestRef) string {
	repo := unsafeBranchChars.ReplaceAllString(strings.ToLower(ref.PlatformID.Repo), "-")
	repo = strings.Trim(repo, "-.")
	if repo == "" {
		repo = "repo"
	}
	return fmt.Sprintf("archdrift/%s/pr-%d", repo, ref.Number)
}

// ModelRequestTitle names the model change request after the analyzed change request
func ModelRequestTitle(result *models.DriftAnalysisResult) string {
	ref := result.ChangeRequest
	return fmt.Sprintf("Update architecture model for %s/%s#%d", ref.PlatformID.Owner, ref.PlatformID.Repo, ref.Number)
}
