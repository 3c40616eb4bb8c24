package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/archdrift/internal/diff"
	"github.com/archdrift/internal/providers"
	"github.com/archdrift/internal/retry"
	"github.com/archdrift/pkg/models"
)

var _ providers.Platform = (*GitLabProvider)(nil)

// GitLabConfig contains configuration for the GitLab provider
type GitLabConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`

	Retry      retry.RetryConfig `koanf:"-"`
	HTTPClient *http.Client      `koanf:"-"`
	Limiter    *rate.Limiter     `koanf:"-"`
}

// GitLabProvider reads merge requests and publishes notes and model merge requests
type GitLabProvider struct {
	client *gitlab.Client
	config GitLabConfig
	retry  retry.RetryConfig
}

// New creates a new GitLabProvider
func New(config GitLabConfig) (*GitLabProvider, error) {
	if config.URL == "" {
		config.URL = "https://gitlab.com"
	}
	limiter := config.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(1*time.Second), 5)
	}

	opts := []gitlab.ClientOptionFunc{
		gitlab.WithBaseURL(strings.TrimSuffix(config.URL, "/") + "/api/v4"),
		gitlab.WithCustomLimiter(limiter),
		gitlab.WithoutRetries(),
	}
	if config.HTTPClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(config.HTTPClient))
	}

	client, err := gitlab.NewClient(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	cfg := config.Retry
	if cfg.Multiplier == 0 {
		cfg = retry.DefaultRetryConfig()
	}

	return &GitLabProvider{client: client, config: config, retry: cfg}, nil
}

func (p *GitLabProvider) Name() models.Platform {
	return models.PlatformGitLab
}

func (p *GitLabProvider) ParseURL(rawURL string) (models.ChangeRequestRef, error) {
	return providers.ParseGitLabMergeURL(rawURL)
}

func projectPath(ref models.ChangeRequestRef) string {
	return ref.PlatformID.Owner + "/" + ref.PlatformID.Repo
}

// FetchChangeRequest loads merge request metadata and rebuilds its unified diff from the per-file diffs
func (p *GitLabProvider) FetchChangeRequest(ctx context.Context, ref models.ChangeRequestRef) (*models.ChangeRequestData, error) {
	pid := projectPath(ref)

	var mr *gitlab.MergeRequest
	err := p.call(ctx, "get merge request", func() (resp *gitlab.Response, err error) {
		mr, resp, err = p.client.MergeRequests.GetMergeRequest(pid, ref.Number, nil, gitlab.WithContext(ctx))
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	opts := &gitlab.ListMergeRequestDiffsOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}
	for {
		var page []*gitlab.MergeRequestDiff
		var resp *gitlab.Response
		err := p.call(ctx, "list merge request diffs", func() (r *gitlab.Response, err error) {
			page, resp, err = p.client.MergeRequests.ListMergeRequestDiffs(pid, ref.Number, opts, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, d := range page {
			writeFileDiff(&b, d)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	data := &models.ChangeRequestData{
		Title: mr.Title,
		Body:  mr.Description,
		Base:  models.BranchRef{Ref: mr.TargetBranch},
		Head:  models.BranchRef{Ref: mr.SourceBranch, SHA: mr.SHA},
		Diff:  b.String(),
	}
	if mr.Author != nil {
		data.Author = mr.Author.Username
	}
	if mr.DiffRefs.BaseSha != "" {
		data.Base.SHA = mr.DiffRefs.BaseSha
	}

	files, err := diff.ParseFiles(data.Diff)
	if err != nil {
		log.Warn().Err(err).Int("mr", ref.Number).Msg("could not parse merge request diff, file list left empty")
	}
	data.Files = files
	data.Stats = diff.StatsOf(files)

	return data, nil
}

func writeFileDiff(b *strings.Builder, d *gitlab.MergeRequestDiff) {
	oldPath, newPath := "a/"+d.OldPath, "b/"+d.NewPath
	fmt.Fprintf(b, "diff --git %s %s\n", oldPath, newPath)
	switch {
	case d.NewFile:
		fmt.Fprintf(b, "new file mode %s\n", modeOr(d.BMode))
		oldPath = "/dev/null"
	case d.DeletedFile:
		fmt.Fprintf(b, "deleted file mode %s\n", modeOr(d.AMode))
		newPath = "/dev/null"
	case d.RenamedFile:
		fmt.Fprintf(b, "rename from %s\nrename to %s\n", d.OldPath, d.NewPath)
	}
	if d.Diff == "" {
		return
	}
	fmt.Fprintf(b, "--- %s\n+++ %s\n%s", oldPath, newPath, d.Diff)
	if !strings.HasSuffix(d.Diff, "\n") {
		b.WriteString("\n")
	}
}

func modeOr(mode string) string {
	if mode == "" || mode == "0" {
		return "100644"
	}
	return mode
}

// FetchCommits lists merge request commits oldest first
func (p *GitLabProvider) FetchCommits(ctx context.Context, ref models.ChangeRequestRef) ([]models.Commit, error) {
	pid := projectPath(ref)

	var commits []models.Commit
	opts := &gitlab.GetMergeRequestCommitsOptions{PerPage: 100}
	for {
		var page []*gitlab.Commit
		var resp *gitlab.Response
		err := p.call(ctx, "list merge request commits", func() (r *gitlab.Response, err error) {
			page, resp, err = p.client.MergeRequests.GetMergeRequestCommits(pid, ref.Number, opts, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			commits = append(commits, models.Commit{SHA: c.ID, Message: c.Message, Author: c.AuthorName})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	// the API returns newest first
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// CommentOnChangeRequest posts a merge request note, editing the marked one if present
func (p *GitLabProvider) CommentOnChangeRequest(ctx context.Context, ref models.ChangeRequestRef, body string, opts providers.CommentOptions) error {
	pid := projectPath(ref)

	if opts.UpsertMarker != "" {
		if !strings.Contains(body, opts.UpsertMarker) {
			body = opts.UpsertMarker + "\n" + body
		}
		existing, err := p.findNote(ctx, ref, opts.UpsertMarker)
		if err != nil {
			return err
		}
		if existing != nil {
			return p.call(ctx, "update note", func() (resp *gitlab.Response, err error) {
				_, resp, err = p.client.Notes.UpdateMergeRequestNote(pid, ref.Number, existing.ID,
					&gitlab.UpdateMergeRequestNoteOptions{Body: gitlab.Ptr(body)}, gitlab.WithContext(ctx))
				return resp, err
			})
		}
	}

	return p.call(ctx, "create note", func() (resp *gitlab.Response, err error) {
		_, resp, err = p.client.Notes.CreateMergeRequestNote(pid, ref.Number,
			&gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(body)}, gitlab.WithContext(ctx))
		return resp, err
	})
}

// DeleteComment removes the note carrying marker
func (p *GitLabProvider) DeleteComment(ctx context.Context, ref models.ChangeRequestRef, marker string) (bool, error) {
	existing, err := p.findNote(ctx, ref, marker)
	if err != nil || existing == nil {
		return false, err
	}
	err = p.call(ctx, "delete note", func() (*gitlab.Response, error) {
		return p.client.Notes.DeleteMergeRequestNote(projectPath(ref), ref.Number, existing.ID, gitlab.WithContext(ctx))
	})
	return err == nil, err
}

func (p *GitLabProvider) findNote(ctx context.Context, ref models.ChangeRequestRef, marker string) (*gitlab.Note, error) {
	opts := &gitlab.ListMergeRequestNotesOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}
	for {
		var page []*gitlab.Note
		var resp *gitlab.Response
		err := p.call(ctx, "list notes", func() (r *gitlab.Response, err error) {
			page, resp, err = p.client.Notes.ListMergeRequestNotes(projectPath(ref), ref.Number, opts, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, note := range page {
			if !note.System && strings.Contains(note.Body, marker) {
				return note, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateOrUpdateChangeRequest commits the files in one commit and opens or updates the merge request
func (p *GitLabProvider) CreateOrUpdateChangeRequest(ctx context.Context, repo providers.RepoRef, spec providers.ChangeRequestSpec) (*models.ModelChangeRequest, error) {
	pid := repo.FullName()

	base := spec.BaseBranch
	if base == "" {
		var project *gitlab.Project
		err := p.call(ctx, "get project", func() (resp *gitlab.Response, err error) {
			project, resp, err = p.client.Projects.GetProject(pid, nil, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		base = project.DefaultBranch
		if base == "" {
			base = "main"
		}
	}

	err := p.call(ctx, "get branch", func() (resp *gitlab.Response, err error) {
		_, resp, err = p.client.Branches.GetBranch(pid, spec.BranchName, gitlab.WithContext(ctx))
		return resp, err
	})
	switch {
	case errors.Is(err, providers.ErrNotFound):
		log.Debug().Str("project", pid).Str("branch", spec.BranchName).Msg("creating branch")
		err = p.call(ctx, "create branch", func() (resp *gitlab.Response, err error) {
			_, resp, err = p.client.Branches.CreateBranch(pid, &gitlab.CreateBranchOptions{
				Branch: gitlab.Ptr(spec.BranchName),
				Ref:    gitlab.Ptr(base),
			}, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	actions, err := p.commitActions(ctx, pid, spec)
	if err != nil {
		return nil, err
	}
	if len(actions) > 0 {
		err := p.call(ctx, "create commit", func() (resp *gitlab.Response, err error) {
			_, resp, err = p.client.Commits.CreateCommit(pid, &gitlab.CreateCommitOptions{
				Branch:        gitlab.Ptr(spec.BranchName),
				CommitMessage: gitlab.Ptr(spec.Title),
				Actions:       actions,
			}, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return nil, err
		}
	}

	open, err := p.openMergeRequests(ctx, pid, spec.BranchName)
	if err != nil {
		return nil, err
	}

	title := spec.Title
	if spec.Draft {
		title = "Draft: " + title
	}

	if len(open) > 0 {
		iid := open[0]
		var mr *gitlab.MergeRequest
		err := p.call(ctx, "update merge request", func() (resp *gitlab.Response, err error) {
			mr, resp, err = p.client.MergeRequests.UpdateMergeRequest(pid, iid, &gitlab.UpdateMergeRequestOptions{
				Title:       gitlab.Ptr(title),
				Description: gitlab.Ptr(spec.Body),
			}, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		return &models.ModelChangeRequest{URL: mr.WebURL, Number: mr.IID, Action: "updated"}, nil
	}

	var mr *gitlab.MergeRequest
	err = p.call(ctx, "create merge request", func() (resp *gitlab.Response, err error) {
		mr, resp, err = p.client.MergeRequests.CreateMergeRequest(pid, &gitlab.CreateMergeRequestOptions{
			Title:        gitlab.Ptr(title),
			Description:  gitlab.Ptr(spec.Body),
			SourceBranch: gitlab.Ptr(spec.BranchName),
			TargetBranch: gitlab.Ptr(base),
		}, gitlab.WithContext(ctx))
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &models.ModelChangeRequest{URL: mr.WebURL, Number: mr.IID, Action: "created"}, nil
}

func (p *GitLabProvider) commitActions(ctx context.Context, pid string, spec providers.ChangeRequestSpec) ([]*gitlab.CommitActionOptions, error) {
	var actions []*gitlab.CommitActionOptions
	for _, fc := range spec.FileChanges {
		var current []byte
		err := p.call(ctx, "get file", func() (resp *gitlab.Response, err error) {
			current, resp, err = p.client.RepositoryFiles.GetRawFile(pid, fc.Path,
				&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(spec.BranchName)}, gitlab.WithContext(ctx))
			return resp, err
		})

		action := gitlab.FileUpdate
		switch {
		case errors.Is(err, providers.ErrNotFound):
			action = gitlab.FileCreate
		case err != nil:
			return nil, err
		case string(current) == fc.Content:
			continue
		}

		actions = append(actions, &gitlab.CommitActionOptions{
			Action:   gitlab.Ptr(action),
			FilePath: gitlab.Ptr(fc.Path),
			Content:  gitlab.Ptr(fc.Content),
		})
	}
	return actions, nil
}

func (p *GitLabProvider) openMergeRequests(ctx context.Context, pid, branch string) ([]int, error) {
	var iids []int
	err := p.call(ctx, "list merge requests", func() (*gitlab.Response, error) {
		mrs, resp, err := p.client.MergeRequests.ListProjectMergeRequests(pid, &gitlab.ListProjectMergeRequestsOptions{
			State:        gitlab.Ptr("opened"),
			SourceBranch: gitlab.Ptr(branch),
		}, gitlab.WithContext(ctx))
		for _, mr := range mrs {
			iids = append(iids, mr.IID)
		}
		return resp, err
	})
	return iids, err
}

// CloseChangeRequest closes open merge requests from branch and deletes the branch
func (p *GitLabProvider) CloseChangeRequest(ctx context.Context, repo providers.RepoRef, branch string) (bool, error) {
	pid := repo.FullName()

	open, err := p.openMergeRequests(ctx, pid, branch)
	if err != nil {
		return false, err
	}

	for _, iid := range open {
		err := p.call(ctx, "close merge request", func() (resp *gitlab.Response, err error) {
			_, resp, err = p.client.MergeRequests.UpdateMergeRequest(pid, iid,
				&gitlab.UpdateMergeRequestOptions{StateEvent: gitlab.Ptr("close")}, gitlab.WithContext(ctx))
			return resp, err
		})
		if err != nil {
			return false, err
		}
	}

	err = p.call(ctx, "delete branch", func() (*gitlab.Response, error) {
		return p.client.Branches.DeleteBranch(pid, branch, gitlab.WithContext(ctx))
	})
	if err != nil && !errors.Is(err, providers.ErrNotFound) {
		return len(open) > 0, err
	}
	return len(open) > 0, nil
}

// call retries recoverable failures; the client applies the rate limiter itself
func (p *GitLabProvider) call(ctx context.Context, op string, fn func() (*gitlab.Response, error)) error {
	result := retry.RetryWithBackoff(ctx, p.retry, func() error {
		resp, err := fn()
		if err != nil {
			return providers.NewAPIError(models.PlatformGitLab, op, statusOf(resp, err), err)
		}
		return nil
	}, nil)
	if result.Success {
		return nil
	}
	return result.LastError
}

func statusOf(resp *gitlab.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var errResp *gitlab.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}
