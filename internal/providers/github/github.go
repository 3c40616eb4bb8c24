package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v80/github"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/archdrift/internal/providers"
	"github.com/archdrift/internal/retry"
	"github.com/archdrift/pkg/models"
)

var _ providers.Platform = (*Client)(nil)

type PullRequestsService interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	List(ctx context.Context, owner, repo string, opts *github.PullRequestListOptions) ([]*github.PullRequest, *github.Response, error)
	ListFiles(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error)
	ListCommits(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error)
	GetRaw(ctx context.Context, owner, repo string, number int, opts github.RawOptions) (string, *github.Response, error)
	Create(ctx context.Context, owner, repo string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error)
	Edit(ctx context.Context, owner, repo string, number int, pull *github.PullRequest) (*github.PullRequest, *github.Response, error)
}

type IssuesService interface {
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	EditComment(ctx context.Context, owner, repo string, commentID int64, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	DeleteComment(ctx context.Context, owner, repo string, commentID int64) (*github.Response, error)
}

type RepositoriesService interface {
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
	UpdateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
}

type GitService interface {
	GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, *github.Response, error)
	DeleteRef(ctx context.Context, owner, repo, ref string) (*github.Response, error)
}

// BranchCreator creates a branch pointing at sha
type BranchCreator interface {
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) (*github.Response, error)
}

// Services groups the API surfaces the client uses
type Services struct {
	PullRequests PullRequestsService
	Issues       IssuesService
	Repositories RepositoriesService
	Git          GitService
	Branches     BranchCreator
}

// Options configures a Client
type Options struct {
	Token   string
	BaseURL string // GitHub Enterprise URL; empty for github.com
	Retry   retry.RetryConfig
	Limiter *rate.Limiter
}

// Client reads pull requests and publishes comments and model pull requests
type Client struct {
	pulls    PullRequestsService
	issues   IssuesService
	repos    RepositoriesService
	git      GitService
	branches BranchCreator
	limiter  *rate.Limiter
	retry    retry.RetryConfig
}

// NewClient creates a client for github.com or a GitHub Enterprise instance
func NewClient(opts Options) (*Client, error) {
	var httpClient *http.Client
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if opts.BaseURL != "" && !strings.Contains(opts.BaseURL, "://github.com") {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub Enterprise URL %q: %w", opts.BaseURL, err)
		}
	}

	return NewClientWithServices(Services{
		PullRequests: client.PullRequests,
		Issues:       client.Issues,
		Repositories: client.Repositories,
		Git:          client.Git,
		Branches:     &refCreator{client: client},
	}, opts), nil
}

// NewClientWithServices wires explicit service implementations
func NewClientWithServices(s Services, opts Options) *Client {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(1*time.Second), 5)
	}
	cfg := opts.Retry
	if cfg.Multiplier == 0 {
		cfg = retry.DefaultRetryConfig()
	}
	return &Client{
		pulls:    s.PullRequests,
		issues:   s.Issues,
		repos:    s.Repositories,
		git:      s.Git,
		branches: s.Branches,
		limiter:  limiter,
		retry:    cfg,
	}
}

func (c *Client) Name() models.Platform {
	return models.PlatformGitHub
}

func (c *Client) ParseURL(rawURL string) (models.ChangeRequestRef, error) {
	return providers.ParseGitHubPullURL(rawURL)
}

// FetchChangeRequest loads pull request metadata, its files and the unified diff
func (c *Client) FetchChangeRequest(ctx context.Context, ref models.ChangeRequestRef) (*models.ChangeRequestData, error) {
	owner, repo := ref.PlatformID.Owner, ref.PlatformID.Repo

	var pr *github.PullRequest
	err := c.call(ctx, "get pull request", func() (resp *github.Response, err error) {
		pr, resp, err = c.pulls.Get(ctx, owner, repo, ref.Number)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	files, err := c.listFiles(ctx, owner, repo, ref.Number)
	if err != nil {
		return nil, err
	}

	data := &models.ChangeRequestData{
		Title:  pr.GetTitle(),
		Body:   pr.GetBody(),
		Author: pr.GetUser().GetLogin(),
		Base:   models.BranchRef{Ref: pr.GetBase().GetRef(), SHA: pr.GetBase().GetSHA()},
		Head:   models.BranchRef{Ref: pr.GetHead().GetRef(), SHA: pr.GetHead().GetSHA()},
		Files:  files,
	}
	for _, f := range files {
		data.Stats.Additions += f.Additions
		data.Stats.Deletions += f.Deletions
	}
	data.Stats.Files = len(files)

	var raw string
	err = c.call(ctx, "get pull request diff", func() (resp *github.Response, err error) {
		raw, resp, err = c.pulls.GetRaw(ctx, owner, repo, ref.Number, github.RawOptions{Type: github.Diff})
		return resp, err
	})
	var apiErr *providers.APIError
	switch {
	case err == nil:
		data.Diff = raw
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotAcceptable:
		// diff too large for the raw endpoint; fall back to per-file patches
		log.Debug().Int("pr", ref.Number).Msg("raw diff unavailable, assembling from file patches")
		data.Diff = assembleDiff(files)
	default:
		return nil, err
	}

	return data, nil
}

func (c *Client) listFiles(ctx context.Context, owner, repo string, number int) ([]models.ChangedFile, error) {
	var files []models.ChangedFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		var page []*github.CommitFile
		var resp *github.Response
		err := c.call(ctx, "list pull request files", func() (r *github.Response, err error) {
			page, resp, err = c.pulls.ListFiles(ctx, owner, repo, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, f := range page {
			files = append(files, models.ChangedFile{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			return files, nil
		}
		opts.Page = resp.NextPage
	}
}

func assembleDiff(files []models.ChangedFile) string {
	var b strings.Builder
	for _, f := range files {
		if f.Patch == "" {
			continue
		}
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n%s\n", f.Filename, f.Filename, f.Filename, f.Filename, f.Patch)
	}
	return b.String()
}

// FetchCommits lists the commits of a pull request in order
func (c *Client) FetchCommits(ctx context.Context, ref models.ChangeRequestRef) ([]models.Commit, error) {
	var commits []models.Commit
	opts := &github.ListOptions{PerPage: 100}
	for {
		var page []*github.RepositoryCommit
		var resp *github.Response
		err := c.call(ctx, "list pull request commits", func() (r *github.Response, err error) {
			page, resp, err = c.pulls.ListCommits(ctx, ref.PlatformID.Owner, ref.PlatformID.Repo, ref.Number, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, rc := range page {
			author := rc.GetAuthor().GetLogin()
			if author == "" {
				author = rc.GetCommit().GetAuthor().GetName()
			}
			commits = append(commits, models.Commit{
				SHA:     rc.GetSHA(),
				Message: rc.GetCommit().GetMessage(),
				Author:  author,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			return commits, nil
		}
		opts.Page = resp.NextPage
	}
}

// CommentOnChangeRequest posts a top-level comment, editing the marked one if present
func (c *Client) CommentOnChangeRequest(ctx context.Context, ref models.ChangeRequestRef, body string, opts providers.CommentOptions) error {
	owner, repo := ref.PlatformID.Owner, ref.PlatformID.Repo

	if opts.UpsertMarker != "" {
		if !strings.Contains(body, opts.UpsertMarker) {
			body = opts.UpsertMarker + "\n" + body
		}
		existing, err := c.findComment(ctx, ref, opts.UpsertMarker)
		if err != nil {
			return err
		}
		if existing != nil {
			return c.call(ctx, "edit comment", func() (resp *github.Response, err error) {
				_, resp, err = c.issues.EditComment(ctx, owner, repo, existing.GetID(), &github.IssueComment{Body: github.Ptr(body)})
				return resp, err
			})
		}
	}

	return c.call(ctx, "create comment", func() (resp *github.Response, err error) {
		_, resp, err = c.issues.CreateComment(ctx, owner, repo, ref.Number, &github.IssueComment{Body: github.Ptr(body)})
		return resp, err
	})
}

// DeleteComment removes the comment carrying marker
func (c *Client) DeleteComment(ctx context.Context, ref models.ChangeRequestRef, marker string) (bool, error) {
	existing, err := c.findComment(ctx, ref, marker)
	if err != nil || existing == nil {
		return false, err
	}
	err = c.call(ctx, "delete comment", func() (*github.Response, error) {
		return c.issues.DeleteComment(ctx, ref.PlatformID.Owner, ref.PlatformID.Repo, existing.GetID())
	})
	return err == nil, err
}

func (c *Client) findComment(ctx context.Context, ref models.ChangeRequestRef, marker string) (*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var page []*github.IssueComment
		var resp *github.Response
		err := c.call(ctx, "list comments", func() (r *github.Response, err error) {
			page, resp, err = c.issues.ListComments(ctx, ref.PlatformID.Owner, ref.PlatformID.Repo, ref.Number, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, comment := range page {
			if strings.Contains(comment.GetBody(), marker) {
				return comment, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateOrUpdateChangeRequest commits the files to spec.BranchName and opens or updates its pull request
func (c *Client) CreateOrUpdateChangeRequest(ctx context.Context, repo providers.RepoRef, spec providers.ChangeRequestSpec) (*models.ModelChangeRequest, error) {
	base, err := c.baseBranch(ctx, repo, spec.BaseBranch)
	if err != nil {
		return nil, err
	}

	if err := c.ensureBranch(ctx, repo, base, spec.BranchName); err != nil {
		return nil, err
	}

	for _, fc := range spec.FileChanges {
		if err := c.commitFile(ctx, repo, spec.BranchName, spec.Title, fc); err != nil {
			return nil, err
		}
	}

	open, err := c.openPulls(ctx, repo, spec.BranchName)
	if err != nil {
		return nil, err
	}

	if len(open) > 0 {
		existing := open[0]
		var pr *github.PullRequest
		err := c.call(ctx, "edit pull request", func() (resp *github.Response, err error) {
			pr, resp, err = c.pulls.Edit(ctx, repo.Owner, repo.Repo, existing.GetNumber(), &github.PullRequest{
				Title: github.Ptr(spec.Title),
				Body:  github.Ptr(spec.Body),
			})
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		return &models.ModelChangeRequest{URL: pr.GetHTMLURL(), Number: pr.GetNumber(), Action: "updated"}, nil
	}

	var pr *github.PullRequest
	err = c.call(ctx, "create pull request", func() (resp *github.Response, err error) {
		pr, resp, err = c.pulls.Create(ctx, repo.Owner, repo.Repo, &github.NewPullRequest{
			Title: github.Ptr(spec.Title),
			Head:  github.Ptr(spec.BranchName),
			Base:  github.Ptr(base),
			Body:  github.Ptr(spec.Body),
			Draft: github.Ptr(spec.Draft),
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &models.ModelChangeRequest{URL: pr.GetHTMLURL(), Number: pr.GetNumber(), Action: "created"}, nil
}

func (c *Client) baseBranch(ctx context.Context, repo providers.RepoRef, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	var r *github.Repository
	err := c.call(ctx, "get repository", func() (resp *github.Response, err error) {
		r, resp, err = c.repos.Get(ctx, repo.Owner, repo.Repo)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	if r.GetDefaultBranch() == "" {
		return "main", nil
	}
	return r.GetDefaultBranch(), nil
}

func (c *Client) ensureBranch(ctx context.Context, repo providers.RepoRef, base, branch string) error {
	err := c.call(ctx, "get branch", func() (resp *github.Response, err error) {
		_, resp, err = c.git.GetRef(ctx, repo.Owner, repo.Repo, "heads/"+branch)
		return resp, err
	})
	if err == nil || !errors.Is(err, providers.ErrNotFound) {
		return err
	}

	var baseRef *github.Reference
	err = c.call(ctx, "get base branch", func() (resp *github.Response, err error) {
		baseRef, resp, err = c.git.GetRef(ctx, repo.Owner, repo.Repo, "heads/"+base)
		return resp, err
	})
	if err != nil {
		return err
	}

	log.Debug().Str("repo", repo.FullName()).Str("branch", branch).Msg("creating branch")
	return c.call(ctx, "create branch", func() (*github.Response, error) {
		return c.branches.CreateBranch(ctx, repo.Owner, repo.Repo, branch, baseRef.GetObject().GetSHA())
	})
}

func (c *Client) commitFile(ctx context.Context, repo providers.RepoRef, branch, message string, fc providers.FileChange) error {
	var current *github.RepositoryContent
	err := c.call(ctx, "get file", func() (resp *github.Response, err error) {
		current, _, resp, err = c.repos.GetContents(ctx, repo.Owner, repo.Repo, fc.Path, &github.RepositoryContentGetOptions{Ref: branch})
		return resp, err
	})
	if err != nil && !errors.Is(err, providers.ErrNotFound) {
		return err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: []byte(fc.Content),
		Branch:  github.Ptr(branch),
	}

	if current == nil {
		return c.call(ctx, "create file", func() (resp *github.Response, err error) {
			_, resp, err = c.repos.CreateFile(ctx, repo.Owner, repo.Repo, fc.Path, opts)
			return resp, err
		})
	}

	if existing, err := current.GetContent(); err == nil && existing == fc.Content {
		return nil
	}
	opts.SHA = github.Ptr(current.GetSHA())
	return c.call(ctx, "update file", func() (resp *github.Response, err error) {
		_, resp, err = c.repos.UpdateFile(ctx, repo.Owner, repo.Repo, fc.Path, opts)
		return resp, err
	})
}

func (c *Client) openPulls(ctx context.Context, repo providers.RepoRef, branch string) ([]*github.PullRequest, error) {
	var pulls []*github.PullRequest
	err := c.call(ctx, "list pull requests", func() (resp *github.Response, err error) {
		pulls, resp, err = c.pulls.List(ctx, repo.Owner, repo.Repo, &github.PullRequestListOptions{
			State: "open",
			Head:  repo.Owner + ":" + branch,
		})
		return resp, err
	})
	return pulls, err
}

// CloseChangeRequest closes open pull requests from branch and deletes the branch
func (c *Client) CloseChangeRequest(ctx context.Context, repo providers.RepoRef, branch string) (bool, error) {
	open, err := c.openPulls(ctx, repo, branch)
	if err != nil {
		return false, err
	}

	for _, pr := range open {
		number := pr.GetNumber()
		err := c.call(ctx, "close pull request", func() (resp *github.Response, err error) {
			_, resp, err = c.pulls.Edit(ctx, repo.Owner, repo.Repo, number, &github.PullRequest{State: github.Ptr("closed")})
			return resp, err
		})
		if err != nil {
			return false, err
		}
	}

	err = c.call(ctx, "delete branch", func() (*github.Response, error) {
		return c.git.DeleteRef(ctx, repo.Owner, repo.Repo, "heads/"+branch)
	})
	var apiErr *providers.APIError
	if err != nil && !errors.Is(err, providers.ErrNotFound) &&
		!(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity) {
		return len(open) > 0, err
	}

	return len(open) > 0, nil
}

// call waits for the rate limiter and retries recoverable failures
func (c *Client) call(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	result := retry.RetryWithBackoff(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := fn()
		if err != nil {
			return providers.NewAPIError(models.PlatformGitHub, op, statusOf(resp, err), err)
		}
		return nil
	}, nil)
	if result.Success {
		return nil
	}
	return result.LastError
}

func statusOf(resp *github.Response, err error) int {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return http.StatusTooManyRequests
	}
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	return 0
}

// refCreator creates git refs through the REST endpoint directly
type refCreator struct {
	client *github.Client
}

func (r *refCreator) CreateBranch(ctx context.Context, owner, repo, branch, sha string) (*github.Response, error) {
	req, err := r.client.NewRequest(http.MethodPost, fmt.Sprintf("repos/%v/%v/git/refs", owner, repo), map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	})
	if err != nil {
		return nil, err
	}
	return r.client.Do(ctx, req, nil)
}
