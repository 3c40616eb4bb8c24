package github

import (
	"context"

	"github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/mock"
)

type MockPullRequestsService struct {
	mock.Mock
}

func (m *MockPullRequestsService) Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error) {
	args := m.Called(ctx, owner, repo, number)
	pr, _ := args.Get(0).(*github.PullRequest)
	resp, _ := args.Get(1).(*github.Response)
	return pr, resp, args.Error(2)
}

func (m *MockPullRequestsService) List(ctx context.Context, owner, repo string, opts *github.PullRequestListOptions) ([]*github.PullRequest, *github.Response, error) {
	args := m.Called(ctx, owner, repo, opts)
	prs, _ := args.Get(0).([]*github.PullRequest)
	resp, _ := args.Get(1).(*github.Response)
	return prs, resp, args.Error(2)
}

func (m *MockPullRequestsService) ListFiles(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error) {
	args := m.Called(ctx, owner, repo, number, opts)
	files, _ := args.Get(0).([]*github.CommitFile)
	resp, _ := args.Get(1).(*github.Response)
	return files, resp, args.Error(2)
}

func (m *MockPullRequestsService) ListCommits(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
	args := m.Called(ctx, owner, repo, number, opts)
	commits, _ := args.Get(0).([]*github.RepositoryCommit)
	resp, _ := args.Get(1).(*github.Response)
	return commits, resp, args.Error(2)
}

func (m *MockPullRequestsService) GetRaw(ctx context.Context, owner, repo string, number int, opts github.RawOptions) (string, *github.Response, error) {
	args := m.Called(ctx, owner, repo, number, opts)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*github.Response), args.Error(2)
}

func (m *MockPullRequestsService) Create(ctx context.Context, owner, repo string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error) {
	args := m.Called(ctx, owner, repo, pull)
	pr, _ := args.Get(0).(*github.PullRequest)
	resp, _ := args.Get(1).(*github.Response)
	return pr, resp, args.Error(2)
}

func (m *MockPullRequestsService) Edit(ctx context.Context, owner, repo string, number int, pull *github.PullRequest) (*github.PullRequest, *github.Response, error) {
	args := m.Called(ctx, owner, repo, number, pull)
	pr, _ := args.Get(0).(*github.PullRequest)
	resp, _ := args.Get(1).(*github.Response)
	return pr, resp, args.Error(2)
}

type MockIssuesService struct {
	mock.Mock
}

func (m *MockIssuesService) ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error) {
	args := m.Called(ctx, owner, repo, number, opts)
	comments, _ := args.Get(0).([]*github.IssueComment)
	resp, _ := args.Get(1).(*github.Response)
	return comments, resp, args.Error(2)
}

func (m *MockIssuesService) CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error) {
	args := m.Called(ctx, owner, repo, number, comment)
	c, _ := args.Get(0).(*github.IssueComment)
	resp, _ := args.Get(1).(*github.Response)
	return c, resp, args.Error(2)
}

func (m *MockIssuesService) EditComment(ctx context.Context, owner, repo string, commentID int64, comment *github.IssueComment) (*github.IssueComment, *github.Response, error) {
	args := m.Called(ctx, owner, repo, commentID, comment)
	c, _ := args.Get(0).(*github.IssueComment)
	resp, _ := args.Get(1).(*github.Response)
	return c, resp, args.Error(2)
}

func (m *MockIssuesService) DeleteComment(ctx context.Context, owner, repo string, commentID int64) (*github.Response, error) {
	args := m.Called(ctx, owner, repo, commentID)
	resp, _ := args.Get(0).(*github.Response)
	return resp, args.Error(1)
}

type MockRepositoriesService struct {
	mock.Mock
}

func (m *MockRepositoriesService) Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
	args := m.Called(ctx, owner, repo)
	r, _ := args.Get(0).(*github.Repository)
	resp, _ := args.Get(1).(*github.Response)
	return r, resp, args.Error(2)
}

func (m *MockRepositoriesService) GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error) {
	args := m.Called(ctx, owner, repo, path, opts)
	file, _ := args.Get(0).(*github.RepositoryContent)
	resp, _ := args.Get(1).(*github.Response)
	return file, nil, resp, args.Error(2)
}

func (m *MockRepositoriesService) CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	args := m.Called(ctx, owner, repo, path, opts)
	r, _ := args.Get(0).(*github.RepositoryContentResponse)
	resp, _ := args.Get(1).(*github.Response)
	return r, resp, args.Error(2)
}

func (m *MockRepositoriesService) UpdateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	args := m.Called(ctx, owner, repo, path, opts)
	r, _ := args.Get(0).(*github.RepositoryContentResponse)
	resp, _ := args.Get(1).(*github.Response)
	return r, resp, args.Error(2)
}

type MockGitService struct {
	mock.Mock
}

func (m *MockGitService) GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, *github.Response, error) {
	args := m.Called(ctx, owner, repo, ref)
	r, _ := args.Get(0).(*github.Reference)
	resp, _ := args.Get(1).(*github.Response)
	return r, resp, args.Error(2)
}

func (m *MockGitService) DeleteRef(ctx context.Context, owner, repo, ref string) (*github.Response, error) {
	args := m.Called(ctx, owner, repo, ref)
	resp, _ := args.Get(0).(*github.Response)
	return resp, args.Error(1)
}

type MockBranchCreator struct {
	mock.Mock
}

func (m *MockBranchCreator) CreateBranch(ctx context.Context, owner, repo, branch, sha string) (*github.Response, error) {
	args := m.Called(ctx, owner, repo, branch, sha)
	resp, _ := args.Get(0).(*github.Response)
	return resp, args.Error(1)
}
