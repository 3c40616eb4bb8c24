package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/archdrift/internal/providers"
	"github.com/archdrift/internal/retry"
	"github.com/archdrift/pkg/models"
)

type testServices struct {
	pulls    *MockPullRequestsService
	issues   *MockIssuesService
	repos    *MockRepositoriesService
	git      *MockGitService
	branches *MockBranchCreator
}

func newTestClient() (*Client, *testServices) {
	s := &testServices{
		pulls:    &MockPullRequestsService{},
		issues:   &MockIssuesService{},
		repos:    &MockRepositoriesService{},
		git:      &MockGitService{},
		branches: &MockBranchCreator{},
	}
	client := NewClientWithServices(Services{
		PullRequests: s.pulls,
		Issues:       s.issues,
		Repositories: s.repos,
		Git:          s.git,
		Branches:     s.branches,
	}, Options{
		Retry:   retry.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
		Limiter: rate.NewLimiter(rate.Inf, 0),
	})
	return client, s
}

func (s *testServices) assertExpectations(t *testing.T) {
	s.pulls.AssertExpectations(t)
	s.issues.AssertExpectations(t)
	s.repos.AssertExpectations(t)
	s.git.AssertExpectations(t)
	s.branches.AssertExpectations(t)
}

func status(code int) *github.Response {
	return &github.Response{Response: &http.Response{StatusCode: code}}
}

var testRef = models.ChangeRequestRef{
	Number:     42,
	PlatformID: models.PlatformID{Owner: "acme", Repo: "shop"},
	Platform:   models.PlatformGitHub,
}

var modelRepo = providers.RepoRef{Platform: models.PlatformGitHub, Owner: "acme", Repo: "architecture"}

const marker = "<!-- archdrift-analysis -->"

func TestClient_FetchChangeRequest(t *testing.T) {
	t.Run("should map pull request, files and diff", func(t *testing.T) {
		client, s := newTestClient()

		s.pulls.On("Get", mock.Anything, "acme", "shop", 42).Return(&github.PullRequest{
			Title: github.Ptr("Add payments client"),
			Body:  github.Ptr("calls the payments API"),
			User:  &github.User{Login: github.Ptr("dev")},
			Base:  &github.PullRequestBranch{Ref: github.Ptr("main"), SHA: github.Ptr("b1")},
			Head:  &github.PullRequestBranch{Ref: github.Ptr("feature"), SHA: github.Ptr("h1")},
		}, &github.Response{}, nil).Once()

		s.pulls.On("ListFiles", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.CommitFile{
			{Filename: github.Ptr("orders/client.go"), Status: github.Ptr("added"), Additions: github.Ptr(20), Patch: github.Ptr("@@ -0,0 +1 @@\n+package orders")},
			{Filename: github.Ptr("orders/main.go"), Status: github.Ptr("modified"), Additions: github.Ptr(3), Deletions: github.Ptr(1)},
		}, &github.Response{}, nil).Once()

		s.pulls.On("GetRaw", mock.Anything, "acme", "shop", 42, github.RawOptions{Type: github.Diff}).
			Return("diff --git a/orders/client.go b/orders/client.go\n", &github.Response{}, nil).Once()

		data, err := client.FetchChangeRequest(context.Background(), testRef)
		require.NoError(t, err)

		assert.Equal(t, "Add payments client", data.Title)
		assert.Equal(t, "dev", data.Author)
		assert.Equal(t, models.BranchRef{Ref: "main", SHA: "b1"}, data.Base)
		assert.Len(t, data.Files, 2)
		assert.Equal(t, models.ChangeStats{Additions: 23, Deletions: 1, Files: 2}, data.Stats)
		assert.Contains(t, data.Diff, "orders/client.go")
		s.assertExpectations(t)
	})

	t.Run("should assemble diff from patches when raw diff is too large", func(t *testing.T) {
		client, s := newTestClient()

		s.pulls.On("Get", mock.Anything, "acme", "shop", 42).Return(&github.PullRequest{}, &github.Response{}, nil)
		s.pulls.On("ListFiles", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.CommitFile{
			{Filename: github.Ptr("a.go"), Patch: github.Ptr("@@ -1 +1 @@\n-x\n+y")},
		}, &github.Response{}, nil)
		s.pulls.On("GetRaw", mock.Anything, "acme", "shop", 42, mock.Anything).
			Return("", status(http.StatusNotAcceptable), errors.New("diff too large")).Once()

		data, err := client.FetchChangeRequest(context.Background(), testRef)
		require.NoError(t, err)
		assert.Contains(t, data.Diff, "diff --git a/a.go b/a.go")
		assert.Contains(t, data.Diff, "+y")
	})

	t.Run("should not retry a missing pull request", func(t *testing.T) {
		client, s := newTestClient()

		s.pulls.On("Get", mock.Anything, "acme", "shop", 42).
			Return(nil, status(http.StatusNotFound), errors.New("404 Not Found")).Once()

		_, err := client.FetchChangeRequest(context.Background(), testRef)
		assert.ErrorIs(t, err, providers.ErrNotFound)
		s.pulls.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("should retry server errors", func(t *testing.T) {
		client, s := newTestClient()

		s.pulls.On("Get", mock.Anything, "acme", "shop", 42).
			Return(nil, status(http.StatusBadGateway), errors.New("502")).Once()
		s.pulls.On("Get", mock.Anything, "acme", "shop", 42).
			Return(&github.PullRequest{Title: github.Ptr("ok")}, &github.Response{}, nil).Once()
		s.pulls.On("ListFiles", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.CommitFile{}, &github.Response{}, nil)
		s.pulls.On("GetRaw", mock.Anything, "acme", "shop", 42, mock.Anything).Return("", &github.Response{}, nil)

		data, err := client.FetchChangeRequest(context.Background(), testRef)
		require.NoError(t, err)
		assert.Equal(t, "ok", data.Title)
		s.pulls.AssertNumberOfCalls(t, "Get", 2)
	})
}

func TestClient_FetchCommits(t *testing.T) {
	client, s := newTestClient()

	s.pulls.On("ListCommits", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.RepositoryCommit{
		{SHA: github.Ptr("abc"), Author: &github.User{Login: github.Ptr("dev")}, Commit: &github.Commit{Message: github.Ptr("add client")}},
		{SHA: github.Ptr("def"), Commit: &github.Commit{Message: github.Ptr("wire it"), Author: &github.CommitAuthor{Name: github.Ptr("Dev Name")}}},
	}, &github.Response{NextPage: 2}, nil).Once()
	s.pulls.On("ListCommits", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.RepositoryCommit{
		{SHA: github.Ptr("fed"), Commit: &github.Commit{Message: github.Ptr("tests")}},
	}, &github.Response{}, nil).Once()

	commits, err := client.FetchCommits(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, []models.Commit{
		{SHA: "abc", Message: "add client", Author: "dev"},
		{SHA: "def", Message: "wire it", Author: "Dev Name"},
		{SHA: "fed", Message: "tests"},
	}, commits)
}

func TestClient_CommentOnChangeRequest(t *testing.T) {
	t.Run("should edit the marked comment", func(t *testing.T) {
		client, s := newTestClient()

		s.issues.On("ListComments", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.IssueComment{
			{ID: github.Ptr(int64(3)), Body: github.Ptr("LGTM")},
			{ID: github.Ptr(int64(7)), Body: github.Ptr(marker + "\nold analysis")},
		}, &github.Response{}, nil)
		s.issues.On("EditComment", mock.Anything, "acme", "shop", int64(7), mock.MatchedBy(func(c *github.IssueComment) bool {
			return c.GetBody() == marker+"\nnew analysis"
		})).Return(&github.IssueComment{}, &github.Response{}, nil).Once()

		err := client.CommentOnChangeRequest(context.Background(), testRef, "new analysis", providers.CommentOptions{UpsertMarker: marker})
		require.NoError(t, err)
		s.assertExpectations(t)
		s.issues.AssertNotCalled(t, "CreateComment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should create a comment when none is marked", func(t *testing.T) {
		client, s := newTestClient()

		s.issues.On("ListComments", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.IssueComment{}, &github.Response{}, nil)
		s.issues.On("CreateComment", mock.Anything, "acme", "shop", 42, mock.MatchedBy(func(c *github.IssueComment) bool {
			return c.GetBody() == marker+"\nanalysis"
		})).Return(&github.IssueComment{}, &github.Response{}, nil).Once()

		err := client.CommentOnChangeRequest(context.Background(), testRef, marker+"\nanalysis", providers.CommentOptions{UpsertMarker: marker})
		require.NoError(t, err)
		s.assertExpectations(t)
	})

	t.Run("should surface permission errors", func(t *testing.T) {
		client, s := newTestClient()

		s.issues.On("CreateComment", mock.Anything, "acme", "shop", 42, mock.Anything).
			Return(nil, status(http.StatusForbidden), errors.New("403")).Once()

		err := client.CommentOnChangeRequest(context.Background(), testRef, "plain", providers.CommentOptions{})
		assert.ErrorIs(t, err, providers.ErrForbidden)
	})
}

func TestClient_DeleteComment(t *testing.T) {
	client, s := newTestClient()

	s.issues.On("ListComments", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.IssueComment{
		{ID: github.Ptr(int64(9)), Body: github.Ptr(marker + "\nstale")},
	}, &github.Response{}, nil).Once()
	s.issues.On("DeleteComment", mock.Anything, "acme", "shop", int64(9)).Return(&github.Response{}, nil).Once()

	deleted, err := client.DeleteComment(context.Background(), testRef, marker)
	require.NoError(t, err)
	assert.True(t, deleted)

	s.issues.On("ListComments", mock.Anything, "acme", "shop", 42, mock.Anything).Return([]*github.IssueComment{}, &github.Response{}, nil).Once()

	deleted, err = client.DeleteComment(context.Background(), testRef, marker)
	require.NoError(t, err)
	assert.False(t, deleted)
	s.assertExpectations(t)
}

func TestClient_CreateOrUpdateChangeRequest(t *testing.T) {
	spec := providers.ChangeRequestSpec{
		BranchName: "archdrift/shop/pr-42",
		Title:      "Update architecture model for acme/shop#42",
		Body:       "adds orders -> payments",
		Draft:      true,
		FileChanges: []providers.FileChange{
			{Path: "model/model.c4", Content: "model {}\n"},
		},
	}

	t.Run("should create branch, commit and open a draft", func(t *testing.T) {
		client, s := newTestClient()

		s.repos.On("Get", mock.Anything, "acme", "architecture").Return(&github.Repository{DefaultBranch: github.Ptr("trunk")}, &github.Response{}, nil)
		s.git.On("GetRef", mock.Anything, "acme", "architecture", "heads/archdrift/shop/pr-42").
			Return(nil, status(http.StatusNotFound), errors.New("404")).Once()
		s.git.On("GetRef", mock.Anything, "acme", "architecture", "heads/trunk").
			Return(&github.Reference{Object: &github.GitObject{SHA: github.Ptr("base-sha")}}, &github.Response{}, nil).Once()
		s.branches.On("CreateBranch", mock.Anything, "acme", "architecture", "archdrift/shop/pr-42", "base-sha").Return(&github.Response{}, nil).Once()
		s.repos.On("GetContents", mock.Anything, "acme", "architecture", "model/model.c4", mock.Anything).
			Return(&github.RepositoryContent{SHA: github.Ptr("file-sha"), Content: github.Ptr("model { old }\n")}, &github.Response{}, nil)
		s.repos.On("UpdateFile", mock.Anything, "acme", "architecture", "model/model.c4", mock.MatchedBy(func(o *github.RepositoryContentFileOptions) bool {
			return o.GetSHA() == "file-sha" && o.GetBranch() == "archdrift/shop/pr-42" && string(o.Content) == "model {}\n"
		})).Return(&github.RepositoryContentResponse{}, &github.Response{}, nil).Once()
		s.pulls.On("List", mock.Anything, "acme", "architecture", mock.MatchedBy(func(o *github.PullRequestListOptions) bool {
			return o.Head == "acme:archdrift/shop/pr-42" && o.State == "open"
		})).Return([]*github.PullRequest{}, &github.Response{}, nil)
		s.pulls.On("Create", mock.Anything, "acme", "architecture", mock.MatchedBy(func(p *github.NewPullRequest) bool {
			return p.GetBase() == "trunk" && p.GetDraft()
		})).Return(&github.PullRequest{Number: github.Ptr(5), HTMLURL: github.Ptr("https://github.com/acme/architecture/pull/5")}, &github.Response{}, nil).Once()

		got, err := client.CreateOrUpdateChangeRequest(context.Background(), modelRepo, spec)
		require.NoError(t, err)
		assert.Equal(t, &models.ModelChangeRequest{URL: "https://github.com/acme/architecture/pull/5", Number: 5, Action: "created"}, got)
		s.assertExpectations(t)
	})

	t.Run("should update the open pull request and skip identical files", func(t *testing.T) {
		client, s := newTestClient()
		withBase := spec
		withBase.BaseBranch = "main"

		s.git.On("GetRef", mock.Anything, "acme", "architecture", "heads/archdrift/shop/pr-42").
			Return(&github.Reference{}, &github.Response{}, nil).Once()
		s.repos.On("GetContents", mock.Anything, "acme", "architecture", "model/model.c4", mock.Anything).
			Return(&github.RepositoryContent{SHA: github.Ptr("file-sha"), Content: github.Ptr("model {}\n")}, &github.Response{}, nil)
		s.pulls.On("List", mock.Anything, "acme", "architecture", mock.Anything).
			Return([]*github.PullRequest{{Number: github.Ptr(5)}}, &github.Response{}, nil)
		s.pulls.On("Edit", mock.Anything, "acme", "architecture", 5, mock.Anything).
			Return(&github.PullRequest{Number: github.Ptr(5), HTMLURL: github.Ptr("u")}, &github.Response{}, nil).Once()

		got, err := client.CreateOrUpdateChangeRequest(context.Background(), modelRepo, withBase)
		require.NoError(t, err)
		assert.Equal(t, "updated", got.Action)
		s.repos.AssertNotCalled(t, "UpdateFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		s.repos.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
		s.assertExpectations(t)
	})
}

func TestClient_CloseChangeRequest(t *testing.T) {
	client, s := newTestClient()

	s.pulls.On("List", mock.Anything, "acme", "architecture", mock.Anything).
		Return([]*github.PullRequest{{Number: github.Ptr(5)}}, &github.Response{}, nil).Once()
	s.pulls.On("Edit", mock.Anything, "acme", "architecture", 5, mock.MatchedBy(func(p *github.PullRequest) bool {
		return p.GetState() == "closed"
	})).Return(&github.PullRequest{}, &github.Response{}, nil).Once()
	s.git.On("DeleteRef", mock.Anything, "acme", "architecture", "heads/archdrift/shop/pr-42").
		Return(status(http.StatusUnprocessableEntity), errors.New("reference does not exist")).Once()

	closed, err := client.CloseChangeRequest(context.Background(), modelRepo, "archdrift/shop/pr-42")
	require.NoError(t, err)
	assert.True(t, closed)
	s.assertExpectations(t)
}

func TestClient_ParseURL(t *testing.T) {
	client, _ := newTestClient()

	ref, err := client.ParseURL("https://github.com/acme/shop/pull/42")
	require.NoError(t, err)
	assert.Equal(t, 42, ref.Number)
	assert.Equal(t, models.PlatformGitHub, client.Name())
}
