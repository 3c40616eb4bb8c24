package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/archdrift/internal/logging"
	"github.com/archdrift/internal/providers"
	"github.com/archdrift/pkg/models"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) CreateOrUpdateChangeRequest(ctx context.Context, repo providers.RepoRef, spec providers.ChangeRequestSpec) (*models.ModelChangeRequest, error) {
	args := m.Called(ctx, repo, spec)
	mcr, _ := args.Get(0).(*models.ModelChangeRequest)
	return mcr, args.Error(1)
}

func (m *mockWriter) CommentOnChangeRequest(ctx context.Context, ref models.ChangeRequestRef, body string, opts providers.CommentOptions) error {
	return m.Called(ctx, ref, body, opts).Error(0)
}

func (m *mockWriter) DeleteComment(ctx context.Context, ref models.ChangeRequestRef, marker string) (bool, error) {
	args := m.Called(ctx, ref, marker)
	return args.Bool(0), args.Error(1)
}

func (m *mockWriter) CloseChangeRequest(ctx context.Context, repo providers.RepoRef, branch string) (bool, error) {
	args := m.Called(ctx, repo, branch)
	return args.Bool(0), args.Error(1)
}

var modelRepo = providers.RepoRef{Platform: models.PlatformGitHub, Owner: "acme", Repo: "architecture"}

func analysis() *models.DriftAnalysisResult {
	return &models.DriftAnalysisResult{
		RunID:         "run-1",
		ComponentID:   "orders",
		ComponentName: "Orders",
		ChangeRequest: models.ChangeRequestRef{
			Number:     42,
			URL:        "https://github.com/acme/Orders/pull/42",
			PlatformID: models.PlatformID{Owner: "acme", Repo: "Orders"},
			Platform:   models.PlatformGitHub,
		},
		HasViolations: true,
		Violations: []models.Violation{{
			Severity:    models.SeverityHigh,
			Description: "orders calls billing | directly",
			File:        "client.go",
			Line:        12,
			Suggestion:  "go through payments",
		}},
		Summary:       "One undeclared dependency.",
		AnalyzedFiles: 3,
		ExcludedFiles: 1,
		ModelUpdates: &models.ModelUpdates{Relationships: []models.StructuredRelationship{
			{Source: "orders", Target: "billing", Description: "charges"},
		}},
		Patch: &models.PatchResult{
			FilePath:      "model/main.c4",
			Content:       "model {\n  orders -> billing 'charges'\n}\n",
			InsertedLines: []string{"orders -> billing 'charges'"},
			Skipped:       []models.SkippedRelationship{{Source: "x", Target: "y", Reason: "Unknown source component: x"}},
		},
	}
}

func TestPublish_ModelRequestAndComment(t *testing.T) {
	cr := &mockWriter{}
	model := &mockWriter{}
	out := filepath.Join(t.TempDir(), "outputs")

	mcr := &models.ModelChangeRequest{URL: "https://github.com/acme/architecture/pull/7", Number: 7, Action: "created"}
	model.On("CreateOrUpdateChangeRequest", mock.Anything, modelRepo, mock.MatchedBy(func(spec providers.ChangeRequestSpec) bool {
		return spec.BranchName == "archdrift/orders/pr-42" &&
			spec.Draft &&
			spec.BaseBranch == "main" &&
			len(spec.FileChanges) == 1 &&
			spec.FileChanges[0].Path == "model/main.c4"
	})).Return(mcr, nil).Once()

	cr.On("CommentOnChangeRequest", mock.Anything, mock.Anything, mock.MatchedBy(func(body string) bool {
		return assert.Contains(t, body, Marker) && assert.Contains(t, body, mcr.URL)
	}), providers.CommentOptions{UpsertMarker: Marker}).Return(nil).Once()

	logger, err := logging.StartRunLogging("run-1", t.TempDir())
	require.NoError(t, err)

	pub, err := New(cr, Options{Comment: true, OpenPR: true, Draft: true, BaseBranch: "main", CIOutput: out, Format: "likec4"}).
		WithModelRepository(model, modelRepo).
		Publish(context.Background(), analysis(), logger)
	require.NoError(t, err)
	logger.Close()

	transcript, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "Model change request created: https://github.com/acme/architecture/pull/7")
	assert.Contains(t, string(transcript), "Analysis comment published on https://github.com/acme/Orders/pull/42")

	assert.True(t, pub.CommentPosted)
	assert.Equal(t, mcr, pub.ModelChangeRequest)
	assert.True(t, pub.OutputsWritten)
	cr.AssertExpectations(t)
	model.AssertExpectations(t)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "has-violations=true\nviolation-count=1\ncomponent-id=orders\nmodel-pr-url=https://github.com/acme/architecture/pull/7\npatched-file=model/main.c4\n", string(data))
}

func TestPublish_CleanRunDeletesCommentAndClosesRequest(t *testing.T) {
	cr := &mockWriter{}
	model := &mockWriter{}
	t.Setenv("GITHUB_OUTPUT", "")

	result := analysis()
	result.HasViolations = false
	result.Violations = nil
	result.Patch = nil

	model.On("CloseChangeRequest", mock.Anything, modelRepo, "archdrift/orders/pr-42").Return(true, nil).Once()
	cr.On("DeleteComment", mock.Anything, result.ChangeRequest, Marker).Return(true, nil).Once()

	pub, err := New(cr, Options{Comment: true, OpenPR: true}).
		WithModelRepository(model, modelRepo).
		Publish(context.Background(), result, nil)
	require.NoError(t, err)

	assert.True(t, pub.ModelRequestClosed)
	assert.True(t, pub.CommentDeleted)
	assert.False(t, pub.CommentPosted)
	assert.False(t, pub.OutputsWritten)
	cr.AssertExpectations(t)
	model.AssertExpectations(t)
}

func TestPublish_UnknownRepositoryOnlyWritesOutputs(t *testing.T) {
	cr := &mockWriter{}
	out := filepath.Join(t.TempDir(), "outputs")
	t.Setenv("GITHUB_OUTPUT", out)

	result := &models.DriftAnalysisResult{ChangeRequest: analysis().ChangeRequest}

	pub, err := New(cr, Options{Comment: true, OpenPR: true}).
		WithModelRepository(cr, modelRepo).
		Publish(context.Background(), result, nil)
	require.NoError(t, err)

	assert.True(t, pub.OutputsWritten)
	cr.AssertNotCalled(t, "CommentOnChangeRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cr.AssertNotCalled(t, "CloseChangeRequest", mock.Anything, mock.Anything, mock.Anything)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "has-violations=false\n")
	assert.Contains(t, string(data), "component-id=\n")
}

func TestPublish_Errors(t *testing.T) {
	t.Run("model request", func(t *testing.T) {
		model := &mockWriter{}
		model.On("CreateOrUpdateChangeRequest", mock.Anything, mock.Anything, mock.Anything).Return(nil, providers.ErrForbidden)

		_, err := New(nil, Options{OpenPR: true}).WithModelRepository(model, modelRepo).Publish(context.Background(), analysis(), nil)
		assert.ErrorIs(t, err, providers.ErrForbidden)
		assert.Contains(t, err.Error(), "acme/architecture")
	})

	t.Run("comment", func(t *testing.T) {
		cr := &mockWriter{}
		cr.On("CommentOnChangeRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))

		pub, err := New(cr, Options{Comment: true}).Publish(context.Background(), analysis(), nil)
		require.Error(t, err)
		assert.False(t, pub.CommentPosted)
	})
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		repo string
		want string
	}{
		{"Orders", "archdrift/orders/pr-7"},
		{"my repo!", "archdrift/my-repo/pr-7"},
		{"", "archdrift/repo/pr-7"},
	}
	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			assert.Equal(t, tt.want, BranchName(models.ChangeRequestRef{Number: 7, PlatformID: models.PlatformID{Repo: tt.repo}}))
		})
	}
}

func TestRenderComment(t *testing.T) {
	result := analysis()
	result.Warnings = []string{"touches\nshared config"}
	result.WasTruncated = true
	result.TruncationReason = "Diff exceeds 5000-line limit (7342 lines changed). Analysis may be incomplete."

	body := RenderComment(result, nil)

	assert.True(t, len(body) > len(Marker) && body[:len(Marker)] == Marker)
	assert.Contains(t, body, "## Architecture drift: 1 violation found")
	assert.Contains(t, body, "**Component:** `orders (Orders)`")
	assert.Contains(t, body, "| high | orders calls billing \\| directly | client.go:12 | go through payments |")
	assert.Contains(t, body, "- touches shared config")
	assert.Contains(t, body, "- `orders -> billing`: charges")
	assert.Contains(t, body, "> Diff exceeds 5000-line limit")
	assert.Contains(t, body, "<sub>Analyzed 3 files, 1 excluded by skip patterns. Run `run-1`.</sub>")
}

func TestRenderModelRequestBody(t *testing.T) {
	body := RenderModelRequestBody(analysis(), "likec4")

	assert.Contains(t, body, "https://github.com/acme/Orders/pull/42")
	assert.Contains(t, body, "```likec4\norders -> billing 'charges'\n```")
	assert.Contains(t, body, "- `x -> y`: Unknown source component: x")
}
