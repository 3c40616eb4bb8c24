package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archdrift/internal/retry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        ErrorKind
		recoverable bool
	}{
		{"rate limit", errors.New("API returned 429 Too Many Requests"), KindRateLimited, true},
		{"quota", errors.New("Quota exceeded for model"), KindRateLimited, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout, true},
		{"timeout text", errors.New("request timed out"), KindTimeout, true},
		{"connection", errors.New("dial tcp: connection refused"), KindTransport, true},
		{"safety", errors.New("candidate blocked due to SAFETY"), KindSafetyBlocked, false},
		{"content filter", errors.New("finish_reason: content_filter"), KindSafetyBlocked, false},
		{"empty", errors.New("empty response from model"), KindMalformedResponse, false},
		{"canceled", context.Canceled, KindCanceled, false},
		{"auth", errors.New("401 invalid api key"), KindProvider, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err, PhaseDriftAnalysis, "gpt-4o")

			var aiErr *Error
			require.True(t, errors.As(err, &aiErr))
			assert.Equal(t, tt.kind, aiErr.Kind)
			assert.Equal(t, tt.recoverable, aiErr.Recoverable())
			assert.Equal(t, tt.recoverable, retry.IsRecoverable(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.Nil(t, Classify(nil, PhaseDependencyScan, "m"))

	wrapped := fmt.Errorf("wrapped: %w", Malformed(PhaseDependencyScan, "m", errors.New("no JSON")))
	got := Classify(wrapped, PhaseDriftAnalysis, "x")
	assert.Equal(t, wrapped, got)
	assert.True(t, IsKind(got, KindMalformedResponse))
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindTimeout, Phase: PhaseModelPatch, Model: "gpt-4o", Err: errors.New("slow")}
	assert.Equal(t, "model-patch (gpt-4o, timeout): slow", err.Error())
	assert.True(t, IsKind(fmt.Errorf("x: %w", err), KindTimeout))
	assert.False(t, IsKind(err, KindRateLimited))
}
