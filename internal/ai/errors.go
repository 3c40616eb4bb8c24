package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/archdrift/internal/retry"
)

// ErrorKind classifies completion failures
type ErrorKind string

const (
	KindRateLimited       ErrorKind = "rate_limited"
	KindTimeout           ErrorKind = "timeout"
	KindTransport         ErrorKind = "transport"
	KindSafetyBlocked     ErrorKind = "safety_blocked"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindCanceled          ErrorKind = "canceled"
	KindProvider          ErrorKind = "provider"
)

// Error is a classified completion failure
type Error struct {
	Kind  ErrorKind
	Phase Phase
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (%s, %s): %v", e.Phase, e.Model, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Phase, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether retrying the same request may succeed.
// Safety blocks and malformed responses are deterministic for a given prompt.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindTransport:
		return true
	default:
		return false
	}
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == kind
}

var (
	safetyMarkers    = []string{"safety", "blocked", "content_filter", "content filter", "harm_category", "recitation"}
	rateLimitMarkers = []string{"429", "rate limit", "rate_limit", "too many requests", "quota", "overloaded"}
	timeoutMarkers   = []string{"timeout", "timed out", "deadline exceeded"}
	emptyMarkers     = []string{"empty response", "no content", "no choices"}
)

// Classify wraps a raw provider error in an *Error. An *Error passes through unchanged.
func Classify(err error, phase Phase, model string) error {
	if err == nil {
		return nil
	}

	var aiErr *Error
	if errors.As(err, &aiErr) {
		return err
	}

	kind := KindProvider
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case containsAny(msg, safetyMarkers):
		kind = KindSafetyBlocked
	case containsAny(msg, rateLimitMarkers):
		kind = KindRateLimited
	case containsAny(msg, timeoutMarkers):
		kind = KindTimeout
	case containsAny(msg, emptyMarkers):
		kind = KindMalformedResponse
	case retry.IsRetryableError(err):
		kind = KindTransport
	}

	return &Error{Kind: kind, Phase: phase, Model: model, Err: err}
}

// Malformed builds a non-recoverable error for a completion that could not be used
func Malformed(phase Phase, model string, err error) error {
	return &Error{Kind: KindMalformedResponse, Phase: phase, Model: model, Err: err}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
