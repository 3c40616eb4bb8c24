package providers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/archdrift/pkg/models"
)

var (
	ErrInvalidURL            = errors.New("invalid change request URL")
	ErrUnsupportedPlatform   = errors.New("unsupported hosting platform")
	ErrPlatformNotConfigured = errors.New("platform not configured")
	ErrUnauthorized          = errors.New("token invalid or missing")
	ErrForbidden             = errors.New("insufficient permissions")
	ErrNotFound              = errors.New("not found")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnavailable           = errors.New("service unavailable")
)

// APIError is a failed platform API call
type APIError struct {
	Platform   models.Platform
	Op         string
	StatusCode int
	Err        error
}

// NewAPIError classifies a failed call by its HTTP status; statusCode 0 means no response
func NewAPIError(platform models.Platform, op string, statusCode int, err error) *APIError {
	return &APIError{Platform: platform, Op: op, StatusCode: statusCode, Err: err}
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %v", e.Platform, e.Op, e.StatusCode, e.Err)
}

// Unwrap exposes both the matching sentinel and the underlying error
func (e *APIError) Unwrap() []error {
	if sentinel := e.sentinel(); sentinel != nil {
		return []error{sentinel, e.Err}
	}
	return []error{e.Err}
}

// Recoverable marks throttling, server errors and transport failures for retry
func (e *APIError) Recoverable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *APIError) sentinel() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}
