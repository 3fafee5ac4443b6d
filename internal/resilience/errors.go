// Package resilience classifies pipeline errors so callers can tell fatal
// configuration and upstream outages apart from per-candidate failures.
package resilience

import (
	"errors"
	"fmt"
	"net"
)

// ConfigError is a fatal precondition failure (radius over the fair-use
// cap, unresolvable location). It aborts a run before any network call.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps an error as a fatal configuration error.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// UpstreamError is a failure of the discovery data source (non-2xx,
// timeout). Fatal for the discovery phase; the run reports zero processed.
type UpstreamError struct {
	Err        error
	StatusCode int
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError wraps an error as an upstream service failure with an
// optional HTTP status code.
func NewUpstreamError(err error, statusCode int) *UpstreamError {
	return &UpstreamError{Err: err, StatusCode: statusCode}
}

// CandidateError records a non-fatal failure for a single candidate or
// installer. The batch continues past it.
type CandidateError struct {
	Name  string // candidate name or installer id
	Stage string // producing stage: reconcile, crawler, estimate
	Err   error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Name, e.Err)
}

func (e *CandidateError) Unwrap() error { return e.Err }

// NewCandidateError wraps a per-candidate failure with its stage and subject.
func NewCandidateError(stage, name string, err error) *CandidateError {
	return &CandidateError{Name: name, Stage: stage, Err: err}
}

// ErrPolicyDenied marks a crawl refused by the site's exclusion policy.
// Treated as an ordinary non-fatal crawl failure, not an exceptional one.
var ErrPolicyDenied = errors.New("crawling not permitted by site policy")

// IsConfigError reports whether the error chain contains a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsUpstreamError reports whether the error chain contains an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsPolicyDenied reports whether the error chain contains ErrPolicyDenied.
func IsPolicyDenied(err error) bool {
	return errors.Is(err, ErrPolicyDenied)
}

// IsTimeout reports whether the error chain contains a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
