package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// APIError is an upstream HTTP error with its status code preserved
// for classification.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// RateLimitError signals an upstream rate-limit rejection. Reset is
// the server-reported time until the budget resets (zero if unknown).
type RateLimitError struct {
	Op    string
	Reset time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Reset > 0 {
		return fmt.Sprintf("%s: rate limited, resets in %s", e.Op, e.Reset)
	}
	return fmt.Sprintf("%s: rate limited", e.Op)
}

// ErrNotFound marks a missing upstream resource (user does not exist).
var ErrNotFound = errors.New("not found")

// IsRateLimited reports whether err is a rate-limit rejection and
// returns the server reset delta when known.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Reset, true
	}
	return 0, false
}

// IsTerminal reports whether err should never be retried: auth
// failures, missing resources, malformed requests. Rate-limit errors
// are terminal for the generic retry path; they route through the
// tracker instead.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if _, ok := IsRateLimited(err); ok {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 400, 401, 403, 404:
			return true
		}
	}
	return false
}

// IsRetriable reports whether err warrants one delayed retry of the
// same strategy: timeouts, connection failures, 5xx responses.
func IsRetriable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// Unclassified transport errors get the benefit of one retry.
	return true
}
