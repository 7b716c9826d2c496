package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindNetwork covers DNS, connection and TLS failures.
	KindNetwork Kind = iota
	// KindTimeout means the per-fetch timeout expired.
	KindTimeout
	// KindStatus means the server answered with a non-2xx status.
	KindStatus
	// KindBody means the body could not be read or decoded.
	KindBody
	// KindCancelled means the caller's context was cancelled.
	KindCancelled
	// KindInvalidURL means the URL could not be turned into a request.
	KindInvalidURL
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindBody:
		return "body"
	case KindCancelled:
		return "cancelled"
	case KindInvalidURL:
		return "invalid-url"
	default:
		return "unknown"
	}
}

// ErrUnexpectedStatus is wrapped by status failures.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Error is a typed fetch failure.
type Error struct {
	URL        string
	Kind       Kind
	StatusCode int
	Err        error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying later could succeed.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// KindOf returns the kind of err if it is a *Error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}
