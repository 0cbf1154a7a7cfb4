package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a failure so callers can pick the right fallback policy.
type Kind int

const (
	// KindUnknown is anything we could not classify.
	KindUnknown Kind = iota
	// KindNetwork covers offline, timeout, DNS and connection failures.
	// Triggers the search cool-down plus cache fallback.
	KindNetwork
	// KindAPI covers non-2xx responses and malformed payloads from a
	// reachable service. Cache fallback without cool-down.
	KindAPI
	// KindCacheCorrupt marks an unparsable persisted cache blob. Reset to
	// empty, never surfaced to the user.
	KindCacheCorrupt
	// KindStaleToken marks an async step whose request token was superseded.
	// Silently discarded; not a real error.
	KindStaleToken
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindCacheCorrupt:
		return "cache_corrupt"
	case KindStaleToken:
		return "stale_token"
	default:
		return "unknown"
	}
}

// Error carries a classified failure with a user-facing message and an
// optional actionable suggestion.
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
	Details    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Suggestion != "" {
		sb.WriteString("\n\nHow to fix:\n")
		sb.WriteString(e.Suggestion)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Details }

// ErrStaleToken is returned by async steps that lost the current-request
// race. Callers drop it without logging.
var ErrStaleToken = &Error{Kind: KindStaleToken, Message: "superseded search request"}

// IsStale reports whether err is (or wraps) a stale-token discard.
func IsStale(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == KindStaleToken
}

// KindOf extracts the classification from err, classifying raw transport
// errors on the fly.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

// classify decides network-vs-unknown for errors that did not come through
// our constructors. API failures always do, so only network shapes matter
// here.
func classify(err error) Kind {
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindNetwork
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	s := err.Error()
	for _, marker := range []string{
		"no such host",
		"name resolution",
		"connection refused",
		"connection reset",
		"network is unreachable",
		"timeout",
		"deadline exceeded",
	} {
		if strings.Contains(s, marker) {
			return KindNetwork
		}
	}
	return KindUnknown
}

// Network wraps a transport failure with offline guidance.
func Network(err error) *Error {
	msg := "Network error while contacting the model hub"
	suggestion := "Check your internet connection; cached results will be shown meanwhile"
	if err != nil {
		s := err.Error()
		if strings.Contains(s, "no such host") || strings.Contains(s, "name resolution") {
			msg = "Cannot resolve the model hub hostname"
		}
		if strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded") {
			msg = "Connection to the model hub timed out"
		}
	}
	return &Error{Kind: KindNetwork, Message: msg, Suggestion: suggestion, Details: err}
}

// API wraps a service-side failure (non-2xx status or bad payload).
func API(status int, err error) *Error {
	msg := "Model hub request failed"
	suggestion := "The service is reachable but erroring; try again in a moment"
	switch {
	case status == 429:
		msg = "Model hub is rate limiting requests"
		suggestion = "Wait a little before searching again"
	case status >= 500:
		msg = fmt.Sprintf("Model hub server error (%d)", status)
	case status >= 400:
		msg = fmt.Sprintf("Model hub rejected the request (%d)", status)
	case status == 0:
		msg = "Model hub returned a malformed response"
	}
	return &Error{Kind: KindAPI, Message: msg, Suggestion: suggestion, Details: err}
}

// CacheCorrupt marks a persisted cache blob that failed to load. The cache
// resets itself; this exists for logging only.
func CacheCorrupt(err error) *Error {
	return &Error{
		Kind:    KindCacheCorrupt,
		Message: "Persisted search cache was unreadable and has been reset",
		Details: err,
	}
}
