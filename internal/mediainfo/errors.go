package mediainfo

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure. Every component recovers its own
// failures into one of these at its boundary; nothing above the HTTP
// handler ever sees an unclassified error.
type Kind int

const (
	// KindInternal is the zero value so an unclassified error maps to a 500.
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindUpstream
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is the typed gateway error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf reports malformed or malicious input. Never retried.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a missing or mismatched API key.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// NotFoundf reports an upstream-confirmed absence. Not cached, not retried.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Upstreamf reports a transient upstream failure: timeout, 5xx, malformed
// payload, anti-bot block. Eligible for a fallback-chain stage.
func Upstreamf(format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...)}
}

// UpstreamWrap attaches an underlying cause to an upstream failure.
func UpstreamWrap(err error, msg string) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// RateLimited reports throttling, from this gateway's own limiter or an
// upstream 429, so callers can back off.
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

// Internalf reports an unexpected failure. The outermost handler converts
// it to a generic 500 without leaking detail.
func Internalf(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from any error; unclassified errors are internal.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the string placed in the response envelope. Internal
// errors are masked; everything else is surfaced verbatim.
func UserMessage(err error) string {
	if KindOf(err) == KindInternal {
		return "internal server error / 服务器内部错误"
	}
	return err.Error()
}
