// Package upstream holds what the external-authority clients share: the
// normalized failure taxonomy and the request/decode plumbing.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category is the normalized failure taxonomy for upstream calls.
type Category string

const (
	// CategoryTimeout means the upstream did not answer within the deadline.
	CategoryTimeout Category = "timeout"

	// CategoryOutage means the upstream could not be reached or answered 5xx.
	CategoryOutage Category = "provider_outage"

	// CategoryBadData means the response could not be decoded or lacked a required value.
	CategoryBadData Category = "bad_data"

	// CategoryContractMismatch means the response decoded but its shape is not the agreed one.
	CategoryContractMismatch Category = "contract_mismatch"

	// CategoryAuthentication means the upstream refused our application credentials.
	CategoryAuthentication Category = "authentication"

	// CategoryRejected means the upstream is reachable and declined the caller's token.
	CategoryRejected Category = "rejected"

	// CategoryRateLimited means the upstream throttled us.
	CategoryRateLimited Category = "rate_limited"

	// CategoryInternal is anything not classified above.
	CategoryInternal Category = "internal"
)

// Error wraps an upstream failure with its normalized category.
type Error struct {
	Category   Category
	Upstream   string
	Message    string
	StatusCode int
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("upstream %s [%s]: %s: %v", e.Upstream, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("upstream %s [%s]: %s", e.Upstream, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized upstream error.
func NewError(category Category, upstream, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Upstream:   upstream,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the category from err, defaulting to CategoryInternal.
func CategoryOf(err error) Category {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Category
	}
	return CategoryInternal
}

// ClassifyTransport categorizes an error returned by http.Client.Do.
func ClassifyTransport(upstream string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewError(CategoryTimeout, upstream, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(CategoryOutage, upstream, "request canceled", err)
	}
	return NewError(CategoryOutage, upstream, "request failed", err)
}

// ClassifyStatus categorizes a non-2xx status code.
func ClassifyStatus(upstream string, status int) *Error {
	var category Category
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = CategoryAuthentication
	case status == http.StatusTooManyRequests:
		category = CategoryRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		category = CategoryTimeout
	default:
		category = CategoryOutage
	}
	e := NewError(category, upstream, fmt.Sprintf("unexpected status %d", status), nil)
	e.StatusCode = status
	return e
}
