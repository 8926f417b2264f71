// Package crawler fetches the conference schedule from the upstream API with
// bounded concurrency, retries and request staggering.
package crawler

import (
	"errors"
	"fmt"
)

// Crawler errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrBodyTooLarge         = errors.New("response body exceeds limit")
	ErrDateExhausted        = errors.New("date exhausted all retries")
)

// FailureKind classifies a failed fetch attempt.
type FailureKind int

// Failure kinds.
const (
	KindNone FailureKind = iota
	KindTimeout
	KindRateLimited
	KindHTTPError
	KindMalformedResponse
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindTimeout:
		return "Timeout"
	case KindRateLimited:
		return "RateLimited"
	case KindHTTPError:
		return "HTTPError"
	case KindMalformedResponse:
		return "MalformedResponse"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// FetchError is the error returned by a failed FetchPage call.
type FetchError struct {
	Err        error
	Date       string
	Kind       FailureKind
	Page       int
	StatusCode int
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetching %s page %d (status %d): %v", e.Kind, e.Date, e.Page, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s fetching %s page %d: %v", e.Kind, e.Date, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err. Errors that are not a
// *FetchError count as HTTPError.
func KindOf(err error) FailureKind {
	if err == nil {
		return KindNone
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return KindHTTPError
}

// StatusOf returns the HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}

	return 0
}
