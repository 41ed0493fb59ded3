package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is a transport-level failure: DNS, dial, TLS, timeout.
// These are the classic transient conditions and are always retried.
type NetworkError struct {
	Source string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Source, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response from the upstream.
type StatusError struct {
	Source string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %s", e.Source, e.Status)
}

// DecodeError is a response that arrived but could not be parsed into the
// expected shape. A malformed response will not self-correct, so decode
// errors are never retried; they still count against the circuit breaker
// because they mean the source is misbehaving.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode error: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Transient reports whether err is worth retrying. Network failures
// always are; status errors only when the server is the problem.
func Transient(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return false
}
