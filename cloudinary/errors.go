package cloudinary

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from Cloudinary.
type APIError struct {
	StatusCode int
	Message    string
	attempts   int
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("cloudinary: status %d: %s", e.StatusCode, msg)
}

// Attempts reports how many requests were made, retries included.
func (e *APIError) Attempts() int { return e.attempts }

// Temporary reports whether a later call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RequestError is a transport-level failure (DNS, connection, timeout).
type RequestError struct {
	Op       string
	Err      error
	attempts int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("cloudinary: %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Attempts reports how many requests were made, retries included.
func (e *RequestError) Attempts() int { return e.attempts }
