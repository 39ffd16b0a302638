package catalog

import (
	"errors"
	"fmt"

	"go.trai.ch/zerr"
)

var (
	// ErrNotFound is returned when no entry has the requested ID.
	ErrNotFound = zerr.New("catalog entry not found")

	// ErrFetchFailed matches every FetchError via errors.Is.
	ErrFetchFailed = zerr.New("catalog fetch failed")
)

// FetchError reports a failed population of the catalog. It is retryable:
// the next call to Cache.Catalog issues a fresh fetch.
type FetchError struct {
	Query    string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("catalog fetch %q failed after %d attempts: %v", e.Query, e.Attempts, e.Err)
	}
	return fmt.Sprintf("catalog fetch %q failed: %v", e.Query, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFetchFailed) true for any FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// attempter is implemented by source errors that know how many requests
// were made before giving up.
type attempter interface {
	Attempts() int
}

func newFetchError(q Query, err error) *FetchError {
	fe := &FetchError{Query: q.Expression, Attempts: 1, Err: err}
	var a attempter
	if errors.As(err, &a) && a.Attempts() > 0 {
		fe.Attempts = a.Attempts()
	}
	return fe
}
