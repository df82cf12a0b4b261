package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a URL matches no catalog path.
	ErrNotFound = errors.New("category not found")
	// ErrRateLimited is returned on HTTP 429. For listings it means the
	// category is exhausted.
	ErrRateLimited = errors.New("upstream rate limit reached")
)

// NetworkError is a transport failure or a non-2xx status other than 429.
type NetworkError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Temporary reports whether a retry may succeed: transport failures and 5xx.
func (e *NetworkError) Temporary() bool {
	return e.Status == 0 || e.Status >= 500
}

// FormatError is a malformed upstream payload.
type FormatError struct {
	Op  string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: malformed payload: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// PersistError is a report write failure.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
