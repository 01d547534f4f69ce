package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrNoIdentifier is returned when a URL does not name a catalog item.
	ErrNoIdentifier = errors.New("no item identifier in url")

	// ErrNotFound is returned when a lookup has no match, e.g. no cover art.
	ErrNotFound = errors.New("not found")
)

// FetchError describes a failed catalog or download request.
type FetchError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
