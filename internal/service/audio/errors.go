package audio

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedContainer = errors.New("unsupported audio container")
	ErrFormatMismatch       = errors.New("content does not match file extension")
)

// TagError describes why a file was left untagged.
type TagError struct {
	Container string
	Op        string
	Err       error
}

func (e *TagError) Error() string {
	if e.Container == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Container, e.Err)
}

func (e *TagError) Unwrap() error {
	return e.Err
}
