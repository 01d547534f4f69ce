// Package staging holds byte payloads for the duration of one processing
// step, either on disk or in memory.
package staging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrDiscarded = errors.New("asset discarded")

// Asset is a staged payload. It is owned by the step processing it and is
// discarded once that step ends.
type Asset struct {
	name      string
	path      string
	data      []byte
	discarded bool
}

// NewFileAsset stages the file at path under a display name.
func NewFileAsset(name, path string) *Asset {
	return &Asset{name: name, path: path}
}

// NewMemoryAsset stages data in memory under a display name.
func NewMemoryAsset(name string, data []byte) *Asset {
	return &Asset{name: name, data: data}
}

func (a *Asset) Name() string { return a.name }

// Path returns the backing file, or "" for in-memory assets.
func (a *Asset) Path() string { return a.path }

func (a *Asset) InMemory() bool { return a.path == "" }

// ReadSeekCloser is what Open returns; both *os.File and in-memory readers
// implement io.ReaderAt as well.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.ReaderAt
	io.Closer
}

type memReader struct {
	*bytes.Reader
}

func (memReader) Close() error { return nil }

// Open returns a reader over the current payload.
func (a *Asset) Open() (ReadSeekCloser, error) {
	if a.discarded {
		return nil, ErrDiscarded
	}
	if a.InMemory() {
		return memReader{bytes.NewReader(a.data)}, nil
	}
	return os.Open(a.path)
}

// Size returns the payload length in bytes.
func (a *Asset) Size() (int64, error) {
	if a.discarded {
		return 0, ErrDiscarded
	}
	if a.InMemory() {
		return int64(len(a.data)), nil
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Bytes returns the whole payload. Meant for small assets such as cover art.
func (a *Asset) Bytes() ([]byte, error) {
	if a.discarded {
		return nil, ErrDiscarded
	}
	if a.InMemory() {
		return a.data, nil
	}
	return os.ReadFile(a.path)
}

// Rewrite replaces the payload with what fn writes. The original stays
// untouched unless fn succeeds: disk assets are written to a sibling file
// and renamed over the original, memory assets are swapped.
func (a *Asset) Rewrite(fn func(src ReadSeekCloser, dst io.Writer) error) error {
	src, err := a.Open()
	if err != nil {
		return err
	}

	if a.InMemory() {
		var buf bytes.Buffer
		err := fn(src, &buf)
		src.Close()
		if err != nil {
			return err
		}
		a.data = buf.Bytes()
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), "."+filepath.Base(a.path)+".*.tmp")
	if err != nil {
		src.Close()
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	err = fn(src, tmp)
	src.Close()
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", a.path, err)
	}
	return nil
}

// Discard releases the payload and deletes the backing file if any.
func (a *Asset) Discard() error {
	if a.discarded {
		return nil
	}
	a.discarded = true
	a.data = nil
	if a.path == "" {
		return nil
	}
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
