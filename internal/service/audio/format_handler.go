package audio

import (
	"io"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

// FormatHandler is one supported audio container. Each handler applies its
// container's native tag scheme; nothing is shared between them except the
// TrackMetadata they are given.
type FormatHandler interface {
	Format() string

	// Sniff reports whether header (the first bytes of the payload) has the
	// container's structure.
	Sniff(header []byte) bool

	// SupportsPicture is false for containers that cannot carry embedded art.
	SupportsPicture() bool

	// WriteTags copies src to dst with the tag container rewritten. The
	// audio payload is copied unchanged. pic may be nil.
	WriteTags(src io.ReadSeeker, dst io.Writer, meta model.TrackMetadata, pic *Picture) error

	ExtractDuration(r io.ReaderAt, size int64) (float64, error)
}

// tagReader is implemented by handlers whose containers the generic tag
// reader does not understand.
type tagReader interface {
	ReadTags(r io.ReadSeeker) (model.TrackMetadata, *Picture, error)
}
