package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/staging"
)

const sniffSize = 64

// Result reports what Embed did to one file. Warning is set whenever the
// file was left as it was.
type Result struct {
	Container       string
	Tagged          bool
	PictureEmbedded bool
	PictureSkipped  bool
	Warning         error
}

// Tagger writes track metadata and cover art into staged audio files.
type Tagger struct{}

func NewTagger() *Tagger {
	return &Tagger{}
}

// Supports reports whether name has an extension with a tag writer.
func (t *Tagger) Supports(name string) bool {
	return getFormatHandlerByExtension(extension(name)) != nil
}

// Embed tags asset in place. Failures never propagate: the asset keeps its
// original bytes and the cause is returned in Result.Warning.
func (t *Tagger) Embed(ctx context.Context, asset *staging.Asset, meta model.TrackMetadata, cover *staging.Asset) Result {
	var res Result
	if err := ctx.Err(); err != nil {
		res.Warning = err
		return res
	}

	handler, err := t.detect(asset)
	if err != nil {
		res.Warning = err
		log.Printf("tagger: %s left untagged: %v", asset.Name(), err)
		return res
	}
	res.Container = handler.Format()

	var pic *Picture
	if cover != nil {
		data, err := cover.Bytes()
		if err != nil {
			log.Printf("tagger: cover %s unreadable: %v", cover.Name(), err)
		} else {
			pic = NewPicture(data)
		}
	}
	if pic != nil && !handler.SupportsPicture() {
		res.PictureSkipped = true
		pic = nil
	}

	err = asset.Rewrite(func(src staging.ReadSeekCloser, dst io.Writer) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic while writing tags: %v", r)
			}
		}()
		return handler.WriteTags(src, dst, meta, pic)
	})
	if err != nil {
		res.Warning = &TagError{Container: res.Container, Op: "write", Err: err}
		log.Printf("tagger: %s left untagged: %v", asset.Name(), res.Warning)
		return res
	}

	res.Tagged = true
	res.PictureEmbedded = pic != nil
	return res
}

// Duration returns the playing time of asset.
func (t *Tagger) Duration(asset *staging.Asset) (time.Duration, error) {
	handler, err := t.detect(asset)
	if err != nil {
		return 0, err
	}
	r, err := asset.Open()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	size, err := asset.Size()
	if err != nil {
		return 0, err
	}
	seconds, err := handler.ExtractDuration(r, size)
	if err != nil {
		return 0, &TagError{Container: handler.Format(), Op: "duration", Err: err}
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// ReadTags reads back the metadata and picture stored in asset.
func (t *Tagger) ReadTags(asset *staging.Asset) (model.TrackMetadata, *Picture, error) {
	handler, err := t.detect(asset)
	if err != nil {
		return model.TrackMetadata{}, nil, err
	}
	r, err := asset.Open()
	if err != nil {
		return model.TrackMetadata{}, nil, err
	}
	defer r.Close()
	if reader, ok := handler.(tagReader); ok {
		return reader.ReadTags(r)
	}
	return readWithTag(r)
}

// detect picks the handler by extension and confirms the content agrees.
func (t *Tagger) detect(asset *staging.Asset) (FormatHandler, error) {
	ext := extension(asset.Name())
	handler := getFormatHandlerByExtension(ext)
	if handler == nil {
		return nil, &TagError{Op: "detect", Err: fmt.Errorf("%w: %q", ErrUnsupportedContainer, ext)}
	}

	r, err := asset.Open()
	if err != nil {
		return nil, &TagError{Container: handler.Format(), Op: "detect", Err: err}
	}
	defer r.Close()

	header := make([]byte, sniffSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, &TagError{Container: handler.Format(), Op: "detect", Err: err}
	}
	if !handler.Sniff(header[:n]) {
		return nil, &TagError{Container: handler.Format(), Op: "detect", Err: ErrFormatMismatch}
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &TagError{Container: handler.Format(), Op: "detect", Err: err}
	}
	if _, fileType, err := tag.Identify(r); err == nil && fileType != tag.UnknownFileType {
		if other := getFormatHandlerByFileType(fileType); other != nil && other.Format() != handler.Format() {
			return nil, &TagError{Container: handler.Format(), Op: "detect", Err: fmt.Errorf("%w: looks like %s", ErrFormatMismatch, other.Format())}
		}
	}
	return handler, nil
}

func extension(name string) string {
	return strings.ToUpper(strings.TrimPrefix(path.Ext(name), "."))
}

func getFormatHandlerByExtension(ext string) FormatHandler {
	ext = strings.ToUpper(ext)
	if handler := getMP3Handler(ext); handler != nil {
		return handler
	}
	if handler := getFLACHandler(ext); handler != nil {
		return handler
	}
	if handler := getOGGHandler(ext); handler != nil {
		return handler
	}
	if handler := getWAVHandler(ext); handler != nil {
		return handler
	}
	return nil
}

func getFormatHandlerByFileType(fileType tag.FileType) FormatHandler {
	if handler := getMP3HandlerByFileType(fileType); handler != nil {
		return handler
	}
	if handler := getFLACHandlerByFileType(fileType); handler != nil {
		return handler
	}
	if handler := getOGGHandlerByFileType(fileType); handler != nil {
		return handler
	}
	return nil
}
