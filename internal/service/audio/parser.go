package audio

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dhowden/tag"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

var rawDateKeys = []string{"TDRC", "TYER", "TYE", "date", "DATE", "year", "YEAR"}

// readWithTag reads tags through the generic reader and maps them onto
// TrackMetadata. Dates come back verbatim where the container stores text.
func readWithTag(r io.ReadSeeker) (model.TrackMetadata, *Picture, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return model.TrackMetadata{}, nil, err
	}
	metadata, err := tag.ReadFrom(r)
	if err != nil {
		return model.TrackMetadata{}, nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return extractMetadata(metadata)
}

func extractMetadata(metadata tag.Metadata) (model.TrackMetadata, *Picture, error) {
	meta := model.TrackMetadata{
		Title:  metadata.Title(),
		Artist: metadata.Artist(),
		Album:  metadata.Album(),
		Date:   rawDate(metadata),
	}
	meta.TrackNumber, _ = metadata.Track()

	var pic *Picture
	if p := metadata.Picture(); p != nil && len(p.Data) > 0 {
		mime := p.MIMEType
		if mime == "" {
			mime = SniffImageMIME(p.Data)
		}
		pic = &Picture{MIME: mime, Data: p.Data}
	}
	return meta, pic, nil
}

func rawDate(metadata tag.Metadata) string {
	raw := metadata.Raw()
	for _, key := range rawDateKeys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	if y := metadata.Year(); y > 0 {
		return strconv.Itoa(y)
	}
	return ""
}
