package archive

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

// flexString accepts a JSON string, number or array of strings. The catalog
// uses all three for the same metadata fields.
type flexString []string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = nil
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString{s}
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(flexString, 0, len(raw))
		for _, r := range raw {
			var item flexString
			if err := item.UnmarshalJSON(r); err != nil {
				return err
			}
			out = append(out, item...)
		}
		*f = out
	default:
		*f = flexString{string(data)}
	}
	return nil
}

func (f flexString) first() string {
	for _, s := range f {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func (f flexString) joined() string {
	var parts []string
	for _, s := range f {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// size parses a file size given as a string or number; anything else is 0.
func (f flexString) size() int64 {
	n, err := strconv.ParseInt(f.first(), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type metadataResponse struct {
	Metadata itemDTO   `json:"metadata"`
	Files    []fileDTO `json:"files"`
	Error    string    `json:"error"`
}

type itemDTO struct {
	Identifier flexString `json:"identifier"`
	Title      flexString `json:"title"`
	Creator    flexString `json:"creator"`
	Date       flexString `json:"date"`
	Year       flexString `json:"year"`
	Collection flexString `json:"collection"`
	Cover      flexString `json:"cover"`
	Image      flexString `json:"image"`
}

type fileDTO struct {
	Name    string     `json:"name"`
	Size    flexString `json:"size"`
	Format  string     `json:"format"`
	Source  string     `json:"source"`
	Title   flexString `json:"title"`
	Creator flexString `json:"creator"`
	Artist  flexString `json:"artist"`
	Album   flexString `json:"album"`
	Track   flexString `json:"track"`
}

func (r *metadataResponse) toModel(identifier string) model.ItemMetadata {
	item := model.ItemMetadata{
		Identifier: r.Metadata.Identifier.first(),
		Title:      r.Metadata.Title.first(),
		Creator:    r.Metadata.Creator.joined(),
		Date:       r.Metadata.Date.first(),
		Collection: r.Metadata.Collection.first(),
		CoverRef:   r.Metadata.Cover.first(),
	}
	if item.Identifier == "" {
		item.Identifier = identifier
	}
	if item.Date == "" {
		item.Date = r.Metadata.Year.first()
	}
	if item.CoverRef == "" {
		item.CoverRef = r.Metadata.Image.first()
	}

	item.Files = make([]model.FileEntry, 0, len(r.Files))
	for _, f := range r.Files {
		artist := f.Artist.first()
		if artist == "" {
			artist = f.Creator.first()
		}
		item.Files = append(item.Files, model.FileEntry{
			Identifier: item.Identifier,
			Name:       f.Name,
			Format:     f.Format,
			Source:     f.Source,
			Size:       f.Size.size(),
			Title:      f.Title.first(),
			Artist:     artist,
			Album:      f.Album.first(),
			Track:      f.Track.first(),
		})
	}
	return item
}
