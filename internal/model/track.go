package model

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	UnknownTitle  = "Unknown Title"
	UnknownArtist = "Unknown Artist"
)

// TrackMetadata is the tagging intent for one file. It only lives for the
// processing of that file.
type TrackMetadata struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	Date        string `json:"date"`
	TrackNumber int    `json:"track"`
}

var leadingTrackNumber = regexp.MustCompile(`^(\d{1,3})\s*[-._ ]\s*(.+)$`)

// NewTrackMetadata derives the tagging intent for a file from the item and
// the per-file overrides carried by the entry.
func NewTrackMetadata(item ItemMetadata, file FileEntry) TrackMetadata {
	meta := TrackMetadata{
		Artist: item.Creator,
		Album:  item.Title,
		Date:   item.Date,
	}

	title, number := titleFromFilename(file.BaseName())
	meta.Title = title
	meta.TrackNumber = number

	if file.Title != "" {
		meta.Title = file.Title
	}
	if file.Artist != "" {
		meta.Artist = file.Artist
	}
	if file.Album != "" {
		meta.Album = file.Album
	}
	if n := parseTrackNumber(file.Track); n > 0 {
		meta.TrackNumber = n
	}

	if meta.Artist == "" {
		meta.Artist = UnknownArtist
	}
	if meta.Album == "" {
		meta.Album = UnknownTitle
	}
	return meta
}

func titleFromFilename(name string) (string, int) {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if m := leadingTrackNumber.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return strings.TrimSpace(m[2]), n
	}
	return name, 0
}

// parseTrackNumber accepts "3" and "3/12".
func parseTrackNumber(s string) int {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
