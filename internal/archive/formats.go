package archive

import (
	"sort"
	"strings"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

type formatCategory struct {
	Label      string
	Extensions []string
	Audio      bool
	Image      bool
}

// formatTable is ordered: the first matching category wins and ties in the
// group ordering are broken by table position.
var formatTable = []formatCategory{
	{Label: "FLAC", Extensions: []string{"flac"}, Audio: true},
	{Label: "MP3", Extensions: []string{"mp3"}, Audio: true},
	{Label: "WAV", Extensions: []string{"wav"}, Audio: true},
	{Label: "OGG", Extensions: []string{"ogg", "oga"}, Audio: true},
	{Label: "MP4", Extensions: []string{"mp4", "m4v"}},
	{Label: "MKV", Extensions: []string{"mkv"}},
	{Label: "AVI", Extensions: []string{"avi"}},
	{Label: "PDF", Extensions: []string{"pdf"}},
	{Label: "EPUB", Extensions: []string{"epub"}},
	{Label: "TXT", Extensions: []string{"txt"}},
	{Label: "JPG", Extensions: []string{"jpg", "jpeg"}, Image: true},
	{Label: "PNG", Extensions: []string{"png"}, Image: true},
	{Label: "GIF", Extensions: []string{"gif"}, Image: true},
	{Label: "ZIP", Extensions: []string{"zip"}},
	{Label: "TORRENT", Extensions: []string{"torrent"}},
}

// nonPayloadSuffixes are catalog-generated sidecars that never count as content.
var nonPayloadSuffixes = []string{
	"_meta.xml",
	"_files.xml",
	"_reviews.xml",
	"_meta.sqlite",
	"_chocr.html",
	"_djvu.txt",
	"_djvu.xml",
	"__ia_thumb.jpg",
}

// IsAudioLabel reports whether files of the label are tagged and sent as audio.
func IsAudioLabel(label string) bool {
	c, ok := categoryByLabel(label)
	return ok && c.Audio
}

// ClassifyFormats buckets the item's payload files by format label. Groups
// are ordered by descending file count, ties by table position. Files inside
// a group are in natural name order, so "2 Song" precedes "10 Song" whatever
// order the catalog listed them in.
func ClassifyFormats(item model.ItemMetadata, minPayload int64) []model.FormatGroup {
	if minPayload <= 0 {
		minPayload = DefaultMinPayloadBytes
	}

	buckets := make(map[int][]model.FileEntry)
	for _, f := range item.Files {
		if !isPayload(f, minPayload) {
			continue
		}
		idx := categoryIndex(f.Ext())
		if idx < 0 {
			continue
		}
		if f.Identifier == "" {
			f.Identifier = item.Identifier
		}
		buckets[idx] = append(buckets[idx], f)
	}

	order := make([]int, 0, len(buckets))
	for idx := range buckets {
		order = append(order, idx)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if len(buckets[a]) != len(buckets[b]) {
			return len(buckets[a]) > len(buckets[b])
		}
		return a < b
	})

	groups := make([]model.FormatGroup, 0, len(order))
	for _, idx := range order {
		files := buckets[idx]
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].Name != files[j].Name {
				return naturalLess(files[i].Name, files[j].Name)
			}
			return files[i].Size < files[j].Size
		})
		groups = append(groups, model.FormatGroup{Label: formatTable[idx].Label, Files: files})
	}
	return groups
}

// naturalLess compares names case-insensitively with digit runs compared by
// value. Names equal under that rule fall back to byte order.
func naturalLess(a, b string) bool {
	x, y := strings.ToLower(a), strings.ToLower(b)
	for x != "" && y != "" {
		if isDigit(x[0]) && isDigit(y[0]) {
			nx, restX := digitRun(x)
			ny, restY := digitRun(y)
			nx, ny = strings.TrimLeft(nx, "0"), strings.TrimLeft(ny, "0")
			if len(nx) != len(ny) {
				return len(nx) < len(ny)
			}
			if nx != ny {
				return nx < ny
			}
			x, y = restX, restY
			continue
		}
		if x[0] != y[0] {
			return x[0] < y[0]
		}
		x, y = x[1:], y[1:]
	}
	if len(x) != len(y) {
		return len(x) < len(y)
	}
	return a < b
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func digitRun(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isPayload(f model.FileEntry, minPayload int64) bool {
	if f.Name == "" {
		return false
	}
	lower := strings.ToLower(f.Name)
	for _, suffix := range nonPayloadSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return f.Size >= minPayload
}

func categoryIndex(ext string) int {
	for i, c := range formatTable {
		for _, e := range c.Extensions {
			if e == ext {
				return i
			}
		}
	}
	return -1
}

func categoryByLabel(label string) (formatCategory, bool) {
	for _, c := range formatTable {
		if strings.EqualFold(c.Label, label) {
			return c, true
		}
	}
	return formatCategory{}, false
}
