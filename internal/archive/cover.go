package archive

import (
	"path"
	"strings"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

var coverCandidates = []string{"cover.jpg", "folder.jpg", "front.jpg", "albumart.jpg"}

// LocateCoverArt picks the item's cover image. Preference: the file named
// by item-level metadata, then a well-known cover filename, then the first
// payload image. Absence is reported as ErrNotFound and is never fatal.
func LocateCoverArt(item model.ItemMetadata, minPayload int64) (model.FileEntry, error) {
	if minPayload <= 0 {
		minPayload = DefaultMinPayloadBytes
	}
	withID := func(f model.FileEntry) model.FileEntry {
		if f.Identifier == "" {
			f.Identifier = item.Identifier
		}
		return f
	}

	if ref := strings.TrimSpace(item.CoverRef); ref != "" {
		refBase := strings.ToLower(path.Base(ref))
		for _, f := range item.Files {
			if strings.EqualFold(f.Name, ref) || strings.ToLower(f.BaseName()) == refBase {
				if c, ok := categoryByIndex(categoryIndex(f.Ext())); ok && c.Image {
					return withID(f), nil
				}
			}
		}
	}

	for _, candidate := range coverCandidates {
		for _, f := range item.Files {
			if strings.ToLower(f.BaseName()) == candidate {
				return withID(f), nil
			}
		}
	}

	for _, f := range item.Files {
		if !isPayload(f, minPayload) {
			continue
		}
		if c, ok := categoryByIndex(categoryIndex(f.Ext())); ok && c.Image {
			return withID(f), nil
		}
	}
	return model.FileEntry{}, ErrNotFound
}

func categoryByIndex(i int) (formatCategory, bool) {
	if i < 0 || i >= len(formatTable) {
		return formatCategory{}, false
	}
	return formatTable[i], true
}
