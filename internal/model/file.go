package model

import (
	"path"
	"strings"
)

// FileEntry is one file of a catalog item. Identifier points back to the
// owning item so downloads never need separate identifier plumbing.
type FileEntry struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Format     string `json:"format"`
	Source     string `json:"source"`
	Size       int64  `json:"size"`

	// Optional per-file overrides published by the catalog for derivative audio.
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Track  string `json:"track,omitempty"`
}

// Ext returns the lower-cased extension without the dot.
func (f FileEntry) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(f.Name)), ".")
}

// BaseName returns the last path element of Name.
func (f FileEntry) BaseName() string {
	return path.Base(f.Name)
}
