package model

// ItemMetadata is a single catalog item. It is fetched once per request and
// not modified afterwards.
type ItemMetadata struct {
	Identifier string      `json:"identifier"`
	Title      string      `json:"title"`
	Creator    string      `json:"creator"`
	Date       string      `json:"date"`
	Collection string      `json:"collection"`
	CoverRef   string      `json:"coverRef"`
	Files      []FileEntry `json:"files"`
}

// FormatGroup is the set of item files matching one format label.
type FormatGroup struct {
	Label string      `json:"label"`
	Files []FileEntry `json:"files"`
}

// TotalSize sums the declared sizes of the group's files.
func (g FormatGroup) TotalSize() int64 {
	var total int64
	for _, f := range g.Files {
		total += f.Size
	}
	return total
}
