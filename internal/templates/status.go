package templates

import "time"

// StatusData is what the operator status page shows.
type StatusData struct {
	Channel   string
	StartedAt time.Time
	Sessions  int
	Running   int64
	Albums    int64
	Published int64
	Failed    int64
}

type statusRow struct {
	Name  string
	Value int64
}

func (d StatusData) rows() []statusRow {
	return []statusRow{
		{"Open sessions", int64(d.Sessions)},
		{"Running albums", d.Running},
		{"Albums started", d.Albums},
		{"Files published", d.Published},
		{"Files failed", d.Failed},
	}
}
