package model

import "time"

// Session is the short-lived state of one user's request.
type Session struct {
	Key       string
	UserID    int64
	ChatID    int64
	MessageID int
	URL       string
	Item      ItemMetadata
	Groups    []FormatGroup

	// Format is set once the user picks a group.
	Format  string
	Running bool

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is stale at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Group returns the format group at index i.
func (s *Session) Group(i int) (FormatGroup, bool) {
	if i < 0 || i >= len(s.Groups) {
		return FormatGroup{}, false
	}
	return s.Groups[i], true
}
