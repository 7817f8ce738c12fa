package models

import "time"

// Session represents a server-held session record. Unlike RefreshToken the
// identifier itself is the bearer secret: it doubles as the lookup key and
// is handed to the client as a cookie. ExpiresAt is fixed at creation and
// never extended; LastActivity is refreshed on each authenticated access
// for observability only.
type Session struct {
	ID           string
	UserID       int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	Data         map[string]string
}

// Expired reports whether the session's absolute lifetime has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
