package models

import "time"

// RefreshToken represents a refresh token stored in the database.
// Only the bcrypt hash of the opaque secret is persisted; the plaintext
// exists solely in the response that delivered it to the client.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}
