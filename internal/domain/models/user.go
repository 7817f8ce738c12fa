package models

import "time"

// User represents an identity record. The password is stored only as a
// bcrypt hash. Provider fields are set for users created through an
// external identity provider.
type User struct {
	ID             int64
	Email          string
	PassHash       []byte
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}
