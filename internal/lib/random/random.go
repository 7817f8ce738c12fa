package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewSecret generates size cryptographically random bytes and returns them
// encoded as unpadded URL-safe base64. It is used for refresh tokens,
// session identifiers and OAuth state values.
func NewSecret(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random.NewSecret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
