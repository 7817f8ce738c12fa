package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TypeAccess is the mandatory token-type discriminator carried in every
// access token. An artifact issued for any other purpose never validates
// as an access token.
const TypeAccess = "access"

// Typed verification failures. All of them wrap ErrInvalidToken so the
// transport layer can collapse them into a single generic response while
// tests assert on the precise kind.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrMalformed        = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
	ErrExpired          = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrWrongType        = fmt.Errorf("%w: wrong token type", ErrInvalidToken)
)

// Claims is the payload of an access token.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewAccessToken creates a signed access token for the given user with the
// given lifetime.
func NewAccessToken(userID int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseAccessToken verifies the signature, then the expiry, then the token
// type, and returns the subject user id.
func ParseAccessToken(raw string, secret string) (int64, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return 0, ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return 0, ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return 0, ErrExpired
	case err != nil:
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	if claims.TokenType != TypeAccess {
		return 0, ErrWrongType
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrMalformed
	}

	return userID, nil
}
