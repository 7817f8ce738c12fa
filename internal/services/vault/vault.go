package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authd/internal/domain/models"
	"authd/internal/lib/random"
	"authd/internal/lib/sl"
	"authd/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// 32 bytes of entropy per opaque secret.
const secretSize = 32

var ErrInvalidToken = errors.New("invalid refresh token")

// Vault issues opaque refresh tokens and persists only their bcrypt
// hashes. Verification scans the unexpired records and compares the
// supplied plaintext against each hash; bcrypt makes every candidate
// comparison cost the same whether or not it matches.
type Vault struct {
	log    *slog.Logger
	tokens TokenStore
	ttl    time.Duration
	cost   int
}

type TokenStore interface {
	SaveRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ActiveRefreshTokens(ctx context.Context, now time.Time) ([]models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id int64) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// New returns a new instance of the Vault.
func New(log *slog.Logger, tokens TokenStore, ttl time.Duration, cost int) *Vault {
	return &Vault{
		log:    log,
		tokens: tokens,
		ttl:    ttl,
		cost:   cost,
	}
}

// Issue generates a fresh opaque token for the user and stores its hash
// with the configured expiry. The plaintext is returned to the caller and
// never persisted or logged. Several live tokens per user are valid.
func (v *Vault) Issue(ctx context.Context, userID int64) (string, error) {
	const op = "vault.Issue"
	log := v.log.With(slog.String("op", op))

	raw, err := random.NewSecret(secretSize)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), v.cost)
	if err != nil {
		log.Error("failed to hash token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := time.Now().Add(v.ttl)
	if err := v.tokens.SaveRefreshToken(ctx, userID, string(hash), expiresAt); err != nil {
		log.Error("failed to save token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh token issued", slog.Int64("userID", userID))

	return raw, nil
}

// Verify resolves a plaintext token to the owning user id, or
// ErrInvalidToken if no unexpired record matches.
func (v *Vault) Verify(ctx context.Context, plaintext string) (int64, error) {
	const op = "vault.Verify"

	rec, err := v.match(ctx, op, plaintext)
	if err != nil {
		return 0, err
	}

	return rec.UserID, nil
}

// Revoke deletes the record matching the plaintext token. The delete is
// keyed by the record's unique id in a single statement, so a verify or a
// second revoke racing this call cannot observe a half-revoked token.
// Revoking a token that is already gone is a success.
func (v *Vault) Revoke(ctx context.Context, plaintext string) error {
	const op = "vault.Revoke"
	log := v.log.With(slog.String("op", op))

	rec, err := v.match(ctx, op, plaintext)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil
		}
		return err
	}

	if err := v.tokens.DeleteRefreshToken(ctx, rec.ID); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// Lost the race to another revoke; the token is gone either way.
			return nil
		}
		log.Error("failed to delete token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh token revoked", slog.Int64("userID", rec.UserID))

	return nil
}

// Sweep deletes every expired record and returns how many went.
func (v *Vault) Sweep(ctx context.Context) (int64, error) {
	const op = "vault.Sweep"

	deleted, err := v.tokens.DeleteExpiredRefreshTokens(ctx, time.Now())
	if err != nil {
		v.log.Error("failed to sweep tokens", slog.String("op", op), sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return deleted, nil
}

func (v *Vault) match(ctx context.Context, op, plaintext string) (*models.RefreshToken, error) {
	tokens, err := v.tokens.ActiveRefreshTokens(ctx, time.Now())
	if err != nil {
		v.log.Error("failed to load tokens", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i := range tokens {
		if bcrypt.CompareHashAndPassword([]byte(tokens[i].TokenHash), []byte(plaintext)) == nil {
			return &tokens[i], nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
}
