package vault

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

const testBcryptCost = 4

// fakeTokenStore keeps refresh token records in memory.
type fakeTokenStore struct {
	tokens []models.RefreshToken
	nextID int64
}

func (f *fakeTokenStore) SaveRefreshToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	f.nextID++
	f.tokens = append(f.tokens, models.RefreshToken{
		ID:        f.nextID,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	})
	return nil
}

func (f *fakeTokenStore) ActiveRefreshTokens(_ context.Context, now time.Time) ([]models.RefreshToken, error) {
	var active []models.RefreshToken
	for _, tok := range f.tokens {
		if tok.ExpiresAt.After(now) {
			active = append(active, tok)
		}
	}
	return active, nil
}

func (f *fakeTokenStore) DeleteRefreshToken(_ context.Context, id int64) error {
	for i, tok := range f.tokens {
		if tok.ID == id {
			f.tokens = append(f.tokens[:i], f.tokens[i+1:]...)
			return nil
		}
	}
	return storage.ErrTokenNotFound
}

func (f *fakeTokenStore) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	var kept []models.RefreshToken
	var deleted int64
	for _, tok := range f.tokens {
		if tok.ExpiresAt.After(now) {
			kept = append(kept, tok)
		} else {
			deleted++
		}
	}
	f.tokens = kept
	return deleted, nil
}

func newTestVault(t *testing.T, ttl time.Duration) (*Vault, *fakeTokenStore) {
	t.Helper()

	store := &fakeTokenStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(logger, store, ttl, testBcryptCost), store
}

func TestIssueAndVerify(t *testing.T) {
	v, store := newTestVault(t, time.Hour)

	token, err := v.Issue(context.Background(), 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Only the hash is persisted.
	require.Len(t, store.tokens, 1)
	assert.NotEqual(t, token, store.tokens[0].TokenHash)

	userID, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestIssue_MultipleLiveTokens(t *testing.T) {
	v, _ := newTestVault(t, time.Hour)

	first, err := v.Issue(context.Background(), 1)
	require.NoError(t, err)

	second, err := v.Issue(context.Background(), 1)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Issuing a second token does not invalidate the first.
	userID, err := v.Verify(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)

	userID, err = v.Verify(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)
}

func TestVerify_UnknownToken(t *testing.T) {
	v, _ := newTestVault(t, time.Hour)

	_, err := v.Verify(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_ExpiredToken(t *testing.T) {
	v, _ := newTestVault(t, -time.Minute)

	token, err := v.Issue(context.Background(), 1)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	v, _ := newTestVault(t, time.Hour)

	token, err := v.Issue(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, v.Revoke(context.Background(), token))

	_, err = v.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke_Idempotent(t *testing.T) {
	v, _ := newTestVault(t, time.Hour)

	token, err := v.Issue(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, v.Revoke(context.Background(), token))
	require.NoError(t, v.Revoke(context.Background(), token))
	require.NoError(t, v.Revoke(context.Background(), "never-issued"))
}

func TestRevoke_LeavesOtherTokens(t *testing.T) {
	v, _ := newTestVault(t, time.Hour)

	keep, err := v.Issue(context.Background(), 1)
	require.NoError(t, err)

	drop, err := v.Issue(context.Background(), 2)
	require.NoError(t, err)

	require.NoError(t, v.Revoke(context.Background(), drop))

	userID, err := v.Verify(context.Background(), keep)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)
}

func TestSweep(t *testing.T) {
	v, store := newTestVault(t, -time.Minute)

	_, err := v.Issue(context.Background(), 1)
	require.NoError(t, err)
	_, err = v.Issue(context.Background(), 2)
	require.NoError(t, err)

	deleted, err := v.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Empty(t, store.tokens)

	// A second pass finds nothing.
	deleted, err = v.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
