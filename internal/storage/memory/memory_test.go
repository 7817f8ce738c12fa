package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

func testSession(id string, ttl time.Duration) models.Session {
	now := time.Now()
	return models.Session{
		ID:           id,
		UserID:       1,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
		Data:         map[string]string{},
	}
}

func TestRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	sess := testSession("abc", time.Hour)
	sess.Data["theme"] = "dark"
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.Session(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Data["theme"])

	_, err = s.Session(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestCallerNeverAliasesStoredData(t *testing.T) {
	s := New()
	ctx := context.Background()

	sess := testSession("abc", time.Hour)
	require.NoError(t, s.SaveSession(ctx, sess))

	// Mutating what the caller handed in or got back must not leak into
	// the store.
	sess.Data["after-save"] = "x"

	got, err := s.Session(ctx, "abc")
	require.NoError(t, err)
	assert.NotContains(t, got.Data, "after-save")

	got.Data["after-read"] = "y"

	again, err := s.Session(ctx, "abc")
	require.NoError(t, err)
	assert.NotContains(t, again.Data, "after-read")
}

func TestUpdateAndDelete_NotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.UpdateSession(ctx, testSession("missing", time.Hour))
	require.ErrorIs(t, err, storage.ErrSessionNotFound)

	err = s.DeleteSession(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, testSession("live", time.Hour)))
	require.NoError(t, s.SaveSession(ctx, testSession("dead", -time.Minute)))

	deleted, err := s.DeleteExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.Session(ctx, "live")
	require.NoError(t, err)
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, testSession("shared", time.Hour)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.Session(ctx, "shared")
				_ = s.SaveSession(ctx, testSession("shared", time.Hour))
			}
		}()
	}
	wg.Wait()

	_, err := s.Session(ctx, "shared")
	require.NoError(t, err)
}
