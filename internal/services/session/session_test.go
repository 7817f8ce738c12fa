package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/storage/memory"
)

func newTestService(t *testing.T, ttl time.Duration) (*Service, *memory.Storage) {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(logger, store, ttl), store
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	id, err := svc.Create(context.Background(), 42)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sess.UserID)
	assert.Equal(t, id, sess.ID)
	assert.NotNil(t, sess.Data)
}

func TestCreate_UniqueIDs(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	first, err := svc.Create(context.Background(), 1)
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), 1)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestGet_Unknown(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, err := svc.Get(context.Background(), "no-such-session")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGet_ExpiredIsRemoved(t *testing.T) {
	svc, store := newTestService(t, -time.Minute)

	id, err := svc.Create(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), id)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// The expired record was dropped, not just hidden.
	_, err = store.Session(context.Background(), id)
	require.Error(t, err)
}

func TestTouch_BumpsActivityNotExpiry(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	id, err := svc.Create(context.Background(), 1)
	require.NoError(t, err)

	created, err := svc.Get(context.Background(), id)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	touched, err := svc.Touch(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, touched.LastActivity.After(created.LastActivity))
	assert.Equal(t, created.ExpiresAt.Unix(), touched.ExpiresAt.Unix())
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	id, err := svc.Create(context.Background(), 1)
	require.NoError(t, err)

	err = svc.Update(context.Background(), id, map[string]string{"theme": "dark"})
	require.NoError(t, err)

	sess, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "dark", sess.Data["theme"])
}

func TestUpdate_Unknown(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	err := svc.Update(context.Background(), "no-such-session", map[string]string{"k": "v"})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	id, err := svc.Create(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), id))

	_, err = svc.Get(context.Background(), id)
	require.ErrorIs(t, err, ErrSessionNotFound)

	err = svc.Delete(context.Background(), id)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweep(t *testing.T) {
	expired, store := newTestService(t, -time.Minute)

	_, err := expired.Create(context.Background(), 1)
	require.NoError(t, err)
	_, err = expired.Create(context.Background(), 2)
	require.NoError(t, err)

	live := New(slog.New(slog.NewTextHandler(io.Discard, nil)), store, time.Hour)
	keepID, err := live.Create(context.Background(), 3)
	require.NoError(t, err)

	deleted, err := live.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = live.Get(context.Background(), keepID)
	require.NoError(t, err)
}
