package credentials

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

const (
	testMinPassword = 6
	testBcryptCost  = 4
	passDefaultLen  = 10
)

// fakeUserStore keeps users in memory behind the same contract the real
// backends expose.
type fakeUserStore struct {
	users  map[string]*models.User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (f *fakeUserStore) SaveUser(_ context.Context, email string, passHash []byte) (int64, error) {
	if _, ok := f.users[email]; ok {
		return 0, storage.ErrUserAlreadyExists
	}

	f.nextID++
	f.users[email] = &models.User{
		ID:       f.nextID,
		Email:    email,
		PassHash: passHash,
	}

	return f.nextID, nil
}

func (f *fakeUserStore) User(_ context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) UserByID(_ context.Context, userID int64) (*models.User, error) {
	for _, user := range f.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func newTestCredentials(t *testing.T) (*Credentials, *fakeUserStore) {
	t.Helper()

	store := newFakeUserStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	creds, err := New(logger, store, store, testMinPassword, testBcryptCost)
	require.NoError(t, err)

	return creds, store
}

func randomPassword() string {
	return gofakeit.Password(true, true, true, true, false, passDefaultLen)
}

func TestRegisterAndVerify(t *testing.T) {
	creds, _ := newTestCredentials(t)

	email := gofakeit.Email()
	password := randomPassword()

	userID, err := creds.Register(context.Background(), email, password)
	require.NoError(t, err)
	assert.NotZero(t, userID)

	verifiedID, err := creds.Verify(context.Background(), email, password)
	require.NoError(t, err)
	assert.Equal(t, userID, verifiedID)
}

func TestRegister_StoresHashNotPassword(t *testing.T) {
	creds, store := newTestCredentials(t)

	email := gofakeit.Email()
	password := randomPassword()

	_, err := creds.Register(context.Background(), email, password)
	require.NoError(t, err)

	user := store.users[email]
	require.NotNil(t, user)
	assert.NotContains(t, string(user.PassHash), password)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	creds, _ := newTestCredentials(t)

	email := gofakeit.Email()

	_, err := creds.Register(context.Background(), email, randomPassword())
	require.NoError(t, err)

	_, err = creds.Register(context.Background(), email, randomPassword())
	require.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	creds, _ := newTestCredentials(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "empty email", email: "", password: randomPassword()},
		{name: "bad email", email: "not-an-email", password: randomPassword()},
		{name: "short password", email: gofakeit.Email(), password: "12345"},
		{name: "empty password", email: gofakeit.Email(), password: ""},
		{name: "oversized password", email: gofakeit.Email(), password: strings.Repeat("a", 73)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := creds.Register(context.Background(), tt.email, tt.password)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	creds, _ := newTestCredentials(t)

	email := gofakeit.Email()

	_, err := creds.Register(context.Background(), email, randomPassword())
	require.NoError(t, err)

	_, err = creds.Verify(context.Background(), email, "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerify_UnknownEmail(t *testing.T) {
	creds, _ := newTestCredentials(t)

	_, err := creds.Verify(context.Background(), gofakeit.Email(), randomPassword())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserByID(t *testing.T) {
	creds, _ := newTestCredentials(t)

	email := gofakeit.Email()

	userID, err := creds.Register(context.Background(), email, randomPassword())
	require.NoError(t, err)

	user, err := creds.UserByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, email, user.Email)

	_, err = creds.UserByID(context.Background(), userID+1000)
	require.ErrorIs(t, err, ErrUserNotFound)
}
