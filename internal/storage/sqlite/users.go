package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"authd/internal/domain/models"
	"authd/internal/storage"

	"github.com/mattn/go-sqlite3"
)

// SaveUser inserts a new user. The unique constraint on email makes the
// insert atomic per email: two concurrent registrations cannot both succeed.
func (s *Storage) SaveUser(ctx context.Context, email string, passHash []byte) (int64, error) {
	const op = "storage.sqlite.SaveUser"

	stmt, err := s.db.Prepare("INSERT INTO users (email, pass_hash) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, email, passHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return result.LastInsertId()
}

func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.User"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, created_at FROM users WHERE email = ?", email)

	return scanUser(row, op)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, created_at FROM users WHERE id = ?", userID)

	return scanUser(row, op)
}

// UserByProvider looks up a user created through an external identity
// provider by the provider's own user id.
func (s *Storage) UserByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error) {
	const op = "storage.sqlite.UserByProvider"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, created_at FROM users WHERE provider = ? AND provider_user_id = ?",
		provider, providerUserID)

	return scanUser(row, op)
}

// SaveProviderUser inserts a user record originating from an external
// identity provider.
func (s *Storage) SaveProviderUser(ctx context.Context, user models.User) (int64, error) {
	const op = "storage.sqlite.SaveProviderUser"

	stmt, err := s.db.Prepare(
		"INSERT INTO users (email, pass_hash, provider, provider_user_id) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, user.Email, user.PassHash, user.Provider, user.ProviderUserID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return result.LastInsertId()
}

func scanUser(row *sql.Row, op string) (*models.User, error) {
	var user models.User

	err := row.Scan(&user.ID, &user.Email, &user.PassHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}
