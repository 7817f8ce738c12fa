package sqlite

import (
	"context"
	"fmt"
	"time"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

func (s *Storage) SaveRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	const op = "storage.sqlite.SaveRefreshToken"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)",
		userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ActiveRefreshTokens returns every record whose expiry is still in the
// future. Callers match the supplied plaintext against each stored hash.
func (s *Storage) ActiveRefreshTokens(ctx context.Context, now time.Time) ([]models.RefreshToken, error) {
	const op = "storage.sqlite.ActiveRefreshTokens"

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, created_at FROM refresh_tokens WHERE expires_at > ?",
		now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tokens []models.RefreshToken
	for rows.Next() {
		var t models.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// DeleteRefreshToken removes a record by its unique id in a single
// statement. Two concurrent revokes of the same token resolve here: the
// second delete affects zero rows and reports ErrTokenNotFound.
func (s *Storage) DeleteRefreshToken(ctx context.Context, id int64) error {
	const op = "storage.sqlite.DeleteRefreshToken"

	result, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}

	return nil
}

func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.sqlite.DeleteExpiredRefreshTokens"

	result, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return deleted, nil
}
