package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

func (s *Storage) SaveSession(ctx context.Context, sess models.Session) error {
	const op = "storage.sqlite.SaveSession"

	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at, last_activity, data) VALUES (?, ?, ?, ?, ?, ?)",
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt, sess.LastActivity, string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Session(ctx context.Context, id string) (*models.Session, error) {
	const op = "storage.sqlite.Session"

	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, created_at, expires_at, last_activity, data FROM sessions WHERE id = ?", id)

	var sess models.Session
	var data string

	err := row.Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastActivity, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal([]byte(data), &sess.Data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sess, nil
}

// UpdateSession replaces the payload and refreshes last_activity.
// expires_at is deliberately not touched: sessions have a fixed absolute
// lifetime from creation.
func (s *Storage) UpdateSession(ctx context.Context, sess models.Session) error {
	const op = "storage.sqlite.UpdateSession"

	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, data = ? WHERE id = ?",
		sess.LastActivity, string(data), sess.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	const op = "storage.sqlite.DeleteSession"

	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return nil
}

// DeleteExpiredSessions is a single range-delete on the expiry column.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.sqlite.DeleteExpiredSessions"

	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return deleted, nil
}
