package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"authd/internal/domain/models"
	"authd/internal/storage"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// Storage is a networked-cache session backend. Expiry is enforced by the
// server through key TTLs, so sweeping is a no-op here.
type Storage struct {
	client *redis.Client
}

func New(client *redis.Client) *Storage {
	return &Storage{client: client}
}

func (s *Storage) SaveSession(ctx context.Context, sess models.Session) error {
	const op = "storage.redis.SaveSession"

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%s: session already expired", op)
	}

	if err := s.client.Set(ctx, keyPrefix+sess.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Session(ctx context.Context, id string) (*models.Session, error) {
	const op = "storage.redis.Session"

	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sess, nil
}

// UpdateSession writes only if the key still exists and keeps the
// remaining TTL, so activity never extends the session's lifetime.
func (s *Storage) UpdateSession(ctx context.Context, sess models.Session) error {
	const op = "storage.redis.UpdateSession"

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.client.SetXX(ctx, keyPrefix+sess.ID, raw, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	const op = "storage.redis.DeleteSession"

	deleted, err := s.client.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return nil
}

// DeleteExpiredSessions reports zero: the server already expired the keys.
func (s *Storage) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}
