package session

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
)

// 32 bytes of entropy per identifier; the id itself is the bearer secret.
const idSize = 32

var ErrSessionNotFound = errors.New("session not found")

// Service implements the session lifecycle over a pluggable backend. The
// backend is chosen at construction; verification logic never inspects
// which one it got.
type Service struct {
	log   *slog.Logger
	store Store
	ttl   time.Duration
}

// Store is the backend contract. Mutations on a given id are serialized by
// the backend; reads may run concurrently.
type Store interface {
	SaveSession(ctx context.Context, sess models.Session) error
	Session(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, sess models.Session) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// New returns a new instance of the Service.
func New(log *slog.Logger, store Store, ttl time.Duration) *Service {
	return &Service{
		log:   log,
		store: store,
		ttl:   ttl,
	}
}

// Create opens a session for the user. The expiry is fixed now and never
// extended by activity.
func (s *Service) Create(ctx context.Context, userID int64) (string, error) {
	const op = "session.Create"
	log := s.log.With(slog.String("op", op))

	id, err := random.NewSecret(idSize)
	if err != nil {
		log.Error("failed to generate session id", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()
	sess := models.Session{
		ID:           id,
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		LastActivity: now,
		Data:         map[string]string{},
	}

	if err := s.store.SaveSession(ctx, sess); err != nil {
		log.Error("failed to save session", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session created", slog.Int64("userID", userID))

	return id, nil
}

// Get returns the session only while it is unexpired. An expired record is
// removed on the way out.
func (s *Service) Get(ctx context.Context, id string) (*models.Session, error) {
	const op = "session.Get"

	sess, err := s.store.Session(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		s.log.Error("failed to get session", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if sess.Expired(time.Now()) {
		_ = s.store.DeleteSession(ctx, id)
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}

	return sess, nil
}

// Touch refreshes last_activity on an authenticated access and returns the
// session. The expiry stays where creation put it.
func (s *Service) Touch(ctx context.Context, id string) (*models.Session, error) {
	const op = "session.Touch"

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.LastActivity = time.Now()
	if err := s.store.UpdateSession(ctx, *sess); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		s.log.Error("failed to update session", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

// Update replaces the application payload and refreshes last_activity.
// Fails on an absent or expired session.
func (s *Service) Update(ctx context.Context, id string, data map[string]string) error {
	const op = "session.Update"

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	sess.Data = data
	sess.LastActivity = time.Now()

	if err := s.store.UpdateSession(ctx, *sess); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		s.log.Error("failed to update session", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Delete removes the session. Deleting an already-gone session reports
// ErrSessionNotFound; the transport treats that as success on logout.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "session.Delete"

	if err := s.store.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		s.log.Error("failed to delete session", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("session deleted", slog.String("op", op))

	return nil
}

// Sweep removes every expired record and returns how many went.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	const op = "session.Sweep"

	deleted, err := s.store.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		s.log.Error("failed to sweep sessions", slog.String("op", op), sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return deleted, nil
}
