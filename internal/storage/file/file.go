package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

// Storage keeps one JSON file per session under a directory. A record that
// cannot be parsed (a partial write, for example) is deleted and reported
// as not found, so the store heals itself. A single mutex serializes all
// operations: the filesystem gives no check-then-write atomicity, and an
// update racing a delete must not recreate the deleted file.
type Storage struct {
	mu  sync.Mutex
	dir string
}

type sessionFile struct {
	ID           string            `json:"id"`
	UserID       int64             `json:"user_id"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	LastActivity time.Time         `json:"last_activity"`
	Data         map[string]string `json:"data"`
}

func New(dir string) (*Storage, error) {
	const op = "storage.file.New"

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{dir: dir}, nil
}

func (s *Storage) SaveSession(_ context.Context, sess models.Session) error {
	const op = "storage.file.SaveSession"

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.sessionPath(sess.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return s.write(op, path, sess)
}

func (s *Storage) Session(_ context.Context, id string) (*models.Session, error) {
	const op = "storage.file.Session"

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.sessionPath(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var doc sessionFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Corrupt record: remove it and treat as absent.
		_ = os.Remove(path)
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	return &models.Session{
		ID:           doc.ID,
		UserID:       doc.UserID,
		CreatedAt:    doc.CreatedAt,
		ExpiresAt:    doc.ExpiresAt,
		LastActivity: doc.LastActivity,
		Data:         doc.Data,
	}, nil
}

func (s *Storage) UpdateSession(_ context.Context, sess models.Session) error {
	const op = "storage.file.UpdateSession"

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.sessionPath(sess.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	// Last writer wins; no merge semantics.
	return s.write(op, path, sess)
}

func (s *Storage) DeleteSession(_ context.Context, id string) error {
	const op = "storage.file.DeleteSession"

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.sessionPath(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteExpiredSessions scans the directory. Unparseable files count as
// expired and are removed as well.
func (s *Storage) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	const op = "storage.file.DeleteExpiredSessions"

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var deleted int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var doc sessionFile
		if err := json.Unmarshal(raw, &doc); err != nil {
			if os.Remove(path) == nil {
				deleted++
			}
			continue
		}

		if !doc.ExpiresAt.After(now) {
			if os.Remove(path) == nil {
				deleted++
			}
		}
	}

	return deleted, nil
}

func (s *Storage) write(op, path string, sess models.Session) error {
	doc := sessionFile{
		ID:           sess.ID,
		UserID:       sess.UserID,
		CreatedAt:    sess.CreatedAt,
		ExpiresAt:    sess.ExpiresAt,
		LastActivity: sess.LastActivity,
		Data:         sess.Data,
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// sessionPath rejects any identifier that could escape the session
// directory. Identifiers are unpadded URL-safe base64, so anything else is
// not one of ours.
func (s *Storage) sessionPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\.") {
		return "", errors.New("malformed session id")
	}
	return filepath.Join(s.dir, id+".json"), nil
}
