package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"authd/internal/domain/models"
	"authd/internal/lib/sl"
	"authd/internal/services/credentials"
	"authd/internal/services/session"
)

const sessionCookieName = "session_id"

type CredentialManager interface {
	Register(ctx context.Context, email, password string) (int64, error)
	Verify(ctx context.Context, email, password string) (int64, error)
	UserByID(ctx context.Context, userID int64) (*models.User, error)
}

type SessionManager interface {
	Create(ctx context.Context, userID int64) (string, error)
	Touch(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionServer is the REST surface of the cookie flow. Authentication
// state lives server side; the browser only carries an opaque session id.
type SessionServer struct {
	log      *slog.Logger
	creds    CredentialManager
	sessions SessionManager
	ttl      time.Duration
	backend  string
}

func NewSessionServer(
	log *slog.Logger,
	creds CredentialManager,
	sessions SessionManager,
	ttl time.Duration,
	backend string,
) *SessionServer {
	return &SessionServer{
		log:      log,
		creds:    creds,
		sessions: sessions,
		ttl:      ttl,
		backend:  backend,
	}
}

func (s *SessionServer) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("POST /logout", s.handleLogout)

	return RequestLogger(s.log)(mux)
}

type sessionInfoResponse struct {
	SessionID    string    `json:"session_id"`
	UserID       int64     `json:"user_id"`
	Backend      string    `json:"backend"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *SessionServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}

	if _, err := s.creds.Register(r.Context(), req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, credentials.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, credentials.ErrUserAlreadyExists):
			writeError(w, http.StatusBadRequest, "user with this email already exists")
		default:
			s.internalError(w, "register", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "user registered successfully"})
}

func (s *SessionServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}

	userID, err := s.creds.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.internalError(w, "login", err)
		return
	}

	sessionID, err := s.sessions.Create(r.Context(), userID)
	if err != nil {
		s.internalError(w, "login", err)
		return
	}

	s.setSessionCookie(w, sessionID, int(s.ttl.Seconds()))
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged in successfully"})
}

func (s *SessionServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}

	user, err := s.creds.UserByID(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, credentials.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.internalError(w, "profile", err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

func (s *SessionServer) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, sessionInfoResponse{
		SessionID:    truncateID(sess.ID),
		UserID:       sess.UserID,
		Backend:      s.backend,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
		ExpiresAt:    sess.ExpiresAt,
	})
}

// handleLogout destroys the session and clears the cookie. A missing or
// already-dead session still gets a 200: logout is idempotent.
func (s *SessionServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil &&
			!errors.Is(err, session.ErrSessionNotFound) {
			s.internalError(w, "logout", err)
			return
		}
	}

	s.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out successfully"})
}

// currentSession resolves the cookie to a live session, bumping its
// activity timestamp. On failure it writes the response itself.
func (s *SessionServer) currentSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, genericAuthFailure)
		return nil, false
	}

	sess, err := s.sessions.Touch(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.setSessionCookie(w, "", -1)
			writeError(w, http.StatusUnauthorized, genericAuthFailure)
			return nil, false
		}
		s.internalError(w, "session", err)
		return nil, false
	}

	return sess, true
}

func (s *SessionServer) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *SessionServer) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", slog.String("op", op), sl.Err(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// truncateID keeps responses from echoing a full usable session id.
func truncateID(id string) string {
	const keep = 8
	if len(id) <= keep {
		return id
	}
	return id[:keep] + "..."
}
