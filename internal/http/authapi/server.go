package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"authd/internal/domain/models"
	"authd/internal/lib/sl"
	"authd/internal/services/auth"
	"authd/internal/services/credentials"
	"authd/internal/services/oauth"
)

// genericAuthFailure is the single body every rejected credential gets.
// Expired, forged, wrong-type and absent artifacts are indistinguishable
// from outside.
const genericAuthFailure = "invalid or expired credentials"

type Auth interface {
	Login(
		ctx context.Context,
		email string,
		password string,
	) (accessToken, refreshToken string, err error)
	TokensForUser(ctx context.Context, userID int64) (accessToken, refreshToken string, err error)
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	Logout(ctx context.Context, refreshToken string) error
	VerifyAccess(token string) (userID int64, err error)
}

type UserRegistry interface {
	Register(
		ctx context.Context,
		email string,
		password string,
	) (uid int64, err error)
	UserByID(ctx context.Context, userID int64) (user *models.User, err error)
}

type OAuthFlow interface {
	AuthURL() (string, error)
	ConsumeState(state string) error
	ExchangeCode(ctx context.Context, code string) (oauth.Identity, error)
	GetOrCreateUser(ctx context.Context, identity oauth.Identity) (int64, error)
}

// Server is the REST surface of the stateless token flow. The OAuth routes
// are registered only when a flow is attached.
type Server struct {
	log   *slog.Logger
	auth  Auth
	users UserRegistry
	oauth OAuthFlow
}

func New(log *slog.Logger, authService Auth, users UserRegistry) *Server {
	return &Server{
		log:   log,
		auth:  authService,
		users: users,
	}
}

// NewWithOAuth returns a Server that also serves the provider delegation
// endpoints.
func NewWithOAuth(log *slog.Logger, authService Auth, users UserRegistry, flow OAuthFlow) *Server {
	s := New(log, authService, users)
	s.oauth = flow
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("POST /logout", s.handleLogout)

	if s.oauth != nil {
		mux.HandleFunc("GET /auth/start", s.handleOAuthStart)
		mux.HandleFunc("GET /auth/callback", s.handleOAuthCallback)
	}

	return RequestLogger(s.log)(mux)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type profileResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}

	if _, err := s.users.Register(r.Context(), req.Email, req.Password); err != nil {
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

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}

	accessToken, refreshToken, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.internalError(w, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !readJSON(w, r, &req) {
		return
	}

	accessToken, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, genericAuthFailure)
			return
		}
		s.internalError(w, "refresh", err)
		return
	}

	// The refresh token is returned unchanged; it stays valid until it
	// expires or is revoked.
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    "bearer",
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, genericAuthFailure)
		return
	}

	userID, err := s.auth.VerifyAccess(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, genericAuthFailure)
		return
	}

	user, err := s.users.UserByID(r.Context(), userID)
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

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !readJSON(w, r, &req) {
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.internalError(w, "logout", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out successfully"})
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.oauth.AuthURL()
	if err != nil {
		s.internalError(w, "oauth start", err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		writeError(w, http.StatusUnauthorized, genericAuthFailure)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "missing code or state")
		return
	}

	if err := s.oauth.ConsumeState(state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}

	identity, err := s.oauth.ExchangeCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, oauth.ErrExchangeFailed) {
			writeError(w, http.StatusUnauthorized, genericAuthFailure)
			return
		}
		s.internalError(w, "oauth callback", err)
		return
	}

	userID, err := s.oauth.GetOrCreateUser(r.Context(), identity)
	if err != nil {
		s.internalError(w, "oauth callback", err)
		return
	}

	accessToken, refreshToken, err := s.auth.TokensForUser(r.Context(), userID)
	if err != nil {
		s.internalError(w, "oauth callback", err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", slog.String("op", op), sl.Err(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}

	return token, true
}
