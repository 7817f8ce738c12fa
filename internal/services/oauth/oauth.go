package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"authd/internal/config"
	"authd/internal/domain/models"
	"authd/internal/lib/random"
	"authd/internal/lib/sl"
	"authd/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// ProviderName identifies the external identity provider in user records.
const ProviderName = "yandex"

var (
	ErrExchangeFailed = errors.New("provider exchange failed")
	ErrInvalidState   = errors.New("invalid state")
)

// Identity is the verified external identity the provider vouches for.
type Identity struct {
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarRef      string
}

// Service consumes the provider's authorization-code exchange and user-info
// endpoints as an opaque "code in, verified identity out" collaborator.
type Service struct {
	log    *slog.Logger
	client *http.Client
	cfg    config.OAuthConfig
	users  ProviderUserStore

	mu     sync.Mutex
	states map[string]time.Time
}

type ProviderUserStore interface {
	UserByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error)
	SaveProviderUser(ctx context.Context, user models.User) (int64, error)
}

// New returns a new instance of the Service. The HTTP client is injected
// so tests can point it at a fake provider.
func New(log *slog.Logger, client *http.Client, cfg config.OAuthConfig, users ProviderUserStore) *Service {
	return &Service{
		log:    log,
		client: client,
		cfg:    cfg,
		users:  users,
		states: make(map[string]time.Time),
	}
}

// AuthURL builds the provider authorization URL carrying a fresh one-time
// state value.
func (s *Service) AuthURL() (string, error) {
	const op = "oauth.AuthURL"

	state, err := s.newState()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	authURL, err := url.Parse(s.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", s.cfg.ClientID)
	query.Set("redirect_uri", s.cfg.RedirectURI)
	query.Set("state", state)
	authURL.RawQuery = query.Encode()

	return authURL.String(), nil
}

// ConsumeState accepts each issued state value at most once, and only
// within its lifetime.
func (s *Service) ConsumeState(state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuedAt, ok := s.states[state]
	delete(s.states, state)

	if !ok || time.Since(issuedAt) > s.cfg.StateTTL {
		return ErrInvalidState
	}

	return nil
}

// ExchangeCode trades an authorization code for the provider's verified
// identity claims.
func (s *Service) ExchangeCode(ctx context.Context, code string) (Identity, error) {
	const op = "oauth.ExchangeCode"
	log := s.log.With(slog.String("op", op))

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	form.Set("redirect_uri", s.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error("token request failed", sl.Err(err))
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("token exchange rejected", slog.Int("status", resp.StatusCode))
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}
	if payload.AccessToken == "" {
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}

	return s.FetchUserInfo(ctx, payload.AccessToken)
}

// FetchUserInfo resolves a provider access token to identity claims.
func (s *Service) FetchUserInfo(ctx context.Context, providerToken string) (Identity, error) {
	const op = "oauth.FetchUserInfo"
	log := s.log.With(slog.String("op", op))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.UserInfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "OAuth "+providerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error("user info request failed", sl.Err(err))
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("user info rejected", slog.Int("status", resp.StatusCode))
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}

	var payload struct {
		ID              string `json:"id"`
		DefaultEmail    string `json:"default_email"`
		RealName        string `json:"real_name"`
		DisplayName     string `json:"display_name"`
		DefaultAvatarID string `json:"default_avatar_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}
	if payload.ID == "" {
		return Identity{}, fmt.Errorf("%s: %w", op, ErrExchangeFailed)
	}

	name := payload.RealName
	if name == "" {
		name = payload.DisplayName
	}

	return Identity{
		ProviderUserID: payload.ID,
		Email:          payload.DefaultEmail,
		DisplayName:    name,
		AvatarRef:      payload.DefaultAvatarID,
	}, nil
}

// GetOrCreateUser maps a verified external identity onto a local user,
// creating one on first sight. Provider-created users get a random
// password hash nothing can ever match.
func (s *Service) GetOrCreateUser(ctx context.Context, identity Identity) (int64, error) {
	const op = "oauth.GetOrCreateUser"
	log := s.log.With(slog.String("op", op))

	user, err := s.users.UserByProvider(ctx, ProviderName, identity.ProviderUserID)
	switch {
	case err == nil:
		return user.ID, nil
	case !errors.Is(err, storage.ErrUserNotFound):
		log.Error("failed to look up provider user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	unusable, err := random.NewSecret(32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	passHash, err := bcrypt.GenerateFromPassword([]byte(unusable), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	email := identity.Email
	if email == "" {
		email = fmt.Sprintf("%s-%s@%s.local", ProviderName, identity.ProviderUserID, ProviderName)
	}

	userID, err := s.users.SaveProviderUser(ctx, models.User{
		Email:          email,
		PassHash:       passHash,
		Provider:       ProviderName,
		ProviderUserID: identity.ProviderUserID,
	})
	if err != nil {
		log.Error("failed to create provider user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("provider user created", slog.Int64("userID", userID))

	return userID, nil
}

func (s *Service) newState() (string, error) {
	state, err := random.NewSecret(24)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for v, issuedAt := range s.states {
		if now.Sub(issuedAt) > s.cfg.StateTTL {
			delete(s.states, v)
		}
	}
	s.states[state] = now

	return state, nil
}
