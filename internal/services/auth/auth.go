package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authd/internal/lib/jwt"
	"authd/internal/lib/sl"
	"authd/internal/services/vault"
)

var ErrInvalidToken = errors.New("invalid token")

// Auth drives the stateless token flow: password verification, access
// token issuance and the refresh/logout lifecycle of the opaque tokens.
type Auth struct {
	log       *slog.Logger
	creds     CredentialVerifier
	vault     TokenVault
	secret    string
	accessTTL time.Duration
}

type CredentialVerifier interface {
	Verify(
		ctx context.Context,
		email string,
		password string,
	) (uid int64, err error)
}

type TokenVault interface {
	Issue(ctx context.Context, userID int64) (token string, err error)
	Verify(ctx context.Context, token string) (uid int64, err error)
	Revoke(ctx context.Context, token string) error
}

// New returns a new instance of the Auth service.
func New(
	log *slog.Logger,
	creds CredentialVerifier,
	tokenVault TokenVault,
	secret string,
	accessTTL time.Duration,
) *Auth {
	return &Auth{
		log:       log,
		creds:     creds,
		vault:     tokenVault,
		secret:    secret,
		accessTTL: accessTTL,
	}
}

// Login authenticates the user and returns an access and refresh token.
func (a *Auth) Login(
	ctx context.Context,
	email string,
	password string,
) (accessToken, refreshToken string, err error) {
	const op = "auth.Login"
	log := a.log.With(slog.String("op", op))

	userID, err := a.creds.Verify(ctx, email, password)
	if err != nil {
		return "", "", err
	}

	accessToken, refreshToken, err = a.TokensForUser(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("userID", userID))

	return accessToken, refreshToken, nil
}

// TokensForUser issues a token pair for an already-verified identity.
// The OAuth callback uses this after the provider vouched for the user.
func (a *Auth) TokensForUser(ctx context.Context, userID int64) (accessToken, refreshToken string, err error) {
	const op = "auth.TokensForUser"
	log := a.log.With(slog.String("op", op))

	accessToken, err = jwt.NewAccessToken(userID, a.secret, a.accessTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err = a.vault.Issue(ctx, userID)
	if err != nil {
		log.Error("failed to issue refresh token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	return accessToken, refreshToken, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself stays valid and unchanged.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (accessToken string, err error) {
	const op = "auth.Refresh"
	log := a.log.With(slog.String("op", op))

	userID, err := a.vault.Verify(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, vault.ErrInvalidToken) {
			log.Warn("refresh token rejected")
			return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err = jwt.NewAccessToken(userID, a.secret, a.accessTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("access token refreshed", slog.Int64("userID", userID))

	return accessToken, nil
}

// Logout revokes the refresh token. Revoking a token that is already gone
// still succeeds, so logout is idempotent.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	if err := a.vault.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("user logged out", slog.String("op", op))

	return nil
}

// VerifyAccess resolves a bearer access token to a user id.
func (a *Auth) VerifyAccess(token string) (int64, error) {
	return jwt.ParseAccessToken(token, a.secret)
}
