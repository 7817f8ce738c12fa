package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"authd/internal/app/httpapp"
	"authd/internal/config"
	"authd/internal/domain/models"
	"authd/internal/http/authapi"
	"authd/internal/services/auth"
	"authd/internal/services/credentials"
	"authd/internal/services/oauth"
	"authd/internal/services/session"
	"authd/internal/services/vault"
	"authd/internal/storage/file"
	"authd/internal/storage/memory"
	"authd/internal/storage/mongodb"
	redisstorage "authd/internal/storage/redis"
	"authd/internal/storage/sqlite"
)

// userStorage is everything the account-holding backend must provide.
// Both the sqlite and mongodb storages satisfy it.
type userStorage interface {
	SaveUser(ctx context.Context, email string, passHash []byte) (int64, error)
	User(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID int64) (*models.User, error)
	UserByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error)
	SaveProviderUser(ctx context.Context, user models.User) (int64, error)
	SaveRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ActiveRefreshTokens(ctx context.Context, now time.Time) ([]models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id int64) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type App struct {
	HTTPSrv *httpapp.App

	sweep func(ctx context.Context) (int64, error)
}

// NewJWT wires the stateless token service: register, login, refresh,
// profile and logout over bearer tokens.
func NewJWT(logger *slog.Logger, cfg *config.Config) *App {
	storage := mustUserStorage(logger, cfg)

	creds, err := credentials.New(
		logger,
		storage,
		storage,
		cfg.Auth.MinPasswordLen,
		cfg.Auth.BcryptCost,
	)
	if err != nil {
		panic(err)
	}

	tokenVault := vault.New(logger, storage, cfg.Auth.RefreshTokenTTL, cfg.Auth.BcryptCost)
	authService := auth.New(logger, creds, tokenVault, cfg.Auth.Secret, cfg.Auth.AccessTokenTTL)

	server := authapi.New(logger, authService, creds)

	return &App{
		HTTPSrv: newHTTPApp(logger, server.Routes(), cfg),
		sweep:   tokenVault.Sweep,
	}
}

// NewOAuth wires the same token service plus the provider delegation
// endpoints.
func NewOAuth(logger *slog.Logger, cfg *config.Config) *App {
	storage := mustUserStorage(logger, cfg)

	creds, err := credentials.New(
		logger,
		storage,
		storage,
		cfg.Auth.MinPasswordLen,
		cfg.Auth.BcryptCost,
	)
	if err != nil {
		panic(err)
	}

	tokenVault := vault.New(logger, storage, cfg.Auth.RefreshTokenTTL, cfg.Auth.BcryptCost)
	authService := auth.New(logger, creds, tokenVault, cfg.Auth.Secret, cfg.Auth.AccessTokenTTL)

	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	flow := oauth.New(logger, client, cfg.OAuth, storage)

	server := authapi.NewWithOAuth(logger, authService, creds, flow)

	return &App{
		HTTPSrv: newHTTPApp(logger, server.Routes(), cfg),
		sweep:   tokenVault.Sweep,
	}
}

// NewSession wires the cookie flow on top of the configured session
// backend.
func NewSession(logger *slog.Logger, cfg *config.Config) *App {
	storage := mustUserStorage(logger, cfg)

	creds, err := credentials.New(
		logger,
		storage,
		storage,
		cfg.Auth.MinPasswordLen,
		cfg.Auth.BcryptCost,
	)
	if err != nil {
		panic(err)
	}

	store := mustSessionStore(cfg)
	sessions := session.New(logger, store, cfg.Sessions.TTL)

	server := authapi.NewSessionServer(
		logger,
		creds,
		sessions,
		cfg.Sessions.TTL,
		cfg.Sessions.Backend,
	)

	return &App{
		HTTPSrv: newHTTPApp(logger, server.Routes(), cfg),
		sweep:   sessions.Sweep,
	}
}

// Sweep removes whatever the wired service considers expired and returns
// the number of records dropped.
func (a *App) Sweep(ctx context.Context) (int64, error) {
	return a.sweep(ctx)
}

func newHTTPApp(logger *slog.Logger, handler http.Handler, cfg *config.Config) *httpapp.App {
	return httpapp.New(
		logger,
		handler,
		cfg.HTTP.Address,
		cfg.HTTP.Timeout,
		cfg.HTTP.IdleTimeout,
	)
}

func mustUserStorage(logger *slog.Logger, cfg *config.Config) userStorage {
	switch cfg.Storage.Backend {
	case "sqlite":
		storage, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			panic(err)
		}
		return storage
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		storage, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			panic(err)
		}
		return storage
	default:
		panic("unknown storage backend: " + cfg.Storage.Backend)
	}
}

func mustSessionStore(cfg *config.Config) session.Store {
	switch cfg.Sessions.Backend {
	case "sqlite":
		storage, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			panic(err)
		}
		return storage
	case "file":
		storage, err := file.New(cfg.Sessions.Dir)
		if err != nil {
			panic(err)
		}
		return storage
	case "memory":
		return memory.New()
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr: cfg.Redis.Address,
			DB:   cfg.Redis.DB,
		})
		return redisstorage.New(client)
	default:
		panic("unknown session backend: " + cfg.Sessions.Backend)
	}
}
