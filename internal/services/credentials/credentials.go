package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"authd/internal/domain/models"
	"authd/internal/lib/sl"
	"authd/internal/storage"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt refuses inputs longer than 72 bytes.
const maxPasswordLen = 72

var (
	ErrValidation         = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
)

type Credentials struct {
	log         *slog.Logger
	saver       UserSaver
	provider    UserProvider
	validate    *validator.Validate
	minPassword int
	cost        int
	dummyHash   []byte
}

type UserSaver interface {
	SaveUser(
		ctx context.Context,
		email string,
		passHash []byte,
	) (uid int64, err error)
}

type UserProvider interface {
	User(
		ctx context.Context,
		email string,
	) (user *models.User, err error)
	UserByID(
		ctx context.Context,
		userID int64,
	) (user *models.User, err error)
}

// New returns a new instance of the Credentials service.
func New(
	log *slog.Logger,
	saver UserSaver,
	provider UserProvider,
	minPassword int,
	cost int,
) (*Credentials, error) {
	// Hashed once so Verify can burn a comparison when the email is
	// unknown; the miss then costs the same as a password mismatch.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("authd-no-such-user"), cost)
	if err != nil {
		return nil, fmt.Errorf("credentials.New: %w", err)
	}

	return &Credentials{
		log:         log,
		saver:       saver,
		provider:    provider,
		validate:    validator.New(),
		minPassword: minPassword,
		cost:        cost,
		dummyHash:   dummyHash,
	}, nil
}

// Register creates a new user with a randomized-salt bcrypt hash of the
// password. The email uniqueness check is insert-or-fail at the storage
// layer, never check-then-insert.
func (c *Credentials) Register(
	ctx context.Context,
	email string,
	password string,
) (int64, error) {
	const op = "credentials.Register"
	log := c.log.With(slog.String("op", op))

	if err := c.validate.Var(email, "required,email"); err != nil {
		return 0, fmt.Errorf("%w: email is not valid", ErrValidation)
	}
	if len(password) < c.minPassword {
		return 0, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, c.minPassword)
	}
	if len(password) > maxPasswordLen {
		return 0, fmt.Errorf("%w: password must be at most %d characters", ErrValidation, maxPasswordLen)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := c.saver.SaveUser(ctx, email, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists")
			return 0, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", userID))

	return userID, nil
}

// Verify checks the password against the stored hash. An unknown email and
// a wrong password both come back as ErrInvalidCredentials and both cost a
// bcrypt comparison.
func (c *Credentials) Verify(
	ctx context.Context,
	email string,
	password string,
) (int64, error) {
	const op = "credentials.Verify"
	log := c.log.With(slog.String("op", op))

	user, err := c.provider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
			log.Warn("user not found")
			return 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password")
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return user.ID, nil
}

// UserByID resolves a user id to its public record, for the profile path.
func (c *Credentials) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "credentials.UserByID"

	user, err := c.provider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		c.log.Error("failed to get user", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}
