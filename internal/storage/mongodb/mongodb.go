package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authd/internal/domain/models"
	"authd/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Storage struct {
	client   *mongo.Client
	database *mongo.Database
	users    *mongo.Collection
	counters *mongo.Collection
	tokens   *mongo.Collection
}

type userDoc struct {
	ID             int64     `bson:"_id"`
	Email          string    `bson:"email"`
	PassHash       []byte    `bson:"pass_hash"`
	Provider       string    `bson:"provider,omitempty"`
	ProviderUserID string    `bson:"provider_user_id,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

type refreshTokenDoc struct {
	ID        int64     `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	TokenHash string    `bson:"token_hash"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		database: db,
		users:    db.Collection("users"),
		counters: db.Collection("counters"),
		tokens:   db.Collection("refresh_tokens"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users.email unique
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	// users.(provider, provider_user_id) unique for provider-created users
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "provider", Value: 1}, {Key: "provider_user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(
			bson.D{{Key: "provider", Value: bson.D{{Key: "$exists", Value: true}}}},
		),
	})
	if err != nil {
		return fmt.Errorf("users.provider index: %w", err)
	}

	// refresh_tokens.expires_at index for the active-token scan and sweep
	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "expires_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.expires_at index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID atomically increments and returns the next ID for a given collection.
func (s *Storage) nextID(ctx context.Context, collectionName string) (int64, error) {
	filter := bson.D{{Key: "_id", Value: collectionName}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	if err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return 0, fmt.Errorf("next id for %s: %w", collectionName, err)
	}

	return counter.Value, nil
}

func (s *Storage) SaveUser(ctx context.Context, email string, passHash []byte) (int64, error) {
	const op = "storage.mongodb.SaveUser"

	id, err := s.nextID(ctx, "users")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	doc := userDoc{
		ID:        id,
		Email:     email,
		PassHash:  passHash,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.User"
	return s.findUser(ctx, op, bson.D{{Key: "email", Value: email}})
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.mongodb.UserByID"
	return s.findUser(ctx, op, bson.D{{Key: "_id", Value: userID}})
}

func (s *Storage) UserByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error) {
	const op = "storage.mongodb.UserByProvider"
	return s.findUser(ctx, op, bson.D{
		{Key: "provider", Value: provider},
		{Key: "provider_user_id", Value: providerUserID},
	})
}

func (s *Storage) SaveProviderUser(ctx context.Context, user models.User) (int64, error) {
	const op = "storage.mongodb.SaveProviderUser"

	id, err := s.nextID(ctx, "users")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	doc := userDoc{
		ID:             id,
		Email:          user.Email,
		PassHash:       user.PassHash,
		Provider:       user.Provider,
		ProviderUserID: user.ProviderUserID,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc

	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.User{
		ID:             doc.ID,
		Email:          doc.Email,
		PassHash:       doc.PassHash,
		Provider:       doc.Provider,
		ProviderUserID: doc.ProviderUserID,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

func (s *Storage) SaveRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	const op = "storage.mongodb.SaveRefreshToken"

	id, err := s.nextID(ctx, "refresh_tokens")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	doc := refreshTokenDoc{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ActiveRefreshTokens(ctx context.Context, now time.Time) ([]models.RefreshToken, error) {
	const op = "storage.mongodb.ActiveRefreshTokens"

	filter := bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}}}

	cursor, err := s.tokens.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var tokens []models.RefreshToken
	for cursor.Next(ctx) {
		var doc refreshTokenDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tokens = append(tokens, models.RefreshToken{
			ID:        doc.ID,
			UserID:    doc.UserID,
			TokenHash: doc.TokenHash,
			CreatedAt: doc.CreatedAt,
			ExpiresAt: doc.ExpiresAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// DeleteRefreshToken removes a record by id in one DeleteOne, so a revoke
// racing another revoke of the same token loses cleanly.
func (s *Storage) DeleteRefreshToken(ctx context.Context, id int64) error {
	const op = "storage.mongodb.DeleteRefreshToken"

	result, err := s.tokens.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}

	return nil
}

func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.mongodb.DeleteExpiredRefreshTokens"

	filter := bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now}}}}

	result, err := s.tokens.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return result.DeletedCount, nil
}
