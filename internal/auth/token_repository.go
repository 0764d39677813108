package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	store "github.com/clipstream/clipstream-core/internal/infrastructure/mongo"
)

// tokensCollection is the backing store collection for refresh tokens.
const tokensCollection = "refresh_tokens"

// TokenRepository defines the interface for refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	RotateRefreshToken(ctx context.Context, oldID string, newToken *RefreshToken) error
	ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error)
}

// MongoTokenRepository implements TokenRepository against the backing store.
type MongoTokenRepository struct {
	store *store.Store
}

// NewTokenRepository creates a new store-backed token repository.
func NewTokenRepository(s *store.Store) *MongoTokenRepository {
	return &MongoTokenRepository{store: s}
}

// EnsureIndexes creates token lookup indexes and the TTL index that reaps
// expired documents server-side. Called once at startup; idempotent.
func (r *MongoTokenRepository) EnsureIndexes(ctx context.Context) error {
	coll, err := r.store.Collection(ctx, tokensCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			// Expired tokens are useless for auth and only clutter the
			// collection; let the server reap them.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("creating token indexes: %w", err)
	}
	return nil
}

// Create inserts a new refresh token. The ID is generated if empty.
func (r *MongoTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	coll, err := r.store.Collection(ctx, tokensCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	if token.ID == "" {
		token.ID = "rt-" + uuid.NewString()[:16]
	}
	if token.FamilyID == "" {
		token.FamilyID = uuid.NewString()
	}
	token.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := coll.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a refresh token by its SHA-256 hash.
// Used during token refresh/logout when the client sends the raw token.
func (r *MongoTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	coll, err := r.store.Collection(ctx, tokensCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	var t RefreshToken
	if err := coll.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("getting refresh token by hash: %w", err)
	}
	return &t, nil
}

// Revoke marks a single refresh token as revoked.
func (r *MongoTokenRepository) Revoke(ctx context.Context, id string) error {
	return r.revokeWhere(ctx, bson.M{"_id": id}, "revoking token")
}

// RevokeFamily marks all tokens in a family as revoked.
// This is used for theft detection: if a revoked token is reused,
// the entire family is invalidated.
func (r *MongoTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	return r.revokeWhere(ctx, bson.M{"family_id": familyID}, "revoking token family")
}

// RevokeAllForUser marks all refresh tokens for a user as revoked.
// Used when changing password or admin force-logout.
func (r *MongoTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.revokeWhere(ctx, bson.M{"user_id": userID}, "revoking all tokens for user")
}

func (r *MongoTokenRepository) revokeWhere(ctx context.Context, filter bson.M, action string) error {
	coll, err := r.store.Collection(ctx, tokensCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	if _, err := coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"revoked": true}}); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// RotateRefreshToken revokes the consumed token and creates a new one in
// the same family. The two writes are sequential (multi-document
// transactions need a replica set); the revoke lands first, so the worst
// interleaving loses a rotation rather than leaving two live tokens.
func (r *MongoTokenRepository) RotateRefreshToken(ctx context.Context, oldID string, newToken *RefreshToken) error {
	coll, err := r.store.Collection(ctx, tokensCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	result, err := coll.UpdateOne(ctx,
		bson.M{"_id": oldID, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	if err != nil {
		return fmt.Errorf("revoking old token: %w", err)
	}
	if result.MatchedCount == 0 {
		// Someone consumed it first — treat as reuse upstream.
		return ErrTokenRevoked
	}

	if err := r.Create(ctx, newToken); err != nil {
		return fmt.Errorf("creating rotated token: %w", err)
	}
	return nil
}

// ListActiveByUser returns all non-revoked, non-expired tokens for a user.
func (r *MongoTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	coll, err := r.store.Collection(ctx, tokensCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	cursor, err := coll.Find(ctx, bson.M{
		"user_id":    userID,
		"revoked":    false,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer cursor.Close(ctx)

	tokens := []RefreshToken{}
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, fmt.Errorf("decoding tokens: %w", err)
	}
	return tokens, nil
}
