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

// usersCollection is the backing store collection for user accounts.
const usersCollection = "users"

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// MongoUserRepository implements UserRepository against the backing store.
// Every operation acquires the shared connection through the store first.
type MongoUserRepository struct {
	store *store.Store
}

// NewUserRepository creates a new store-backed user repository.
func NewUserRepository(s *store.Store) *MongoUserRepository {
	return &MongoUserRepository{store: s}
}

// EnsureIndexes creates the unique username index. Called once at startup;
// index creation is idempotent.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating username index: %w", err)
	}
	return nil
}

// Create inserts a new user account. The ID is generated if empty.
func (r *MongoUserRepository) Create(ctx context.Context, user *User) error {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, bson.M{"_id": id})
}

// GetByUsername retrieves a user by their username.
func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, bson.M{"username": username})
}

// List returns all users ordered by creation date.
func (r *MongoUserRepository) List(ctx context.Context) ([]User, error) {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	cursor, err := coll.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return users, nil
}

// Update modifies a user's mutable fields (display_name, email, is_active).
func (r *MongoUserRepository) Update(ctx context.Context, user *User) error {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	user.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := coll.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{
			"display_name": user.DisplayName,
			"email":        user.Email,
			"is_active":    user.IsActive,
			"updated_at":   user.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword changes a user's password hash.
func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	result, err := coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"password_hash": passwordHash,
			"updated_at":    time.Now().UTC().Truncate(time.Millisecond),
		}},
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user account by ID.
func (r *MongoUserRepository) Delete(ctx context.Context, id string) error {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	result, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *MongoUserRepository) Count(ctx context.Context) (int64, error) {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}

	count, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// getUser executes a filter and decodes a single user result.
func (r *MongoUserRepository) getUser(ctx context.Context, filter bson.M) (*User, error) {
	coll, err := r.store.Collection(ctx, usersCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	var u User
	if err := coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}
