package video

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

// videosCollection is the backing store collection for catalog entries.
const videosCollection = "videos"

// defaultListLimit caps unbounded list queries.
const defaultListLimit = 50

// Repository defines the interface for video catalog persistence.
type Repository interface {
	Create(ctx context.Context, v *Video) error
	GetByID(ctx context.Context, id string) (*Video, error)
	GetByUploadID(ctx context.Context, uploadID string) (*Video, error)
	List(ctx context.Context, filter Filter) ([]Video, error)
	Update(ctx context.Context, v *Video) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	MarkReady(ctx context.Context, uploadID, playbackURL string, duration float64) (*Video, error)
	MarkFailed(ctx context.Context, uploadID string) (*Video, error)
	Count(ctx context.Context) (int64, error)
}

// MongoRepository implements Repository against the backing store.
// Every operation acquires the shared connection through the store first.
type MongoRepository struct {
	store *store.Store
}

// NewRepository creates a new store-backed video repository.
func NewRepository(s *store.Store) *MongoRepository {
	return &MongoRepository{store: s}
}

// EnsureIndexes creates the upload_id and owner listing indexes. Called
// once at startup; index creation is idempotent.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "upload_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("creating video indexes: %w", err)
	}
	return nil
}

// Create inserts a new catalog entry in pending state. The ID and
// UploadID are generated if empty.
func (r *MongoRepository) Create(ctx context.Context, v *Video) error {
	if v.Title == "" {
		return ErrEmptyTitle
	}

	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	if v.ID == "" {
		v.ID = "vid-" + uuid.NewString()[:8]
	}
	if v.UploadID == "" {
		v.UploadID = "up-" + uuid.NewString()
	}
	if v.Status == "" {
		v.Status = StatusPending
	}
	if !v.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, v.Status)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	v.CreatedAt = now
	v.UpdatedAt = now

	if _, err := coll.InsertOne(ctx, v); err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// GetByID retrieves a video by its unique ID.
func (r *MongoRepository) GetByID(ctx context.Context, id string) (*Video, error) {
	return r.getVideo(ctx, bson.M{"_id": id})
}

// GetByUploadID retrieves a video by the CDN upload identifier.
func (r *MongoRepository) GetByUploadID(ctx context.Context, uploadID string) (*Video, error) {
	return r.getVideo(ctx, bson.M{"upload_id": uploadID})
}

// List returns videos matching the filter, newest first.
func (r *MongoRepository) List(ctx context.Context, filter Filter) ([]Video, error) {
	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	query := bson.M{}
	if filter.OwnerID != "" {
		query["owner_id"] = filter.OwnerID
	}
	if filter.Status != "" {
		if !filter.Status.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
		}
		query["status"] = filter.Status
	}

	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	if filter.Offset > 0 {
		opts.SetSkip(filter.Offset)
	}

	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	defer cursor.Close(ctx)

	videos := []Video{}
	if err := cursor.All(ctx, &videos); err != nil {
		return nil, fmt.Errorf("decoding videos: %w", err)
	}
	return videos, nil
}

// Update modifies a video's mutable metadata (title, description).
func (r *MongoRepository) Update(ctx context.Context, v *Video) error {
	if v.Title == "" {
		return ErrEmptyTitle
	}

	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	v.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := coll.UpdateOne(ctx,
		bson.M{"_id": v.ID},
		bson.M{"$set": bson.M{
			"title":       v.Title,
			"description": v.Description,
			"updated_at":  v.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("updating video: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a catalog entry by ID.
func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	result, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting video: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews atomically bumps the view counter and returns the new total.
func (r *MongoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}

	var updated Video
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"views": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("incrementing views: %w", err)
	}
	return updated.Views, nil
}

// MarkReady transitions a pending video to ready with its playback URL.
// Keyed by upload_id because that is the only identifier the CDN webhook carries.
func (r *MongoRepository) MarkReady(ctx context.Context, uploadID, playbackURL string, duration float64) (*Video, error) {
	return r.transition(ctx, uploadID, bson.M{
		"status":       StatusReady,
		"playback_url": playbackURL,
		"duration":     duration,
		"updated_at":   time.Now().UTC().Truncate(time.Millisecond),
	})
}

// MarkFailed transitions a pending video to failed.
func (r *MongoRepository) MarkFailed(ctx context.Context, uploadID string) (*Video, error) {
	return r.transition(ctx, uploadID, bson.M{
		"status":     StatusFailed,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	})
}

// Count returns the total number of catalog entries.
func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}

	count, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("counting videos: %w", err)
	}
	return count, nil
}

// transition applies a status update keyed by upload_id and returns the
// updated document.
func (r *MongoRepository) transition(ctx context.Context, uploadID string, set bson.M) (*Video, error) {
	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	var updated Video
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"upload_id": uploadID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating video status: %w", err)
	}
	return &updated, nil
}

// getVideo executes a filter and decodes a single video result.
func (r *MongoRepository) getVideo(ctx context.Context, filter bson.M) (*Video, error) {
	coll, err := r.store.Collection(ctx, videosCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	var v Video
	if err := coll.FindOne(ctx, filter).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting video: %w", err)
	}
	return &v, nil
}
