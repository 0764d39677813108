// Package audit provides access to the audit_events collection for
// querying account and catalog activity history.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	store "github.com/clipstream/clipstream-core/internal/infrastructure/mongo"
)

// auditCollection is the backing store collection for audit events.
const auditCollection = "audit_events"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `bson:"_id" json:"id"`
	Action     string         `bson:"action" json:"action"`
	EntityType string         `bson:"entity_type" json:"entity_type"`
	EntityID   string         `bson:"entity_id,omitempty" json:"entity_id,omitempty"`
	UserID     string         `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Source     string         `bson:"source" json:"source"`
	Details    map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt  time.Time      `bson:"created_at" json:"created_at"`
}

// Filter controls which audit events to return.
type Filter struct {
	Action     string // optional: filter by action (create, update, delete, login, publish)
	EntityType string // optional: filter by entity type (user, video, token)
	EntityID   string // optional: filter by specific entity ID
	UserID     string // optional: filter by acting user
	Limit      int64  // default 50, max 200
	Offset     int64  // pagination offset
}

// ListResult contains the paginated audit event results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int64      `json:"total"`
	Limit  int64      `json:"limit"`
	Offset int64      `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// MongoRepository reads and writes audit events through the shared store.
type MongoRepository struct {
	store *store.Store
}

// NewRepository creates a new store-backed audit repository.
func NewRepository(s *store.Store) *MongoRepository {
	return &MongoRepository{store: s}
}

// EnsureIndexes creates the query indexes for the audit collection.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	coll, err := r.store.Collection(ctx, auditCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating audit indexes: %w", err)
	}
	return nil
}

// Create inserts a new audit event. The ID and CreatedAt are generated if empty.
func (r *MongoRepository) Create(ctx context.Context, log *AuditLog) error {
	coll, err := r.store.Collection(ctx, auditCollection)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}

	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	if _, err := coll.InsertOne(ctx, log); err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// List returns audit events matching the filter, ordered by most recent first.
func (r *MongoRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	coll, err := r.store.Collection(ctx, auditCollection)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	query := bson.M{}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.EntityType != "" {
		query["entity_type"] = filter.EntityType
	}
	if filter.EntityID != "" {
		query["entity_id"] = filter.EntityID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}

	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting audit events: %w", err)
	}

	cursor, err := coll.Find(ctx, query, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(filter.Limit).
		SetSkip(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer cursor.Close(ctx)

	logs := []AuditLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("decoding audit events: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
