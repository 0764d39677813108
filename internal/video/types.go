package video

import (
	"errors"
	"time"
)

// Status tracks a video through the upload pipeline.
type Status string

const (
	// StatusPending means metadata exists but the media file has not
	// finished processing at the CDN.
	StatusPending Status = "pending"
	// StatusReady means the media is transcoded and playable.
	StatusReady Status = "ready"
	// StatusFailed means CDN processing reported an error.
	StatusFailed Status = "failed"
)

// IsValid reports whether s is a known lifecycle status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusReady, StatusFailed:
		return true
	}
	return false
}

// Video is a catalog entry. PlaybackURL is empty until the CDN webhook
// marks the video ready.
type Video struct {
	ID          string    `bson:"_id" json:"id"`
	OwnerID     string    `bson:"owner_id" json:"owner_id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Status      Status    `bson:"status" json:"status"`
	UploadID    string    `bson:"upload_id" json:"upload_id"`
	PlaybackURL string    `bson:"playback_url,omitempty" json:"playback_url,omitempty"`
	Duration    float64   `bson:"duration,omitempty" json:"duration,omitempty"`
	Views       int64     `bson:"views" json:"views"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	OwnerID string
	Status  Status
	Limit   int64
	Offset  int64
}

var (
	// ErrNotFound indicates no video matched the given ID or upload ID.
	ErrNotFound = errors.New("video not found")
	// ErrInvalidStatus indicates an unknown lifecycle status value.
	ErrInvalidStatus = errors.New("invalid video status")
	// ErrEmptyTitle indicates a create or update with no title.
	ErrEmptyTitle = errors.New("video title is required")
)
