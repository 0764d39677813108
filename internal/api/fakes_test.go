package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clipstream/clipstream-core/internal/audit"
	"github.com/clipstream/clipstream-core/internal/auth"
	"github.com/clipstream/clipstream-core/internal/video"
)

// In-memory repository fakes. Handler tests exercise the HTTP layer
// against these instead of a live database.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User
	seq   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*auth.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return auth.ErrUsernameExists
		}
	}
	if user.ID == "" {
		r.seq++
		user.ID = fmt.Sprintf("usr-%08d", r.seq)
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (r *fakeUserRepo) List(_ context.Context) ([]auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return auth.ErrUserNotFound
	}
	stored.DisplayName = user.DisplayName
	stored.Email = user.Email
	stored.IsActive = user.IsActive
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	stored.PasswordHash = passwordHash
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return auth.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*auth.RefreshToken
	seq    int
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*auth.RefreshToken)}
}

func (r *fakeTokenRepo) Create(_ context.Context, token *auth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createLocked(token)
	return nil
}

func (r *fakeTokenRepo) createLocked(token *auth.RefreshToken) {
	if token.ID == "" {
		r.seq++
		token.ID = fmt.Sprintf("rt-%016d", r.seq)
	}
	if token.FamilyID == "" {
		r.seq++
		token.FamilyID = fmt.Sprintf("fam-%d", r.seq)
	}
	token.CreatedAt = time.Now().UTC()
	clone := *token
	r.tokens[token.ID] = &clone
}

func (r *fakeTokenRepo) GetByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			clone := *t
			return &clone, nil
		}
	}
	return nil, auth.ErrTokenInvalid
}

func (r *fakeTokenRepo) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return auth.ErrTokenInvalid
	}
	t.Revoked = true
	return nil
}

func (r *fakeTokenRepo) RevokeFamily(_ context.Context, familyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.FamilyID == familyID {
			t.Revoked = true
		}
	}
	return nil
}

func (r *fakeTokenRepo) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (r *fakeTokenRepo) RotateRefreshToken(_ context.Context, oldID string, newToken *auth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.tokens[oldID]
	if !ok || old.Revoked {
		return auth.ErrTokenRevoked
	}
	old.Revoked = true
	r.createLocked(newToken)
	return nil
}

func (r *fakeTokenRepo) ListActiveByUser(_ context.Context, userID string) ([]auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []auth.RefreshToken{}
	for _, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeVideoRepo struct {
	mu     sync.Mutex
	videos map[string]*video.Video
	seq    int
}

func newFakeVideoRepo() *fakeVideoRepo {
	return &fakeVideoRepo{videos: make(map[string]*video.Video)}
}

func (r *fakeVideoRepo) Create(_ context.Context, v *video.Video) error {
	if v.Title == "" {
		return video.ErrEmptyTitle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if v.ID == "" {
		v.ID = fmt.Sprintf("vid-%08d", r.seq)
	}
	if v.UploadID == "" {
		v.UploadID = fmt.Sprintf("up-%08d", r.seq)
	}
	if v.Status == "" {
		v.Status = video.StatusPending
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	clone := *v
	r.videos[v.ID] = &clone
	return nil
}

func (r *fakeVideoRepo) GetByID(_ context.Context, id string) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, video.ErrNotFound
	}
	clone := *v
	return &clone, nil
}

func (r *fakeVideoRepo) GetByUploadID(_ context.Context, uploadID string) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.byUploadIDLocked(uploadID)
	if v == nil {
		return nil, video.ErrNotFound
	}
	clone := *v
	return &clone, nil
}

func (r *fakeVideoRepo) byUploadIDLocked(uploadID string) *video.Video {
	for _, v := range r.videos {
		if v.UploadID == uploadID {
			return v
		}
	}
	return nil
}

func (r *fakeVideoRepo) List(_ context.Context, filter video.Filter) ([]video.Video, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, video.ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []video.Video{}
	for _, v := range r.videos {
		if filter.OwnerID != "" && v.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeVideoRepo) Update(_ context.Context, v *video.Video) error {
	if v.Title == "" {
		return video.ErrEmptyTitle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.videos[v.ID]
	if !ok {
		return video.ErrNotFound
	}
	stored.Title = v.Title
	stored.Description = v.Description
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeVideoRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[id]; !ok {
		return video.ErrNotFound
	}
	delete(r.videos, id)
	return nil
}

func (r *fakeVideoRepo) IncrementViews(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return 0, video.ErrNotFound
	}
	v.Views++
	return v.Views, nil
}

func (r *fakeVideoRepo) MarkReady(_ context.Context, uploadID, playbackURL string, duration float64) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.byUploadIDLocked(uploadID)
	if v == nil {
		return nil, video.ErrNotFound
	}
	v.Status = video.StatusReady
	v.PlaybackURL = playbackURL
	v.Duration = duration
	v.UpdatedAt = time.Now().UTC()
	clone := *v
	return &clone, nil
}

func (r *fakeVideoRepo) MarkFailed(_ context.Context, uploadID string) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.byUploadIDLocked(uploadID)
	if v == nil {
		return nil, video.ErrNotFound
	}
	v.Status = video.StatusFailed
	v.UpdatedAt = time.Now().UTC()
	clone := *v
	return &clone, nil
}

func (r *fakeVideoRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.videos)), nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []audit.AuditLog
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Create(_ context.Context, log *audit.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, *log)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logs := []audit.AuditLog{}
	for _, e := range r.entries {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		logs = append(logs, e)
	}
	return &audit.ListResult{Logs: logs, Total: int64(len(logs))}, nil
}
