package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clipstream/clipstream-core/internal/video"
)

// createVideoRequest is the request body for POST /videos.
type createVideoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// updateVideoRequest is the request body for PATCH /videos/{id}.
type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// maxTitleLength bounds video titles.
const maxTitleLength = 200

// handleListVideos returns videos matching the query filters.
//
// Query parameters:
//   - owner: filter by owner user ID ("me" for the caller's own videos)
//   - status: filter by lifecycle status (pending, ready, failed)
//   - limit: max results (default 50)
//   - offset: pagination offset
func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := video.Filter{
		OwnerID: q.Get("owner"),
		Status:  video.Status(q.Get("status")),
	}
	if filter.OwnerID == "me" {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeUnauthorized(w, "authentication required")
			return
		}
		filter.OwnerID = claims.Subject
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.Offset = n
		}
	}

	videos, err := s.videos.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, video.ErrInvalidStatus) {
			writeBadRequest(w, "unknown status filter")
			return
		}
		s.storeError(w, err, "failed to list videos")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"videos": videos,
		"count":  len(videos),
	})
}

// handleCreateVideo registers a new pending video and returns it with
// its upload ID. The client then calls POST /uploads/sign to get signed
// CDN parameters for the actual media transfer.
func (s *Server) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "title is required")
		return
	}
	if len(req.Title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "title must be at most 200 characters")
		return
	}

	v := &video.Video{
		OwnerID:     claims.Subject,
		Title:       req.Title,
		Description: req.Description,
		Status:      video.StatusPending,
	}
	if err := s.videos.Create(r.Context(), v); err != nil {
		s.storeError(w, err, "failed to create video")
		return
	}

	s.auditLog("create", "video", v.ID, claims.Subject, map[string]any{"title": v.Title})

	writeJSON(w, http.StatusCreated, v)
}

// handleGetVideo returns a single video by ID.
func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVideo(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleUpdateVideo modifies a video's title or description.
// Only the owner may update a video.
func (s *Server) handleUpdateVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVideo(w, r)
	if !ok {
		return
	}

	claims := claimsFromContext(r.Context())
	if claims == nil || claims.Subject != v.OwnerID {
		writeForbidden(w, "only the owner can modify this video")
		return
	}

	var req updateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Title != nil {
		if *req.Title == "" || len(*req.Title) > maxTitleLength {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "title must be 1-200 characters")
			return
		}
		v.Title = *req.Title
	}
	if req.Description != nil {
		v.Description = *req.Description
	}

	if err := s.videos.Update(r.Context(), v); err != nil {
		if errors.Is(err, video.ErrNotFound) {
			writeNotFound(w, "video not found")
			return
		}
		s.storeError(w, err, "failed to update video")
		return
	}

	s.auditLog("update", "video", v.ID, claims.Subject, nil)

	writeJSON(w, http.StatusOK, v)
}

// handleDeleteVideo removes a video. Only the owner may delete it.
func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVideo(w, r)
	if !ok {
		return
	}

	claims := claimsFromContext(r.Context())
	if claims == nil || claims.Subject != v.OwnerID {
		writeForbidden(w, "only the owner can delete this video")
		return
	}

	if err := s.videos.Delete(r.Context(), v.ID); err != nil {
		if errors.Is(err, video.ErrNotFound) {
			writeNotFound(w, "video not found")
			return
		}
		s.storeError(w, err, "failed to delete video")
		return
	}

	s.auditLog("delete", "video", v.ID, claims.Subject, nil)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleRecordView bumps the view counter and records the view event to
// the analytics pipeline. Views only count on ready videos.
func (s *Server) handleRecordView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVideo(w, r)
	if !ok {
		return
	}

	if v.Status != video.StatusReady {
		writeConflict(w, "video is not ready for playback")
		return
	}

	views, err := s.videos.IncrementViews(r.Context(), v.ID)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			writeNotFound(w, "video not found")
			return
		}
		s.storeError(w, err, "failed to record view")
		return
	}

	viewerID := ""
	if claims := claimsFromContext(r.Context()); claims != nil {
		viewerID = claims.Subject
	}
	s.analytics.RecordView(v.ID, v.OwnerID, viewerID)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    v.ID,
		"views": views,
	})
}

// loadVideo fetches the video named in the URL, writing the error
// response itself when the lookup fails.
func (s *Server) loadVideo(w http.ResponseWriter, r *http.Request) (*video.Video, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "video ID is required")
		return nil, false
	}

	v, err := s.videos.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			writeNotFound(w, "video not found")
			return nil, false
		}
		s.storeError(w, err, "failed to load video")
		return nil, false
	}
	return v, true
}
