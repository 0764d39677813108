package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/clipstream/clipstream-core/internal/video"
)

// webhookSignatureHeader carries the CDN's HMAC digest of the callback body.
const webhookSignatureHeader = "X-Upload-Signature"

// signUploadRequest is the request body for POST /uploads/sign.
type signUploadRequest struct {
	VideoID string `json:"video_id"`
}

// uploadWebhook is the callback payload the CDN posts when processing
// finishes.
type uploadWebhook struct {
	UploadID    string  `json:"upload_id"`
	Status      string  `json:"status"` // "ready" or "failed"
	PlaybackURL string  `json:"playback_url"`
	Duration    float64 `json:"duration"`
	Error       string  `json:"error,omitempty"`
}

// handleSignUpload returns signed CDN upload parameters for a pending
// video owned by the caller. The browser posts the media file directly
// to the CDN with these parameters.
func (s *Server) handleSignUpload(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req signUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.VideoID == "" {
		writeBadRequest(w, "video_id is required")
		return
	}

	v, err := s.videos.GetByID(r.Context(), req.VideoID)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			writeNotFound(w, "video not found")
			return
		}
		s.storeError(w, err, "failed to load video")
		return
	}

	if v.OwnerID != claims.Subject {
		writeForbidden(w, "only the owner can upload to this video")
		return
	}
	if v.Status != video.StatusPending {
		writeConflict(w, "video already has media attached")
		return
	}

	params, err := s.signer.Sign(v.UploadID)
	if err != nil {
		s.logger.Error("upload signing failed", "video_id", v.ID, "error", err)
		writeInternalError(w, "failed to sign upload")
		return
	}

	writeJSON(w, http.StatusOK, params)
}

// handleUploadWebhook receives processing callbacks from the CDN and
// transitions the matching video to ready or failed. The request is
// authenticated by HMAC signature, not by user session.
func (s *Server) handleUploadWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "unreadable request body")
		return
	}

	if err := s.signer.VerifyWebhook(body, r.Header.Get(webhookSignatureHeader)); err != nil {
		s.logger.Warn("webhook signature rejected", "error", err)
		writeUnauthorized(w, "invalid webhook signature")
		return
	}

	var hook uploadWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if hook.UploadID == "" {
		writeBadRequest(w, "upload_id is required")
		return
	}

	switch hook.Status {
	case "ready":
		if hook.PlaybackURL == "" {
			writeBadRequest(w, "playback_url is required for ready status")
			return
		}
		v, err := s.videos.MarkReady(r.Context(), hook.UploadID, hook.PlaybackURL, hook.Duration)
		if err != nil {
			if errors.Is(err, video.ErrNotFound) {
				writeNotFound(w, "no video for upload_id")
				return
			}
			s.storeError(w, err, "failed to publish video")
			return
		}

		s.auditLog("publish", "video", v.ID, "", map[string]any{"upload_id": hook.UploadID})
		if s.hub != nil {
			s.hub.Broadcast(ChannelVideoPublished, v)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case "failed":
		v, err := s.videos.MarkFailed(r.Context(), hook.UploadID)
		if err != nil {
			if errors.Is(err, video.ErrNotFound) {
				writeNotFound(w, "no video for upload_id")
				return
			}
			s.storeError(w, err, "failed to record upload failure")
			return
		}

		s.logger.Warn("upload processing failed",
			"video_id", v.ID,
			"upload_id", hook.UploadID,
			"cdn_error", hook.Error,
		)
		s.auditLog("upload_failed", "video", v.ID, "", map[string]any{"error": hook.Error})
		if s.hub != nil {
			s.hub.Broadcast(ChannelVideoFailed, v)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		writeBadRequest(w, "unknown webhook status")
	}
}
