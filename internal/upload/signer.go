// Package upload produces signed direct-upload parameters for the video
// CDN and verifies the authenticity of its processing webhooks. Signing
// is HMAC-SHA256 over the sorted parameter string, so the API secret
// never leaves the server.
package upload

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clipstream/clipstream-core/internal/infrastructure/config"
)

var (
	// ErrNotConfigured indicates the CDN credentials are missing.
	ErrNotConfigured = errors.New("upload signer not configured")
	// ErrInvalidSignature indicates a webhook signature mismatch.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrSignatureExpired indicates a signature past its validity window.
	ErrSignatureExpired = errors.New("signature expired")
)

// SignedParams are returned to the browser so it can POST the media file
// directly to the CDN without the file transiting this server.
type SignedParams struct {
	URL       string `json:"url"`
	APIKey    string `json:"api_key"`
	UploadID  string `json:"upload_id"`
	Folder    string `json:"folder,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Expires   int64  `json:"expires"`
	Signature string `json:"signature"`
}

// Signer signs upload parameters and verifies webhook payloads.
type Signer struct {
	cfg config.UploadConfig
	now func() time.Time
}

// NewSigner creates a signer from the CDN configuration.
func NewSigner(cfg config.UploadConfig) (*Signer, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" || cfg.Secret == "" {
		return nil, ErrNotConfigured
	}
	return &Signer{cfg: cfg, now: time.Now}, nil
}

// Sign produces upload parameters bound to a single upload ID. The
// signature covers every parameter so none can be altered client-side.
func (s *Signer) Sign(uploadID string) (*SignedParams, error) {
	if uploadID == "" {
		return nil, errors.New("upload ID is required")
	}

	ts := s.now().Unix()
	ttl := s.cfg.GetSignatureTTL()
	expires := ts + int64(ttl.Seconds())

	params := map[string]string{
		"api_key":   s.cfg.APIKey,
		"upload_id": uploadID,
		"timestamp": strconv.FormatInt(ts, 10),
		"expires":   strconv.FormatInt(expires, 10),
	}
	if s.cfg.Folder != "" {
		params["folder"] = s.cfg.Folder
	}

	return &SignedParams{
		URL:       s.cfg.Endpoint,
		APIKey:    s.cfg.APIKey,
		UploadID:  uploadID,
		Folder:    s.cfg.Folder,
		Timestamp: ts,
		Expires:   expires,
		Signature: s.signature(params),
	}, nil
}

// VerifyWebhook checks the HMAC signature the CDN attaches to processing
// callbacks. body is the raw request payload, signature the hex digest
// from the X-Upload-Signature header.
func (s *Signer) VerifyWebhook(body []byte, signature string) error {
	if signature == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyParams re-checks a signed parameter set, used in tests and when
// the CDN echoes the original parameters back.
func (s *Signer) VerifyParams(p *SignedParams) error {
	if s.now().Unix() > p.Expires {
		return ErrSignatureExpired
	}

	params := map[string]string{
		"api_key":   p.APIKey,
		"upload_id": p.UploadID,
		"timestamp": strconv.FormatInt(p.Timestamp, 10),
		"expires":   strconv.FormatInt(p.Expires, 10),
	}
	if p.Folder != "" {
		params["folder"] = p.Folder
	}

	if !hmac.Equal([]byte(s.signature(params)), []byte(p.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// signature computes the hex HMAC-SHA256 digest over the parameters
// serialized as key=value pairs sorted by key and joined with "&".
func (s *Signer) signature(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}
