package upload

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/clipstream/clipstream-core/internal/infrastructure/config"
)

func testConfig() config.UploadConfig {
	return config.UploadConfig{
		Endpoint:     "https://cdn.example.com/upload",
		APIKey:       "test-api-key",
		Secret:       "test-secret",
		SignatureTTL: 600,
		Folder:       "clips",
	}
}

func TestNewSigner_RequiresCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.UploadConfig)
	}{
		{name: "missing endpoint", mutate: func(c *config.UploadConfig) { c.Endpoint = "" }},
		{name: "missing api key", mutate: func(c *config.UploadConfig) { c.APIKey = "" }},
		{name: "missing secret", mutate: func(c *config.UploadConfig) { c.Secret = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := NewSigner(cfg); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("NewSigner() error = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestSign_ProducesVerifiableParams(t *testing.T) {
	signer, err := NewSigner(testConfig())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	params, err := signer.Sign("up-abc123")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if params.URL != "https://cdn.example.com/upload" {
		t.Errorf("URL = %q", params.URL)
	}
	if params.UploadID != "up-abc123" {
		t.Errorf("UploadID = %q", params.UploadID)
	}
	if params.Expires != params.Timestamp+600 {
		t.Errorf("Expires = %d, want Timestamp+600", params.Expires)
	}
	if params.Signature == "" {
		t.Error("Signature should not be empty")
	}

	if err := signer.VerifyParams(params); err != nil {
		t.Errorf("VerifyParams() error = %v", err)
	}
}

func TestSign_EmptyUploadID(t *testing.T) {
	signer, err := NewSigner(testConfig())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	if _, err := signer.Sign(""); err == nil {
		t.Error("Sign() should reject an empty upload ID")
	}
}

func TestVerifyParams_DetectsTampering(t *testing.T) {
	signer, err := NewSigner(testConfig())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	params, err := signer.Sign("up-abc123")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	params.UploadID = "up-other"
	if err := signer.VerifyParams(params); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyParams() error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyParams_Expired(t *testing.T) {
	signer, err := NewSigner(testConfig())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	params, err := signer.Sign("up-abc123")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// Move the clock past the signature window
	signer.now = func() time.Time { return time.Unix(params.Expires+1, 0) }

	if err := signer.VerifyParams(params); !errors.Is(err, ErrSignatureExpired) {
		t.Errorf("VerifyParams() error = %v, want ErrSignatureExpired", err)
	}
}

func TestVerifyWebhook(t *testing.T) {
	signer, err := NewSigner(testConfig())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	body := []byte(`{"upload_id":"up-abc123","status":"ready"}`)
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	if err := signer.VerifyWebhook(body, signature); err != nil {
		t.Errorf("VerifyWebhook() error = %v", err)
	}

	if err := signer.VerifyWebhook(body, "deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyWebhook() error = %v, want ErrInvalidSignature", err)
	}

	if err := signer.VerifyWebhook(body, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyWebhook() with empty signature error = %v, want ErrInvalidSignature", err)
	}

	tampered := []byte(`{"upload_id":"up-other","status":"ready"}`)
	if err := signer.VerifyWebhook(tampered, signature); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyWebhook() with tampered body error = %v, want ErrInvalidSignature", err)
	}
}
