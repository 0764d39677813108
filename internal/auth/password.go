package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Password storage uses Argon2id serialised in PHC string format, so the
// cost parameters travel with each hash and can be raised later without
// invalidating existing credentials.
const (
	hashTime      = 3         // iterations
	hashMemoryKiB = 64 * 1024 // 64 MiB working set
	hashThreads   = 1
	hashKeyLen    = 32
	hashSaltLen   = 16
)

// phcHash is the decoded form of a PHC-encoded Argon2id string:
// $argon2id$v=19$m=<KiB>,t=<iters>,p=<threads>$<salt>$<key>
type phcHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// HashPassword derives an Argon2id key from the password under a fresh
// random salt and returns the PHC-encoded result.
func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, hashTime, hashMemoryKiB, hashThreads, hashKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hashMemoryKiB, hashTime, hashThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// VerifyPassword re-derives the key from the candidate password using the
// parameters stored in the hash and compares in constant time. The error
// return is reserved for malformed hashes; a wrong password is (false, nil).
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.key))) //nolint:gosec // G115: key length bounded by the stored hash

	return subtle.ConstantTimeCompare(h.key, candidate) == 1, nil
}

// parsePHC splits and validates a PHC-encoded Argon2id string.
func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	// The leading "$" produces an empty first field.
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return h, errors.New("malformed password hash")
	}
	if fields[1] != "argon2id" {
		return h, fmt.Errorf("unexpected hash algorithm %q", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return h, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return h, fmt.Errorf("parsing hash parameters: %w", err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return h, fmt.Errorf("decoding salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return h, fmt.Errorf("decoding key: %w", err)
	}

	return h, nil
}
