package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// User represents a registered account.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	DisplayName  string    `bson:"display_name" json:"display_name"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string    `bson:"password_hash" json:"-"` // never serialised
	IsActive     bool      `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// Authenticate checks the supplied password against the stored hash and
// confirms the account is usable. Returns ErrInvalidCredentials on a
// mismatch (or an unparseable hash) and ErrUserInactive for disabled
// accounts.
func (u *User) Authenticate(password string) error {
	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if !u.IsActive {
		return ErrUserInactive
	}
	return nil
}

// RefreshToken represents a stored refresh token for session management.
type RefreshToken struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	FamilyID   string    `bson:"family_id" json:"family_id"`
	TokenHash  string    `bson:"token_hash" json:"-"` // never serialised
	DeviceInfo string    `bson:"device_info,omitempty" json:"device_info,omitempty"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
	Revoked    bool      `bson:"revoked" json:"revoked"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// Validate reports whether the token can still be redeemed at the given
// time. A revoked token returns ErrTokenReuse so callers can treat the
// presentation as theft and kill the whole family; an expired one returns
// ErrTokenExpired.
func (t *RefreshToken) Validate(now time.Time) error {
	if t.Revoked {
		return ErrTokenReuse
	}
	if now.After(t.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
)
