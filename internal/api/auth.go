package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/clipstream/clipstream-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// handleRegister creates a new user account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "username must be 1-64 characters: letters, digits, dots, hyphens, underscores")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if user.DisplayName == "" {
		user.DisplayName = req.Username
	}

	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeConflict(w, "username already taken")
			return
		}
		s.storeError(w, err, "failed to create account")
		return
	}

	s.auditLog("create", "user", user.ID, user.ID, map[string]any{"username": user.Username})

	writeJSON(w, http.StatusCreated, user)
}

// handleLogin authenticates a user and issues an access/refresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Burn time comparably to a real verify so missing users
			// are not distinguishable by response latency.
			_, _ = auth.VerifyPassword(req.Password, dummyHash) //nolint:errcheck // timing equalisation only
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.storeError(w, err, "login failed")
		return
	}

	if err := user.Authenticate(req.Password); err != nil {
		if errors.Is(err, auth.ErrUserInactive) {
			writeForbidden(w, "account is disabled")
			return
		}
		writeUnauthorized(w, "invalid credentials")
		return
	}

	resp, err := s.issueTokens(r.Context(), user, "", r.UserAgent())
	if err != nil {
		s.logger.Error("token issuance failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.auditLog("login", "user", user.ID, user.ID, nil)

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token and returns a new token pair.
// Reuse of an already-rotated token revokes the whole token family.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokens.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			writeUnauthorized(w, "invalid refresh token")
			return
		}
		s.storeError(w, err, "token refresh failed")
		return
	}

	if err := stored.Validate(time.Now()); err != nil {
		if errors.Is(err, auth.ErrTokenReuse) {
			// A rotated-away token came back: assume the family is compromised.
			if err := s.tokens.RevokeFamily(r.Context(), stored.FamilyID); err != nil {
				s.logger.Error("family revocation failed", "family_id", stored.FamilyID, "error", err)
			}
			s.auditLog("token_reuse", "token", stored.ID, stored.UserID, map[string]any{"family_id": stored.FamilyID})
			writeUnauthorized(w, "refresh token reuse detected")
			return
		}
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.users.GetByID(r.Context(), stored.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "invalid refresh token")
			return
		}
		s.storeError(w, err, "token refresh failed")
		return
	}
	if !user.IsActive {
		writeForbidden(w, "account is disabled")
		return
	}

	resp, err := s.rotateTokens(r.Context(), user, stored)
	if err != nil {
		if errors.Is(err, auth.ErrTokenRevoked) {
			// Lost the rotation race; treat as reuse
			writeUnauthorized(w, "refresh token reuse detected")
			return
		}
		s.logger.Error("token rotation failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "token refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the presented refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.RefreshToken == "" {
		// No token supplied: revoke every session for the user.
		if err := s.tokens.RevokeAllForUser(r.Context(), claims.Subject); err != nil {
			s.storeError(w, err, "logout failed")
			return
		}
	} else {
		stored, err := s.tokens.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
		if err != nil {
			if errors.Is(err, auth.ErrTokenInvalid) {
				// Already gone; logout is idempotent
				writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
				return
			}
			s.storeError(w, err, "logout failed")
			return
		}
		if stored.UserID != claims.Subject {
			writeForbidden(w, "token does not belong to this account")
			return
		}
		if err := s.tokens.Revoke(r.Context(), stored.ID); err != nil {
			s.storeError(w, err, "logout failed")
			return
		}
	}

	s.auditLog("logout", "user", claims.Subject, claims.Subject, nil)

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.storeError(w, err, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// issueTokens creates a fresh access/refresh token pair for a user.
// familyID is empty for a new login (a new family is created).
func (s *Server) issueTokens(ctx context.Context, user *auth.User, familyID, deviceInfo string) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = 15 // default 15 minutes
	}

	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	refreshTTL := s.secCfg.JWT.RefreshTokenTTL
	if refreshTTL == 0 {
		refreshTTL = 60 * 24 * 30 // default 30 days
	}

	token := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   familyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(time.Duration(refreshTTL) * time.Minute),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60, // seconds
	}, nil
}

// rotateTokens atomically retires the old refresh token and issues a new
// pair within the same family.
func (s *Server) rotateTokens(ctx context.Context, user *auth.User, old *auth.RefreshToken) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = 15
	}

	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	refreshTTL := s.secCfg.JWT.RefreshTokenTTL
	if refreshTTL == 0 {
		refreshTTL = 60 * 24 * 30
	}

	next := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   old.FamilyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: old.DeviceInfo,
		ExpiresAt:  time.Now().Add(time.Duration(refreshTTL) * time.Minute),
	}
	if err := s.tokens.RotateRefreshToken(ctx, old.ID, next); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60,
	}, nil
}

// dummyHash is a valid argon2id hash of a random string, verified against
// on unknown-user logins to keep response timing uniform.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$S4D5qEYdAMx0JDAxMTIzNA$o6hOeFfKe1qGGvl0Av+oXJTyA2Hn8bpbLJNqIwZs7Mo"

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	userID    string
	username  string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	ticket := generateTicket()

	s.tickets.mu.Lock()
	s.tickets.tickets[ticket] = ticketEntry{
		userID:    claims.Subject,
		username:  claims.Username,
		expiresAt: time.Now().Add(ticketTTL),
	}
	s.tickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// validateTicket checks if a ticket is valid and consumes it (single-use).
func (s *Server) validateTicket(ticket string) (ticketEntry, bool) {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	entry, ok := s.tickets.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	// Remove ticket (single-use)
	delete(s.tickets.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanExpiredTickets removes expired tickets from the store.
func (s *Server) cleanExpiredTickets() {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	now := time.Now()
	for ticket, entry := range s.tickets.tickets {
		if now.After(entry.expiresAt) {
			delete(s.tickets.tickets, ticket)
		}
	}
}

// cleanTicketsLoop runs cleanExpiredTickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanExpiredTickets()
		}
	}
}
