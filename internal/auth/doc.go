// Package auth provides authentication and session management for Clipstream Core.
//
// It implements credential-based accounts with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Short-lived JWT access tokens validated by signature only (no DB hit)
//   - Rotating refresh tokens persisted in the backing store, with
//     family-based theft detection: reuse of an already-consumed token
//     revokes every token descended from the same login
//
// Raw refresh tokens are never stored — only their SHA-256 hashes. All
// persistence goes through the shared connection store; repositories
// acquire the connection before every operation.
package auth
