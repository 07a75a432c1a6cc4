package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Refresh tokens are opaque handles, not JWTs: eviction must invalidate them
// immediately, so every use is checked against the session store. The token
// embeds the session id so the store lookup needs no extra index, and only
// its SHA-256 hash is persisted.

// NewRefreshToken returns a fresh opaque refresh token for the session and
// the hash to persist on the session record.
func NewRefreshToken(sessionID string) (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = sessionID + "." + hex.EncodeToString(b)
	return token, HashRefreshToken(token), nil
}

// RefreshTokenSessionID extracts the session id from an opaque refresh
// token. Returns "" if the token does not have the expected shape.
func RefreshTokenSessionID(token string) string {
	id, rest, ok := strings.Cut(token, ".")
	if !ok || id == "" || rest == "" {
		return ""
	}
	return id
}

// HashRefreshToken returns the hex-encoded SHA-256 hash of the token.
// Stored instead of the raw token so a leaked database does not leak
// usable refresh tokens.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenHashEqual compares the provided token's hash with the stored
// hash in constant time.
func RefreshTokenHashEqual(providedToken, storedHash string) bool {
	providedHash := HashRefreshToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
