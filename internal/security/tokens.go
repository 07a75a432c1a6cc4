package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or fails
// signature/claim checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims holds the JWT claims of an access token. The subject is the
// user id; session_id binds the token to one session so revocation can be
// checked without a user lookup; role authorizes downstream endpoints
// without a store round-trip.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

// AccessIdentity is the verified content of an access token.
type AccessIdentity struct {
	UserID    int64
	SessionID string
	Role      string
}

// TokenProvider issues and validates JWT access tokens using RS256 or ES256.
// The signing key is loaded once at startup and never mutated; construct one
// provider and share it.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private
// key. issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// IssueAccess issues a short-lived access JWT bound to (user, session).
// Returns the signed token and its expiry.
func (p *TokenProvider) IssueAccess(userID int64, sessionID, role string, now time.Time) (string, time.Time, error) {
	now = now.UTC()
	expiresAt := now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		Role:      role,
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidToken
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateAccess parses and validates an access token (signature, exp, iss,
// aud) and returns the identity it carries. Callers must still confirm the
// session has not been revoked.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessIdentity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &AccessIdentity{
		UserID:    userID,
		SessionID: claims.SessionID,
		Role:      claims.Role,
	}, nil
}
