// Package service implements the login, refresh, and logout flows: credential
// checks, single-session-per-device-class arbitration, and token issuance.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lanstar128/jjds-auth-service/internal/device"
	"github.com/lanstar128/jjds-auth-service/internal/policy/engine"
	"github.com/lanstar128/jjds-auth-service/internal/security"
	sessiondomain "github.com/lanstar128/jjds-auth-service/internal/session/domain"
	"github.com/lanstar128/jjds-auth-service/internal/session/store"
	userdomain "github.com/lanstar128/jjds-auth-service/internal/user/domain"
)

// Sentinel errors; the handler maps each to its response code.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrAccountDisabled     = errors.New("account is disabled")
	ErrPolicyDenied        = errors.New("login denied by policy")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrInvalidSession      = errors.New("session not found or already revoked")
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByPhone(ctx context.Context, phone string) (*userdomain.User, error)
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
}

// AuthResult is the outcome of a successful Login or Refresh.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	SessionID        string
	DeviceClass      device.Class
	EvictedSessionID string
	User             *userdomain.User
}

// AuthService implements phone/password login with same-class session
// eviction, refresh token rotation, and logout.
type AuthService struct {
	userRepo   UserRepo
	sessions   store.Store
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	policy     engine.Evaluator
	refreshTTL time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
// policy may be nil; every login is then allowed.
func NewAuthService(
	userRepo UserRepo,
	sessions store.Store,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	policy engine.Evaluator,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		policy:     policy,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL reports the access token lifetime, for expires_in responses.
func (s *AuthService) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

// Login authenticates phone/password, arbitrates the session slot for the
// caller's device class, and issues tokens. A previous session of the same
// user and class is evicted atomically with the new session's creation;
// sessions of other classes are untouched.
//
// The password is always checked before the account status so a caller with
// wrong credentials cannot probe whether an account is disabled.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	if verr := validateLogin(req); verr != nil {
		return nil, verr
	}
	phone := strings.TrimSpace(req.Phone)

	user, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(req.Password)); err != nil {
		return nil, ErrInvalidPassword
	}
	if user.Status != userdomain.UserStatusActive {
		return nil, ErrAccountDisabled
	}

	class := device.Classify(req.DeviceID)
	if class == device.ClassUnknown {
		return nil, &ValidationError{Field: "device_id", Message: "does not match a known device class"}
	}

	if s.policy != nil {
		decision, err := s.policy.EvaluateLogin(ctx, engine.LoginInput{
			UserID:      user.ID,
			Role:        user.Role,
			DeviceClass: string(class),
		})
		if err != nil {
			return nil, err
		}
		if !decision.Allow {
			return nil, fmt.Errorf("%w: %s", ErrPolicyDenied, decision.Reason)
		}
	}

	now := time.Now().UTC()
	sessionID := uuid.New().String()
	refreshToken, refreshHash, err := security.NewRefreshToken(sessionID)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		ID:          sessionID,
		UserID:      user.ID,
		DeviceClass: class,
		Metadata: sessiondomain.Metadata{
			ClientVersion: strings.TrimSpace(req.ClientVersion),
			SystemInfo:    strings.TrimSpace(req.SystemInfo),
			DeviceID:      strings.TrimSpace(req.DeviceID),
			IPAddress:     req.IPAddress,
		},
		RefreshTokenHash: refreshHash,
		RefreshExpiresAt: now.Add(s.refreshTTL),
		CreatedAt:        now,
	}
	evictedID, err := s.sessions.Upsert(ctx, sess)
	if err != nil {
		return nil, err
	}

	accessToken, accessExp, err := s.tokens.IssueAccess(user.ID, sessionID, user.Role, now)
	if err != nil {
		// The session exists but the caller never received tokens for
		// it; revoke so it cannot linger as an untokened slot holder.
		_ = s.sessions.Revoke(ctx, sessionID)
		return nil, err
	}

	return &AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresAt:        accessExp,
		SessionID:        sessionID,
		DeviceClass:      class,
		EvictedSessionID: evictedID,
		User:             user,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token, rotating
// the refresh token in the same step. A token whose session was evicted or
// revoked is rejected; eviction invalidates refresh tokens immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	sessionID := security.RefreshTokenSessionID(refreshToken)
	if sessionID == "" {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrInvalidRefreshToken
	}
	now := time.Now().UTC()
	if !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.userRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidRefreshToken
	}
	if user.Status != userdomain.UserStatusActive {
		return nil, ErrAccountDisabled
	}

	newRefresh, newHash, err := security.NewRefreshToken(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateRefreshToken(ctx, sessionID, newHash, now.Add(s.refreshTTL)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	_ = s.sessions.UpdateLastSeen(ctx, sessionID, now)

	accessToken, accessExp, err := s.tokens.IssueAccess(user.ID, sessionID, user.Role, now)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		SessionID:    sessionID,
		DeviceClass:  sess.DeviceClass,
		User:         user,
	}, nil
}

// Logout revokes the session named by the caller's access token. A session
// that is already gone (evicted or expired since the token was checked)
// yields ErrInvalidSession.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	ok, err := s.sessions.IsValid(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidSession
	}
	return s.sessions.Revoke(ctx, sessionID)
}
