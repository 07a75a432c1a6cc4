package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lanstar128/jjds-auth-service/internal/device"
	"github.com/lanstar128/jjds-auth-service/internal/policy/engine"
	"github.com/lanstar128/jjds-auth-service/internal/security"
	sessiondomain "github.com/lanstar128/jjds-auth-service/internal/session/domain"
	"github.com/lanstar128/jjds-auth-service/internal/session/store"
	userdomain "github.com/lanstar128/jjds-auth-service/internal/user/domain"
)

// fakeUserRepo serves users from memory, keyed by phone and id.
type fakeUserRepo struct {
	byPhone map[string]*userdomain.User
	byID    map[int64]*userdomain.User
	err     error
}

func newFakeUserRepo(users ...*userdomain.User) *fakeUserRepo {
	r := &fakeUserRepo{
		byPhone: make(map[string]*userdomain.User),
		byID:    make(map[int64]*userdomain.User),
	}
	for _, u := range users {
		r.byPhone[u.Phone] = u
		r.byID[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByPhone(ctx context.Context, phone string) (*userdomain.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.byPhone[phone], nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int64) (*userdomain.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.byID[id], nil
}

// countingStore wraps a Store and records how many sessions were written.
type countingStore struct {
	store.Store
	upserts int
}

func (c *countingStore) Upsert(ctx context.Context, s *sessiondomain.Session) (string, error) {
	c.upserts++
	return c.Store.Upsert(ctx, s)
}

// denyAll denies every login with a fixed reason.
type denyAll struct{}

func (denyAll) EvaluateLogin(ctx context.Context, in engine.LoginInput) (*engine.Decision, error) {
	return &engine.Decision{Allow: false, Reason: "maintenance window"}, nil
}

func (denyAll) HealthCheck(ctx context.Context) error { return nil }

const (
	testPhone    = "13800138888"
	testPassword = "abc123"
)

func newTestService(t *testing.T, users ...*userdomain.User) (*AuthService, *countingStore, *fakeUserRepo) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider(time.Hour)
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	repo := newFakeUserRepo(users...)
	sessions := &countingStore{Store: store.NewMemoryStore()}
	svc := NewAuthService(repo, sessions, security.NewHasher(4), tokens, nil, 168*time.Hour)
	return svc, sessions, repo
}

func testUser(t *testing.T, id int64, status userdomain.UserStatus) *userdomain.User {
	t.Helper()
	hash, err := security.NewHasher(4).Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return &userdomain.User{
		ID:           id,
		Phone:        testPhone,
		PasswordHash: hash,
		Status:       status,
		Nickname:     "测试用户",
		Role:         userdomain.DefaultRole,
	}
}

func loginReq(deviceID string) *LoginRequest {
	return &LoginRequest{
		Phone:         testPhone,
		Password:      testPassword,
		ClientVersion: "2.1.0",
		SystemInfo:    "Windows 11 Pro",
		DeviceID:      deviceID,
		IPAddress:     "203.0.113.9",
	}
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newTestService(t, testUser(t, 42, userdomain.UserStatusActive))

	res, err := svc.Login(ctx, loginReq("client-windows-abc"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("Login returned empty tokens")
	}
	if res.User.ID != 42 {
		t.Errorf("user id = %d, want 42", res.User.ID)
	}
	if res.DeviceClass != device.ClassClient {
		t.Errorf("device class = %q, want client", res.DeviceClass)
	}
	if res.EvictedSessionID != "" {
		t.Errorf("evicted = %q, want none", res.EvictedSessionID)
	}

	ok, err := sessions.IsValid(ctx, res.SessionID)
	if err != nil || !ok {
		t.Fatalf("IsValid(%s) = %v, %v; want true", res.SessionID, ok, err)
	}
	sess, err := sessions.Get(ctx, res.SessionID)
	if err != nil || sess == nil {
		t.Fatalf("Get session: %v, %v", sess, err)
	}
	if sess.Metadata.DeviceID != "client-windows-abc" {
		t.Errorf("metadata device_id = %q", sess.Metadata.DeviceID)
	}
	if sess.Metadata.IPAddress != "203.0.113.9" {
		t.Errorf("metadata ip = %q", sess.Metadata.IPAddress)
	}
}

func TestLogin_SameClassEvictsPrior(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusActive))

	first, err := svc.Login(ctx, loginReq("client-windows-one"))
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second, err := svc.Login(ctx, loginReq("client-mac-two"))
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if second.EvictedSessionID != first.SessionID {
		t.Errorf("evicted = %q, want %q", second.EvictedSessionID, first.SessionID)
	}
	if ok, _ := sessions.IsValid(ctx, first.SessionID); ok {
		t.Error("first session still valid after same-class login")
	}
	if ok, _ := sessions.IsValid(ctx, second.SessionID); !ok {
		t.Error("second session not valid")
	}

	// The evicted session's refresh token must be dead immediately.
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh(evicted) = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestLogin_DifferentClassesCoexist(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusActive))

	web, err := svc.Login(ctx, loginReq("web-chrome-abc"))
	if err != nil {
		t.Fatalf("web Login: %v", err)
	}
	client, err := svc.Login(ctx, loginReq("client-windows-abc"))
	if err != nil {
		t.Fatalf("client Login: %v", err)
	}
	tool, err := svc.Login(ctx, loginReq("tool-scanner-abc"))
	if err != nil {
		t.Fatalf("tool Login: %v", err)
	}
	for _, res := range []*AuthResult{web, client, tool} {
		if res.EvictedSessionID != "" {
			t.Errorf("class %s evicted %q, want none", res.DeviceClass, res.EvictedSessionID)
		}
		if ok, _ := sessions.IsValid(ctx, res.SessionID); !ok {
			t.Errorf("class %s session not valid", res.DeviceClass)
		}
	}
}

func TestLogin_UnknownPhone(t *testing.T) {
	svc, sessions, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusActive))
	req := loginReq("client-windows-abc")
	req.Phone = "13900000000"
	_, err := svc.Login(context.Background(), req)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Login = %v, want ErrUserNotFound", err)
	}
	if sessions.upserts != 0 {
		t.Errorf("failed login wrote %d sessions", sessions.upserts)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, sessions, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusActive))
	req := loginReq("client-windows-abc")
	req.Password = "wrong-password"
	_, err := svc.Login(context.Background(), req)
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("Login = %v, want ErrInvalidPassword", err)
	}
	if sessions.upserts != 0 {
		t.Errorf("failed login wrote %d sessions", sessions.upserts)
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	svc, _, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusDisabled))

	_, err := svc.Login(context.Background(), loginReq("client-windows-abc"))
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("Login = %v, want ErrAccountDisabled", err)
	}

	// Wrong password on a disabled account reads as a password failure, so
	// callers without credentials cannot probe account status.
	req := loginReq("client-windows-abc")
	req.Password = "wrong-password"
	_, err = svc.Login(context.Background(), req)
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("Login = %v, want ErrInvalidPassword before status", err)
	}
}

func TestLogin_UnclassifiableDevice(t *testing.T) {
	svc, sessions, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusActive))
	_, err := svc.Login(context.Background(), loginReq("kiosk-terminal-7"))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "device_id" {
		t.Fatalf("Login = %v, want device_id validation error", err)
	}
	if sessions.upserts != 0 {
		t.Errorf("failed login wrote %d sessions", sessions.upserts)
	}
}

func TestLogin_PolicyDenied(t *testing.T) {
	tokens, err := security.NewTestTokenProvider(time.Hour)
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	repo := newFakeUserRepo(testUser(t, 1, userdomain.UserStatusActive))
	sessions := &countingStore{Store: store.NewMemoryStore()}
	svc := NewAuthService(repo, sessions, security.NewHasher(4), tokens, denyAll{}, 168*time.Hour)

	_, err = svc.Login(context.Background(), loginReq("client-windows-abc"))
	if !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("Login = %v, want ErrPolicyDenied", err)
	}
	if sessions.upserts != 0 {
		t.Errorf("denied login wrote %d sessions", sessions.upserts)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testUser(t, 7, userdomain.UserStatusActive))

	login, err := svc.Login(ctx, loginReq("web-chrome-abc"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.SessionID != login.SessionID {
		t.Errorf("session id changed across refresh: %q != %q", refreshed.SessionID, login.SessionID)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if refreshed.User.ID != 7 {
		t.Errorf("user id = %d, want 7", refreshed.User.ID)
	}

	// The superseded token is single-use.
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh(old token) = %v, want ErrInvalidRefreshToken", err)
	}
	// The rotated token still works.
	if _, err := svc.Refresh(ctx, refreshed.RefreshToken); err != nil {
		t.Errorf("Refresh(new token): %v", err)
	}
}

func TestRefresh_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusActive))

	for _, token := range []string{"", "garbage", "no-session.deadbeef"} {
		if _, err := svc.Refresh(ctx, token); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("Refresh(%q) = %v, want ErrInvalidRefreshToken", token, err)
		}
	}
}

func TestRefresh_DisabledUser(t *testing.T) {
	ctx := context.Background()
	user := testUser(t, 1, userdomain.UserStatusActive)
	svc, _, repo := newTestService(t, user)

	login, err := svc.Login(ctx, loginReq("client-windows-abc"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	repo.byID[1].Status = userdomain.UserStatusDisabled
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("Refresh = %v, want ErrAccountDisabled", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newTestService(t, testUser(t, 1, userdomain.UserStatusActive))

	web, err := svc.Login(ctx, loginReq("web-chrome-abc"))
	if err != nil {
		t.Fatalf("web Login: %v", err)
	}
	client, err := svc.Login(ctx, loginReq("client-windows-abc"))
	if err != nil {
		t.Fatalf("client Login: %v", err)
	}

	if err := svc.Logout(ctx, web.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if ok, _ := sessions.IsValid(ctx, web.SessionID); ok {
		t.Error("session still valid after logout")
	}
	if _, err := svc.Refresh(ctx, web.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh after logout = %v, want ErrInvalidRefreshToken", err)
	}

	// The other class is untouched.
	if ok, _ := sessions.IsValid(ctx, client.SessionID); !ok {
		t.Error("other class session lost on logout")
	}

	// Logging out a dead session is an auth failure, not a no-op.
	if err := svc.Logout(ctx, web.SessionID); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("second Logout = %v, want ErrInvalidSession", err)
	}
}
