package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanstar128/jjds-auth-service/internal/auth/handler"
	"github.com/lanstar128/jjds-auth-service/internal/auth/service"
	"github.com/lanstar128/jjds-auth-service/internal/policy/engine"
	"github.com/lanstar128/jjds-auth-service/internal/security"
	"github.com/lanstar128/jjds-auth-service/internal/server"
	"github.com/lanstar128/jjds-auth-service/internal/session/store"
	userdomain "github.com/lanstar128/jjds-auth-service/internal/user/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     *errorBody      `json:"error"`
	TraceID   string          `json:"trace_id"`
	Timestamp int64           `json:"timestamp"`
}

type errorBody struct {
	Details map[string]any `json:"details"`
}

type tokenData struct {
	Token        string `json:"token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	UserInfo     struct {
		ID       int64  `json:"id"`
		Phone    string `json:"phone"`
		Nickname string `json:"nickname"`
		Role     string `json:"role"`
	} `json:"user_info"`
}

type userRepo struct {
	byPhone map[string]*userdomain.User
	byID    map[int64]*userdomain.User
}

func (r *userRepo) GetByPhone(ctx context.Context, phone string) (*userdomain.User, error) {
	return r.byPhone[phone], nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*userdomain.User, error) {
	return r.byID[id], nil
}

const (
	seedPhone    = "13800138888"
	seedPassword = "abc123"
	seedUserID   = int64(1001)
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	tokens, err := security.NewTestTokenProvider(time.Hour)
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte(seedPassword))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	repo := &userRepo{
		byPhone: map[string]*userdomain.User{},
		byID:    map[int64]*userdomain.User{},
	}
	active := &userdomain.User{
		ID:           seedUserID,
		Phone:        seedPhone,
		PasswordHash: hash,
		Status:       userdomain.UserStatusActive,
		Nickname:     "测试用户",
		Role:         userdomain.DefaultRole,
	}
	disabled := &userdomain.User{
		ID:           seedUserID + 1,
		Phone:        "13900139999",
		PasswordHash: hash,
		Status:       userdomain.UserStatusDisabled,
		Role:         userdomain.DefaultRole,
	}
	repo.byPhone[active.Phone] = active
	repo.byID[active.ID] = active
	repo.byPhone[disabled.Phone] = disabled
	repo.byID[disabled.ID] = disabled

	evaluator, err := engine.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	sessions := store.NewMemoryStore()
	svc := service.NewAuthService(repo, sessions, hasher, tokens, evaluator, 168*time.Hour)

	return server.NewRouter(&server.Deps{
		ServiceName: "auth-test",
		Auth:        handler.NewAuthHandler(svc, nil, nil, nil),
		Tokens:      tokens,
		Sessions:    sessions,
		Policy:      evaluator,
	})
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, bearer string) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", w.Body.String(), err)
	}
	return w, &env
}

func loginBody(deviceID string) map[string]string {
	return map[string]string{
		"phone":          seedPhone,
		"password":       seedPassword,
		"client_version": "v1",
		"system_info":    "Windows 10",
		"device_id":      deviceID,
	}
}

func login(t *testing.T, r *gin.Engine, deviceID string) *tokenData {
	t.Helper()
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", loginBody(deviceID), "")
	if w.Code != 200 || env.Code != 200 {
		t.Fatalf("login: http %d, code %d, body %s", w.Code, env.Code, w.Body.String())
	}
	var data tokenData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return &data
}

func TestLoginEndpoint_Success(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", loginBody("tool-win-123"), "")

	if w.Code != 200 {
		t.Fatalf("http status = %d, body %s", w.Code, w.Body.String())
	}
	if env.Code != 200 {
		t.Errorf("code = %d, want 200", env.Code)
	}
	if env.Message != "登录成功" {
		t.Errorf("message = %q", env.Message)
	}
	if env.TraceID == "" {
		t.Error("trace_id missing")
	}
	if env.Timestamp == 0 {
		t.Error("timestamp missing")
	}

	var data tokenData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Token == "" || data.RefreshToken == "" {
		t.Error("tokens missing from payload")
	}
	if data.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", data.ExpiresIn)
	}
	if data.UserInfo.ID != seedUserID {
		t.Errorf("user_info.id = %d, want %d", data.UserInfo.ID, seedUserID)
	}
	if data.UserInfo.Phone != seedPhone {
		t.Errorf("user_info.phone = %q", data.UserInfo.Phone)
	}
	if data.UserInfo.Role != userdomain.DefaultRole {
		t.Errorf("user_info.role = %q", data.UserInfo.Role)
	}
}

func TestLoginEndpoint_Errors(t *testing.T) {
	r := newTestRouter(t)
	tests := []struct {
		name       string
		mutate     func(map[string]string)
		httpStatus int
		code       int
	}{
		{"bad phone", func(b map[string]string) { b["phone"] = "12345" }, 400, 1001},
		{"short password", func(b map[string]string) { b["password"] = "abc12" }, 400, 1001},
		{"unknown device", func(b map[string]string) { b["device_id"] = "random-id" }, 400, 1001},
		{"unknown phone", func(b map[string]string) { b["phone"] = "13711112222" }, 401, 2001},
		{"wrong password", func(b map[string]string) { b["password"] = "wrong-password" }, 401, 2002},
		{"disabled account", func(b map[string]string) { b["phone"] = "13900139999" }, 403, 2003},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := loginBody("client-windows-abc")
			tt.mutate(body)
			w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", body, "")
			if w.Code != tt.httpStatus {
				t.Errorf("http status = %d, want %d", w.Code, tt.httpStatus)
			}
			if env.Code != tt.code {
				t.Errorf("code = %d, want %d", env.Code, tt.code)
			}
			if env.TraceID == "" || env.Timestamp == 0 {
				t.Error("error envelope missing trace_id/timestamp")
			}
		})
	}
}

func TestLoginEndpoint_ValidationDetails(t *testing.T) {
	r := newTestRouter(t)
	body := loginBody("client-windows-abc")
	body["phone"] = "12345"
	_, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", body, "")
	if env.Error == nil {
		t.Fatal("error body missing")
	}
	if env.Error.Details["field"] != "phone" {
		t.Errorf("details.field = %v, want phone", env.Error.Details["field"])
	}
}

func TestLoginEndpoint_DisabledDetails(t *testing.T) {
	r := newTestRouter(t)
	body := loginBody("client-windows-abc")
	body["phone"] = "13900139999"
	_, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", body, "")
	if env.Error == nil || env.Error.Details["current_status"] != "disabled" {
		t.Errorf("details = %+v, want current_status=disabled", env.Error)
	}
}

func TestLoginEndpoint_SameClassEviction(t *testing.T) {
	r := newTestRouter(t)
	first := login(t, r, "tool-win-1")
	second := login(t, r, "tool-win-2")

	// The first session's bearer no longer passes the middleware.
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", nil, first.Token)
	if w.Code != 401 || env.Code != 2006 {
		t.Errorf("evicted bearer: http %d code %d, want 401/2006", w.Code, env.Code)
	}
	// The second session works.
	w, env = doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", nil, second.Token)
	if w.Code != 200 || env.Message != "退出成功" {
		t.Errorf("logout: http %d message %q", w.Code, env.Message)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	r := newTestRouter(t)
	first := login(t, r, "web-chrome-1")

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refresh_token": first.RefreshToken}, "")
	if w.Code != 200 || env.Code != 200 {
		t.Fatalf("refresh: http %d code %d, body %s", w.Code, env.Code, w.Body.String())
	}
	var data tokenData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.RefreshToken == first.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if data.UserInfo.ID != seedUserID {
		t.Errorf("user_info.id = %d", data.UserInfo.ID)
	}

	// The superseded token is rejected.
	w, env = doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refresh_token": first.RefreshToken}, "")
	if w.Code != 401 || env.Code != 2005 {
		t.Errorf("stale refresh: http %d code %d, want 401/2005", w.Code, env.Code)
	}
}

func TestRefreshEndpoint_Garbage(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refresh_token": "not-a-token"}, "")
	if w.Code != 401 || env.Code != 2005 {
		t.Errorf("http %d code %d, want 401/2005", w.Code, env.Code)
	}
}

func TestRefreshEndpoint_MissingField(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{}, "")
	if w.Code != 400 || env.Code != 1001 {
		t.Errorf("http %d code %d, want 400/1001", w.Code, env.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	r := newTestRouter(t)
	data := login(t, r, "client-windows-1")

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", nil, data.Token)
	if w.Code != 200 || env.Code != 200 || env.Message != "退出成功" {
		t.Fatalf("logout: http %d code %d message %q", w.Code, env.Code, env.Message)
	}

	// Both tokens are dead afterward.
	w, env = doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", nil, data.Token)
	if w.Code != 401 || env.Code != 2006 {
		t.Errorf("reused bearer: http %d code %d, want 401/2006", w.Code, env.Code)
	}
	w, env = doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refresh_token": data.RefreshToken}, "")
	if w.Code != 401 || env.Code != 2005 {
		t.Errorf("refresh after logout: http %d code %d, want 401/2005", w.Code, env.Code)
	}
}

func TestLogoutEndpoint_NoBearer(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", nil, "")
	if w.Code != 401 || env.Code != 2006 {
		t.Errorf("http %d code %d, want 401/2006", w.Code, env.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(t, r, http.MethodGet, "/health", nil, "")
	if w.Code != 200 || env.Code != 200 {
		t.Errorf("health: http %d code %d, body %s", w.Code, env.Code, w.Body.String())
	}
}
