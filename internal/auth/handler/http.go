// Package handler exposes the auth service over HTTP: login, refresh, and
// logout, all speaking the fixed response envelope.
package handler

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanstar128/jjds-auth-service/internal/api"
	"github.com/lanstar128/jjds-auth-service/internal/audit"
	"github.com/lanstar128/jjds-auth-service/internal/auth/service"
	"github.com/lanstar128/jjds-auth-service/internal/server/middleware"
	"github.com/lanstar128/jjds-auth-service/internal/telemetry"
)

type loginBody struct {
	Phone         string `json:"phone"`
	Password      string `json:"password"`
	ClientVersion string `json:"client_version"`
	SystemInfo    string `json:"system_info"`
	DeviceID      string `json:"device_id"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

type userInfo struct {
	ID       int64  `json:"id"`
	Phone    string `json:"phone"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

type tokenData struct {
	Token        string   `json:"token"`
	ExpiresIn    int64    `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	UserInfo     userInfo `json:"user_info"`
}

// AuthHandler wires the auth service to gin. Audit, events, and metrics are
// optional; a nil dependency is skipped.
type AuthHandler struct {
	svc     *service.AuthService
	auditor audit.AuditLogger
	emitter telemetry.EventEmitter
	metrics *telemetry.Metrics
}

func NewAuthHandler(svc *service.AuthService, auditor audit.AuditLogger, emitter telemetry.EventEmitter, metrics *telemetry.Metrics) *AuthHandler {
	return &AuthHandler{svc: svc, auditor: auditor, emitter: emitter, metrics: metrics}
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		api.Fail(c, 400, api.CodeInvalidParameters, "参数错误", map[string]any{"field": "body"})
		return
	}
	req := &service.LoginRequest{
		Phone:         body.Phone,
		Password:      body.Password,
		ClientVersion: body.ClientVersion,
		SystemInfo:    body.SystemInfo,
		DeviceID:      body.DeviceID,
		IPAddress:     c.ClientIP(),
	}
	res, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		status, code, message, details := mapError(err)
		h.recordLoginFailure(c, code)
		api.Fail(c, status, code, message, details)
		return
	}

	h.recordLoginSuccess(c, res)
	api.OK(c, "登录成功", &tokenData{
		Token:        res.AccessToken,
		ExpiresIn:    int64(h.svc.AccessTTL() / time.Second),
		RefreshToken: res.RefreshToken,
		UserInfo: userInfo{
			ID:       res.User.ID,
			Phone:    res.User.Phone,
			Nickname: res.User.Nickname,
			Role:     res.User.Role,
		},
	})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body refreshBody
	if err := c.ShouldBindJSON(&body); err != nil || body.RefreshToken == "" {
		api.Fail(c, 400, api.CodeInvalidParameters, "参数错误", map[string]any{"field": "refresh_token"})
		return
	}
	res, err := h.svc.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		status, code, message, details := mapError(err)
		if h.metrics != nil {
			h.metrics.RecordRefresh(c.Request.Context(), strconv.Itoa(code))
		}
		api.Fail(c, status, code, message, details)
		return
	}

	ctx := c.Request.Context()
	if h.metrics != nil {
		h.metrics.RecordRefresh(ctx, "success")
	}
	if h.auditor != nil {
		h.auditor.LogEvent(ctx, res.User.ID, audit.ActionRefresh, "session:"+res.SessionID, "")
	}
	telemetry.EmitAsync(h.emitter, &telemetry.Event{
		EventType:   telemetry.EventTokenRefreshed,
		UserID:      res.User.ID,
		SessionID:   res.SessionID,
		DeviceClass: string(res.DeviceClass),
		IPAddress:   c.ClientIP(),
		CreatedAt:   time.Now().UTC(),
	})

	api.OK(c, "刷新成功", &tokenData{
		Token:        res.AccessToken,
		ExpiresIn:    int64(h.svc.AccessTTL() / time.Second),
		RefreshToken: res.RefreshToken,
		UserInfo: userInfo{
			ID:       res.User.ID,
			Phone:    res.User.Phone,
			Nickname: res.User.Nickname,
			Role:     res.User.Role,
		},
	})
}

// Logout handles POST /api/v1/auth/logout. The route is behind the Bearer
// middleware, so the identity is always present here.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := middleware.GetIdentity(ctx)
	if !ok {
		api.Fail(c, 401, api.CodeInvalidSession, "会话无效或已失效", nil)
		return
	}
	if err := h.svc.Logout(ctx, id.SessionID); err != nil {
		status, code, message, details := mapError(err)
		api.Fail(c, status, code, message, details)
		return
	}
	if h.auditor != nil {
		h.auditor.LogEvent(ctx, id.UserID, audit.ActionLogout, "session:"+id.SessionID, "")
	}
	telemetry.EmitAsync(h.emitter, &telemetry.Event{
		EventType: telemetry.EventLogout,
		UserID:    id.UserID,
		SessionID: id.SessionID,
		IPAddress: c.ClientIP(),
		CreatedAt: time.Now().UTC(),
	})
	api.OK(c, "退出成功", nil)
}

func (h *AuthHandler) recordLoginSuccess(c *gin.Context, res *service.AuthResult) {
	ctx := c.Request.Context()
	now := time.Now().UTC()
	if h.metrics != nil {
		h.metrics.RecordLogin(ctx, "success")
	}
	if h.auditor != nil {
		meta, _ := json.Marshal(map[string]string{
			"device_class": string(res.DeviceClass),
			"evicted":      res.EvictedSessionID,
		})
		h.auditor.LogEvent(ctx, res.User.ID, audit.ActionLogin, "session:"+res.SessionID, string(meta))
	}
	telemetry.EmitAsync(h.emitter, &telemetry.Event{
		EventType:   telemetry.EventLoginSuccess,
		UserID:      res.User.ID,
		SessionID:   res.SessionID,
		DeviceClass: string(res.DeviceClass),
		IPAddress:   c.ClientIP(),
		CreatedAt:   now,
	})
	if res.EvictedSessionID != "" {
		if h.metrics != nil {
			h.metrics.RecordEviction(ctx, string(res.DeviceClass))
		}
		if h.auditor != nil {
			h.auditor.LogEvent(ctx, res.User.ID, audit.ActionEvict, "session:"+res.EvictedSessionID, "")
		}
		telemetry.EmitAsync(h.emitter, &telemetry.Event{
			EventType:        telemetry.EventSessionEvicted,
			UserID:           res.User.ID,
			SessionID:        res.SessionID,
			DeviceClass:      string(res.DeviceClass),
			EvictedSessionID: res.EvictedSessionID,
			CreatedAt:        now,
		})
	}
}

func (h *AuthHandler) recordLoginFailure(c *gin.Context, code int) {
	ctx := c.Request.Context()
	if h.metrics != nil {
		h.metrics.RecordLogin(ctx, strconv.Itoa(code))
	}
	telemetry.EmitAsync(h.emitter, &telemetry.Event{
		EventType:   telemetry.EventLoginFailure,
		FailureCode: code,
		IPAddress:   c.ClientIP(),
		CreatedAt:   time.Now().UTC(),
	})
}

// mapError resolves a service error into HTTP status, business code,
// message, and envelope details. Unrecognized errors become internal errors
// with no internal detail exposed.
func mapError(err error) (int, int, string, map[string]any) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return 400, api.CodeInvalidParameters, "参数错误", map[string]any{
			"field":  verr.Field,
			"reason": verr.Message,
		}
	case errors.Is(err, service.ErrUserNotFound):
		return 401, api.CodeUserNotFound, "用户不存在", nil
	case errors.Is(err, service.ErrInvalidPassword):
		return 401, api.CodeInvalidPassword, "密码错误", nil
	case errors.Is(err, service.ErrAccountDisabled):
		return 403, api.CodeAccountDisabled, "账号已被禁用", map[string]any{
			"current_status": "disabled",
		}
	case errors.Is(err, service.ErrPolicyDenied):
		return 403, api.CodePolicyDenied, "登录被拒绝", map[string]any{
			"reason": policyReason(err),
		}
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return 401, api.CodeInvalidRefreshToken, "刷新令牌无效", nil
	case errors.Is(err, service.ErrInvalidSession):
		return 401, api.CodeInvalidSession, "会话无效或已失效", nil
	default:
		return 500, api.CodeInternalError, "服务器内部错误", map[string]any{
			"error_message": "internal error",
		}
	}
}

func policyReason(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, service.ErrPolicyDenied.Error()+": "); ok {
		return rest
	}
	return msg
}
