// Package api defines the response envelope shared by every endpoint. All
// responses, success or failure, carry a trace_id and a Unix-seconds
// timestamp for correlation.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Business response codes. These are contract values; clients switch on
// them, so they never change meaning.
const (
	CodeOK                  = 200
	CodeInternalError       = 1000
	CodeInvalidParameters   = 1001
	CodeUserNotFound        = 2001
	CodeInvalidPassword     = 2002
	CodeAccountDisabled     = 2003
	CodePolicyDenied        = 2004
	CodeInvalidRefreshToken = 2005
	CodeInvalidSession      = 2006
)

// Response is the fixed envelope. Data is set on success, Error on failure,
// never both.
type Response struct {
	Code      int        `json:"code"`
	Message   string     `json:"message"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	TraceID   string     `json:"trace_id"`
	Timestamp int64      `json:"timestamp"`
}

// ErrorBody carries machine-readable failure details, e.g. the offending
// field on a validation error.
type ErrorBody struct {
	Details map[string]any `json:"details"`
}

// OK writes a 200 envelope with the given business message and payload.
func OK(c *gin.Context, message string, data any) {
	c.JSON(200, &Response{
		Code:      CodeOK,
		Message:   message,
		Data:      data,
		TraceID:   TraceID(c),
		Timestamp: time.Now().Unix(),
	})
}

// Fail writes an error envelope with the given HTTP status and business
// code. details may be nil.
func Fail(c *gin.Context, httpStatus, code int, message string, details map[string]any) {
	resp := &Response{
		Code:      code,
		Message:   message,
		TraceID:   TraceID(c),
		Timestamp: time.Now().Unix(),
	}
	if details != nil {
		resp.Error = &ErrorBody{Details: details}
	}
	c.JSON(httpStatus, resp)
}

// TraceID returns the current OTel trace id, or a fresh UUID when the
// request is not being traced, so responses always correlate to something.
func TraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}
