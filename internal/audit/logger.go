// Package audit records auth actions (login, logout, refresh, eviction) to
// Postgres. Writes are best-effort; an audit failure never fails the request.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lanstar128/jjds-auth-service/internal/audit/domain"
	auditrepo "github.com/lanstar128/jjds-auth-service/internal/audit/repository"
)

// Actions recorded by the auth service.
const (
	ActionLogin   = "auth.login"
	ActionLogout  = "auth.logout"
	ActionRefresh = "auth.refresh"
	ActionEvict   = "session.evict"
)

// IPExtractor returns the client IP for the current request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit entry with explicit action/resource.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID int64, action, resource, metadata string)
}

// Logger implements AuditLogger over the audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger persisting to repo. ipExtractor may be
// nil; the IP is then recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID int64, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log %s/%s: %v", action, resource, err)
	}
}
