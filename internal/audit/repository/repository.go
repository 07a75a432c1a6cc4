package repository

import (
	"context"

	"github.com/lanstar128/jjds-auth-service/internal/audit/domain"
)

// Repository persists audit log entries.
type Repository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]*domain.AuditLog, error)
}
