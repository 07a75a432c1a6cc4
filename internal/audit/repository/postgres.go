package repository

import (
	"context"
	"database/sql"

	"github.com/lanstar128/jjds-auth-service/internal/audit/domain"
)

// PostgresRepository stores audit logs in the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	uid := sql.NullInt64{Int64: entry.UserID, Valid: entry.UserID != 0}
	meta := sql.NullString{String: entry.Metadata, Valid: entry.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, uid, entry.Action, entry.Resource, entry.IP, meta, entry.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, action, resource, ip, metadata, created_at
		 FROM audit_logs
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		var uid sql.NullInt64
		var meta sql.NullString
		if err := rows.Scan(&entry.ID, &uid, &entry.Action, &entry.Resource, &entry.IP, &meta, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.UserID = uid.Int64
		entry.Metadata = meta.String
		out = append(out, &entry)
	}
	return out, rows.Err()
}
