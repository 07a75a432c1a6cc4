package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lanstar128/jjds-auth-service/internal/device"
	"github.com/lanstar128/jjds-auth-service/internal/session/domain"
)

// PostgresStore persists sessions in Postgres. The UNIQUE (user_id,
// device_class) constraint plus a single INSERT ... ON CONFLICT DO UPDATE
// makes eviction atomic: concurrent same-pair logins serialize on the row
// and the last writer wins.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a session store that uses the given db for
// persistence.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Upsert(ctx context.Context, s *domain.Session) (string, error) {
	// Best-effort read of the id being superseded, for audit/telemetry only.
	// The upsert below is the atomic step; a session created between this
	// read and the write is still evicted correctly.
	var evicted string
	err := p.db.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE user_id = $1 AND device_class = $2`,
		s.UserID, string(s.DeviceClass)).Scan(&evicted)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO sessions
		   (id, user_id, device_class, client_version, system_info,
		    device_identifier, ip_address, refresh_token_hash,
		    refresh_expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, device_class) DO UPDATE SET
		   id = EXCLUDED.id,
		   client_version = EXCLUDED.client_version,
		   system_info = EXCLUDED.system_info,
		   device_identifier = EXCLUDED.device_identifier,
		   ip_address = EXCLUDED.ip_address,
		   refresh_token_hash = EXCLUDED.refresh_token_hash,
		   refresh_expires_at = EXCLUDED.refresh_expires_at,
		   created_at = EXCLUDED.created_at,
		   last_seen_at = NULL`,
		s.ID, s.UserID, string(s.DeviceClass), s.ClientVersion, s.SystemInfo,
		s.DeviceID, s.IPAddress, s.RefreshTokenHash, s.RefreshExpiresAt, s.CreatedAt)
	if err != nil {
		return "", err
	}
	return evicted, nil
}

const sessionColumns = `id, user_id, device_class, client_version, system_info,
	device_identifier, ip_address, refresh_token_hash, refresh_expires_at,
	created_at, last_seen_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE id = $1 AND refresh_expires_at > $2`, id, time.Now().UTC())
	var (
		s        domain.Session
		class    string
		ip       sql.NullString
		lastSeen sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &class, &s.ClientVersion, &s.SystemInfo,
		&s.DeviceID, &ip, &s.RefreshTokenHash, &s.RefreshExpiresAt,
		&s.CreatedAt, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.DeviceClass = device.Class(class)
	if ip.Valid {
		s.IPAddress = ip.String
	}
	if lastSeen.Valid {
		s.LastSeenAt = &lastSeen.Time
	}
	return &s, nil
}

func (p *PostgresStore) IsValid(ctx context.Context, id string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = $1 AND refresh_expires_at > $2`,
		id, time.Now().UTC()).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *PostgresStore) Revoke(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) UpdateRefreshToken(ctx context.Context, id, refreshTokenHash string, expiresAt time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET refresh_token_hash = $2, refresh_expires_at = $3
		 WHERE id = $1`, id, refreshTokenHash, expiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}
