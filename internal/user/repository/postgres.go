package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lanstar128/jjds-auth-service/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for
// persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, password_hash, status, nickname, role, created_at, updated_at`

// GetByID returns the user for id, or nil if not found. It returns an error
// only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByPhone returns the user with the given phone, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

// Create persists the user and fills in the database-assigned ID.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO users (phone, password_hash, status, nickname, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		u.Phone, u.PasswordHash, string(u.Status), u.Nickname, u.Role, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u        domain.User
		status   string
		nickname sql.NullString
	)
	err := row.Scan(&u.ID, &u.Phone, &u.PasswordHash, &status, &nickname, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	if nickname.Valid {
		u.Nickname = nickname.String
	}
	return &u, nil
}
