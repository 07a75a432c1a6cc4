// Package repository provides persistence for users. The auth core only
// reads users; account creation and status changes belong to operator
// tooling (cmd/seed for development).
package repository

import (
	"context"

	"github.com/lanstar128/jjds-auth-service/internal/user/domain"
)

// Repository is the user persistence contract.
type Repository interface {
	// GetByID returns the user for id, or nil if not found.
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByPhone returns the user with the given phone, or nil if not found.
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	// Create persists the user and assigns its ID.
	Create(ctx context.Context, u *domain.User) error
}
