package domain

import (
	"errors"
	"time"
)

// DefaultRole is assigned to users created without an explicit role.
const DefaultRole = "client_default"

// User is the core user entity. The phone number uniquely identifies at most
// one user. PasswordHash is a bcrypt hash; plaintext passwords are never
// stored or logged.
type User struct {
	ID           int64
	Phone        string
	PasswordHash string
	Status       UserStatus
	Nickname     string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Validate validates the user for persistence, defaulting Status and Role.
// Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Phone == "" {
		return errors.New("phone is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}
	return nil
}
