// internal/accounts/service.go
package accounts

import (
	"context"

	"github.com/google/uuid"
)

// Store persists accounts and their credentials.
type Store interface {
	// CreateUser stores u and c atomically, failing with ErrEmailTaken when
	// the email is already registered.
	CreateUser(ctx context.Context, u *User, c *Credential) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetCredential(ctx context.Context, userID uuid.UUID) (*Credential, error)
}

// Service defines the interface for the accounts service.
type Service interface {
	Register(ctx context.Context, email, name, password string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	Logout(id uuid.UUID)
}
