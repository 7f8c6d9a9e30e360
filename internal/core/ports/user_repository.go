package ports

import (
	"context"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

// UserRepository defines persistence operations for users outside the ledger
// unit of work.
type UserRepository interface {
	// Create stores a new user and returns it with its assigned ID.
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	// FindActiveByID returns domain.ErrUserNotFound for absent or inactive users.
	FindActiveByID(ctx context.Context, id string) (*domain.User, error)
	// Deactivate soft-deletes an active user. Events are kept.
	Deactivate(ctx context.Context, id string) error
}
