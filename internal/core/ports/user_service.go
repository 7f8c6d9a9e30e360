package ports

import (
	"context"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

// RegisterUserInput carries the raw registration fields.
type RegisterUserInput struct {
	Name  string
	Phone string
}

// UserService covers registration and profile lookups.
type UserService interface {
	Register(ctx context.Context, in RegisterUserInput) (*domain.User, error)
	GetActiveUser(ctx context.Context, id string) (*domain.User, error)
	Deactivate(ctx context.Context, id string) error
}
