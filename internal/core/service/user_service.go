package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

const (
	DefaultPhoneLength = 11
	maxNameLength      = 80
)

// UserService implements registration, profile lookup and soft delete.
type UserService struct {
	repo        ports.UserRepository
	phoneLength int
	log         zerolog.Logger
}

func NewUserService(repo ports.UserRepository, phoneLength int, log zerolog.Logger) *UserService {
	if phoneLength <= 0 {
		phoneLength = DefaultPhoneLength
	}
	return &UserService{repo: repo, phoneLength: phoneLength, log: log}
}

// Register creates an active user with a zero balance. Phone numbers are not
// unique; the same number may be registered any number of times.
func (s *UserService) Register(ctx context.Context, in ports.RegisterUserInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Invalid(domain.ErrInvalidName, "name", "Name cannot be empty.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, domain.Invalid(domain.ErrInvalidName, "name", fmt.Sprintf("Name must be at most %d characters.", maxNameLength))
	}

	if in.Phone == "" {
		return nil, domain.Invalid(domain.ErrInvalidPhone, "phone", "Phone number is required.")
	}
	if len(in.Phone) != s.phoneLength || !isDigits(in.Phone) {
		return nil, domain.Invalid(domain.ErrInvalidPhone, "phone", fmt.Sprintf("Phone number must be exactly %d digits.", s.phoneLength))
	}

	now := time.Now().UTC()
	user := &domain.User{
		Name:      name,
		Phone:     in.Phone,
		Points:    0,
		Status:    domain.UserActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to register user")
		return nil, domain.OperationFailed(fmt.Errorf("register user: %w", err))
	}

	s.log.Info().Str("user_id", created.ID).Msg("user registered")
	return created, nil
}

// GetActiveUser returns the profile and current balance of an active user.
func (s *UserService) GetActiveUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.repo.FindActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NotFound("User not found or inactive.")
		}
		return nil, domain.OperationFailed(fmt.Errorf("get user %s: %w", id, err))
	}
	return u, nil
}

// Deactivate soft-deletes a user. Their events stay in the ledger.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.NotFound("User not found or inactive.")
		}
		return domain.OperationFailed(fmt.Errorf("deactivate user %s: %w", id, err))
	}
	s.log.Info().Str("user_id", id).Msg("user deactivated")
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
