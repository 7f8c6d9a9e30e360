package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

const (
	defaultOperationTimeout = 5 * time.Second
	maxCommitAttempts       = 3

	// MaxQuantity is the largest quantity a single scan may carry. It matches
	// the INTEGER quantity column in Postgres and applies to every store.
	MaxQuantity = math.MaxInt32
)

// LedgerOption customises a LedgerService.
type LedgerOption func(*ledgerService)

// WithClock replaces time.Now, used for the event timestamp and the
// duplicate window.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *ledgerService) { s.now = now }
}

// WithOperationTimeout bounds a whole RecordEvent call, lock wait included.
// Zero disables the bound.
func WithOperationTimeout(d time.Duration) LedgerOption {
	return func(s *ledgerService) { s.timeout = d }
}

type ledgerService struct {
	store   ports.LedgerStore
	locker  ports.UserLocker
	rates   *RateTable
	guard   *DuplicateGuard
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewLedgerService returns the LedgerService implementation.
func NewLedgerService(
	store ports.LedgerStore,
	locker ports.UserLocker,
	rates *RateTable,
	guard *DuplicateGuard,
	log zerolog.Logger,
	opts ...LedgerOption,
) ports.LedgerService {
	s := &ledgerService{
		store:   store,
		locker:  locker,
		rates:   rates,
		guard:   guard,
		timeout: defaultOperationTimeout,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordEvent validates a scan, rejects duplicates and credits the user. The
// event insert and the balance update are committed together while the user
// is locked; on any error nothing is written.
func (s *ledgerService) RecordEvent(ctx context.Context, in ports.RecordEventInput) (*domain.RecyclingEvent, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	unlock, err := s.locker.Lock(ctx, in.UserID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", in.UserID).Msg("failed to acquire user lock")
		return nil, domain.OperationFailed(fmt.Errorf("lock user %s: %w", in.UserID, err))
	}
	defer unlock()

	var recorded *domain.RecyclingEvent
	for attempt := 1; ; attempt++ {
		err = s.store.WithUserLock(ctx, in.UserID, func(ctx context.Context, tx ports.LedgerTx) error {
			ev, err := s.record(ctx, tx, in)
			if err != nil {
				return err
			}
			recorded = ev
			return nil
		})
		if !errors.Is(err, domain.ErrVersionConflict) || attempt == maxCommitAttempts {
			break
		}
		s.log.Warn().Str("user_id", in.UserID).Int("attempt", attempt).Msg("balance version conflict, retrying")
	}
	if err != nil {
		return nil, s.classify(err, in)
	}

	s.log.Info().
		Str("event_id", recorded.ID).
		Str("user_id", recorded.UserID).
		Str("material", recorded.Material.String()).
		Int("quantity", recorded.Quantity).
		Int64("points", recorded.PointsAwarded).
		Msg("recycling event recorded")

	return recorded, nil
}

// record runs inside the locked unit of work. Validation order matches the
// order errors are reported to callers.
func (s *ledgerService) record(ctx context.Context, tx ports.LedgerTx, in ports.RecordEventInput) (*domain.RecyclingEvent, error) {
	user := tx.User()

	material := domain.ParseMaterial(in.Material)
	if !s.rates.Has(material) {
		return nil, domain.Invalid(domain.ErrInvalidMaterial, "material",
			fmt.Sprintf("Invalid material. Allowed: %s", s.allowedMaterials()))
	}

	if in.Quantity <= 0 {
		return nil, domain.Invalid(domain.ErrInvalidQuantity, "quantity", "Quantity must be a positive integer.")
	}
	if in.Quantity > MaxQuantity {
		return nil, domain.Invalid(domain.ErrInvalidQuantity, "quantity", fmt.Sprintf("Quantity must be at most %d.", MaxQuantity))
	}

	now := s.now().UTC().Truncate(time.Millisecond)

	dup, err := s.guard.IsDuplicate(ctx, tx, user.ID, material, now)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, domain.Invalid(domain.ErrDuplicateScan, "duplicate",
			fmt.Sprintf("Duplicate scan detected. Please wait at least %s between recycling the same material.", formatWindow(s.guard.Window())))
	}

	points, err := s.rates.Points(material, in.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuantity) {
			return nil, &domain.LedgerError{Kind: domain.ErrInvalidQuantity, Field: "quantity", Message: "Quantity is too large.", Err: err}
		}
		return nil, &domain.LedgerError{Kind: domain.ErrInvalidMaterial, Field: "material", Message: "Invalid material.", Err: err}
	}

	balance := user.Points + points
	if balance < 0 {
		return nil, domain.Invalid(domain.ErrNegativeBalance, "points", "Transaction would result in negative points.")
	}

	event := &domain.RecyclingEvent{
		UserID:        user.ID,
		Material:      material,
		Quantity:      in.Quantity,
		PointsAwarded: points,
		Timestamp:     now,
	}
	if err := tx.Commit(ctx, event, balance); err != nil {
		return nil, fmt.Errorf("commit recycling event: %w", err)
	}
	return event, nil
}

// classify turns whatever came out of the unit of work into a LedgerError.
func (s *ledgerService) classify(err error, in ports.RecordEventInput) error {
	if le, ok := domain.AsLedgerError(err); ok {
		s.log.Info().
			Str("user_id", in.UserID).
			Str("material", in.Material).
			Str("field", le.Field).
			Str("reason", le.Kind.Error()).
			Msg("recycling event rejected")
		return le
	}
	if errors.Is(err, domain.ErrUserNotFound) {
		return &domain.LedgerError{Kind: domain.ErrUserNotFound, Field: "user_id", Message: "User does not exist or is inactive."}
	}

	s.log.Error().Err(err).Str("user_id", in.UserID).Msg("failed to record recycling event")
	return domain.OperationFailed(err)
}

func (s *ledgerService) allowedMaterials() string {
	ms := s.rates.Materials()
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}

// GetEvent returns a single recorded event by ID.
func (s *ledgerService) GetEvent(ctx context.Context, id string) (*domain.RecyclingEvent, error) {
	ev, err := s.store.FindEventByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, err
		}
		return nil, domain.OperationFailed(fmt.Errorf("get event %s: %w", id, err))
	}
	return ev, nil
}

func formatWindow(d time.Duration) string {
	if d%time.Second == 0 {
		n := int64(d / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
	return d.String()
}
