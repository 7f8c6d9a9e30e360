package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

// InstrumentedLedger records Prometheus metrics around a LedgerService.
type InstrumentedLedger struct {
	next ports.LedgerService
}

func NewInstrumentedLedger(next ports.LedgerService) *InstrumentedLedger {
	return &InstrumentedLedger{next: next}
}

func (l *InstrumentedLedger) RecordEvent(ctx context.Context, in ports.RecordEventInput) (*domain.RecyclingEvent, error) {
	start := time.Now()
	ev, err := l.next.RecordEvent(ctx, in)
	if err != nil {
		RecordDuration.WithLabelValues("rejected").Observe(time.Since(start).Seconds())
		EventsRejectedTotal.WithLabelValues(Reason(err)).Inc()
		return nil, err
	}

	RecordDuration.WithLabelValues("recorded").Observe(time.Since(start).Seconds())
	material := ev.Material.String()
	EventsRecordedTotal.WithLabelValues(material).Inc()
	points := ev.PointsAwarded
	if points < 0 {
		points = -points
	}
	PointsAwardedTotal.WithLabelValues(material).Add(float64(points))
	return ev, nil
}

func (l *InstrumentedLedger) GetEvent(ctx context.Context, id string) (*domain.RecyclingEvent, error) {
	return l.next.GetEvent(ctx, id)
}

// InstrumentedUsers counts registrations.
type InstrumentedUsers struct {
	ports.UserService
}

func NewInstrumentedUsers(next ports.UserService) *InstrumentedUsers {
	return &InstrumentedUsers{UserService: next}
}

func (u *InstrumentedUsers) Register(ctx context.Context, in ports.RegisterUserInput) (*domain.User, error) {
	user, err := u.UserService.Register(ctx, in)
	if err == nil {
		UsersRegisteredTotal.Inc()
	}
	return user, err
}

// Reason maps a ledger error to the low-cardinality reason label.
func Reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrInvalidMaterial), errors.Is(err, domain.ErrUnknownMaterial):
		return "invalid_material"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrDuplicateScan):
		return "duplicate_scan"
	case errors.Is(err, domain.ErrNegativeBalance):
		return "negative_balance"
	default:
		return "operation_failed"
	}
}
