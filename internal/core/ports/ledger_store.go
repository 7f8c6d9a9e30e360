package ports

import (
	"context"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

// EventHistory answers the duplicate guard's only query.
type EventHistory interface {
	// LatestEvent returns the most recent event for (userID, material) or nil
	// when the user never recycled that material.
	LatestEvent(ctx context.Context, userID string, material domain.Material) (*domain.RecyclingEvent, error)
}

// LedgerTx is a unit of work holding an exclusive lock on one user.
type LedgerTx interface {
	EventHistory

	// User is the locked snapshot loaded when the unit of work started.
	User() *domain.User

	// Commit inserts event and sets the user's balance to newBalance in one
	// atomic write. The balance write is conditional on the snapshot version;
	// a mismatch returns domain.ErrVersionConflict.
	Commit(ctx context.Context, event *domain.RecyclingEvent, newBalance int64) error
}

// LedgerStore opens per-user units of work.
type LedgerStore interface {
	// WithUserLock loads the active user, locks it exclusively and runs fn.
	// Any error returned by fn rolls the unit of work back and is returned
	// unchanged. Absent or inactive users yield domain.ErrUserNotFound.
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx LedgerTx) error) error

	// FindEventByID returns domain.ErrEventNotFound when no event has that ID.
	FindEventByID(ctx context.Context, id string) (*domain.RecyclingEvent, error)
}

// UserLocker serialises work on a single user across goroutines (and, for
// distributed implementations, across processes). Different users never
// contend.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}
