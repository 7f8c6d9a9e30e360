// Package memory is an in-process implementation of the user repository and
// ledger store. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/lock"
)

type historyKey struct {
	userID   string
	material domain.Material
}

// Store keeps users and events in maps. A per-user lock stands in for a row
// lock; every commit additionally checks the user's version.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*domain.User
	events  map[string]*domain.RecyclingEvent
	history map[historyKey][]string // event ids in commit order
	rows    *lock.Local
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]*domain.User),
		events:  make(map[string]*domain.RecyclingEvent),
		history: make(map[historyKey][]string),
		rows:    lock.NewLocal(0),
		now:     time.Now,
	}
}

// Create implements ports.UserRepository.
func (s *Store) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	clone := *u
	clone.ID = uuid.NewString()

	s.mu.Lock()
	s.users[clone.ID] = &clone
	s.mu.Unlock()

	out := clone
	return &out, nil
}

// FindActiveByID implements ports.UserRepository.
func (s *Store) FindActiveByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || !u.IsActive() {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

// Deactivate implements ports.UserRepository.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	unlock, err := s.rows.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.IsActive() {
		return domain.ErrUserNotFound
	}
	u.Status = domain.UserInactive
	u.Version++
	u.UpdatedAt = s.now().UTC()
	return nil
}

// WithUserLock implements ports.LedgerStore. Writes staged through the tx are
// applied only after fn returns nil.
func (s *Store) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	unlock, err := s.rows.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	user, err := s.FindActiveByID(ctx, userID)
	if err != nil {
		return err
	}

	tx := &ledgerTx{store: s, user: user}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.event == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.apply(tx)
}

func (s *Store) apply(tx *ledgerTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[tx.user.ID]
	if !ok || !current.IsActive() {
		return domain.ErrUserNotFound
	}
	if current.Version != tx.user.Version {
		return domain.ErrVersionConflict
	}

	ev := *tx.event
	s.events[ev.ID] = &ev
	key := historyKey{userID: ev.UserID, material: ev.Material}
	s.history[key] = append(s.history[key], ev.ID)

	current.Points = tx.balance
	current.Version++
	current.UpdatedAt = ev.Timestamp
	return nil
}

// FindEventByID implements ports.LedgerStore.
func (s *Store) FindEventByID(_ context.Context, id string) (*domain.RecyclingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	clone := *ev
	return &clone, nil
}

// EventsByUser returns a user's events, newest first, whatever the user's status.
func (s *Store) EventsByUser(userID string) []domain.RecyclingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RecyclingEvent
	for _, ev := range s.events {
		if ev.UserID == userID {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Ping satisfies the readiness probe.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) latest(userID string, material domain.Material) *domain.RecyclingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.RecyclingEvent
	for _, id := range s.history[historyKey{userID: userID, material: material}] {
		ev := s.events[id]
		if last == nil || !ev.Timestamp.Before(last.Timestamp) {
			last = ev
		}
	}
	if last == nil {
		return nil
	}
	clone := *last
	return &clone
}

type ledgerTx struct {
	store   *Store
	user    *domain.User
	event   *domain.RecyclingEvent
	balance int64
}

func (t *ledgerTx) User() *domain.User {
	return t.user
}

func (t *ledgerTx) LatestEvent(ctx context.Context, userID string, material domain.Material) (*domain.RecyclingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.store.latest(userID, material), nil
}

// Commit stages the event and the new balance. The event ID is assigned here
// so the caller sees it immediately.
func (t *ledgerTx) Commit(ctx context.Context, event *domain.RecyclingEvent, newBalance int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.event != nil {
		return domain.ErrVersionConflict
	}
	event.ID = uuid.NewString()
	t.event = event
	t.balance = newBalance
	return nil
}
