package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/db/memory"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/lock"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type ledgerFixture struct {
	store  *memory.Store
	clock  *fakeClock
	ledger ports.LedgerService
	user   *domain.User
}

func newLedgerFixture(t *testing.T, rates map[string]int64) *ledgerFixture {
	t.Helper()
	if rates == nil {
		rates = DefaultRates()
	}
	table, err := NewRateTable(rates)
	if err != nil {
		t.Fatalf("rate table: %v", err)
	}

	store := memory.NewStore()
	user, err := store.Create(context.Background(), &domain.User{Name: "Ana", Phone: "09123456789", Status: domain.UserActive})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	clock := newFakeClock()
	ledger := NewLedgerService(store, lock.NewLocal(0), table, NewDuplicateGuard(DefaultDuplicateWindow), zerolog.Nop(), WithClock(clock.Now))
	return &ledgerFixture{store: store, clock: clock, ledger: ledger, user: user}
}

func (f *ledgerFixture) record(material string, qty int) (*domain.RecyclingEvent, error) {
	return f.ledger.RecordEvent(context.Background(), ports.RecordEventInput{UserID: f.user.ID, Material: material, Quantity: qty})
}

func (f *ledgerFixture) points(t *testing.T) int64 {
	t.Helper()
	u, err := f.store.FindActiveByID(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	return u.Points
}

func assertKind(t *testing.T, err, kind error) *domain.LedgerError {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got: %v", kind, err)
	}
	le, ok := domain.AsLedgerError(err)
	if !ok {
		t.Fatalf("expected *domain.LedgerError, got %T", err)
	}
	return le
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestLedgerService_RecordEvent_Scenarios(t *testing.T) {
	f := newLedgerFixture(t, nil)

	// 1. plastic x3 on a fresh account
	ev, err := f.record("plastic", 3)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if ev.PointsAwarded != 15 || ev.ID == "" || ev.UserID != f.user.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if got := f.points(t); got != 15 {
		t.Fatalf("expected 15 points, got %d", got)
	}

	// 2. plastic again inside the window
	f.clock.Advance(2 * time.Second)
	_, err = f.record("plastic", 1)
	le := assertKind(t, err, domain.ErrDuplicateScan)
	if !strings.Contains(le.Message, "5 seconds") {
		t.Errorf("expected window in message, got %q", le.Message)
	}
	if got := f.points(t); got != 15 {
		t.Fatalf("expected points unchanged at 15, got %d", got)
	}

	// 3. a different material is not on cooldown
	if _, err := f.record("can", 2); err != nil {
		t.Fatalf("expected can to be accepted, got: %v", err)
	}
	if got := f.points(t); got != 35 {
		t.Fatalf("expected 35 points, got %d", got)
	}

	// 4. deactivated users cannot record
	if err := f.store.Deactivate(context.Background(), f.user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	f.clock.Advance(time.Minute)
	_, err = f.record("can", 1)
	le = assertKind(t, err, domain.ErrUserNotFound)
	if le.Field != "user_id" {
		t.Errorf("expected field user_id, got %q", le.Field)
	}
	if n := len(f.store.EventsByUser(f.user.ID)); n != 2 {
		t.Errorf("expected 2 events to remain, got %d", n)
	}
}

func TestLedgerService_RecordEvent_InvalidMaterial(t *testing.T) {
	f := newLedgerFixture(t, nil)

	for _, m := range []string{"glass", "", "paper"} {
		_, err := f.record(m, 1)
		le := assertKind(t, err, domain.ErrInvalidMaterial)
		if le.Field != "material" {
			t.Errorf("expected field material, got %q", le.Field)
		}
		if !strings.Contains(le.Message, "can, plastic") {
			t.Errorf("expected allowed list in message, got %q", le.Message)
		}
	}
	if got := f.points(t); got != 0 {
		t.Fatalf("expected no points, got %d", got)
	}
	if n := len(f.store.EventsByUser(f.user.ID)); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestLedgerService_RecordEvent_MaterialIsNormalised(t *testing.T) {
	f := newLedgerFixture(t, nil)

	ev, err := f.record("  Plastic ", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Material != domain.MaterialPlastic {
		t.Errorf("expected plastic, got %q", ev.Material)
	}
}

func TestLedgerService_RecordEvent_InvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -1, -100} {
		f := newLedgerFixture(t, nil)
		_, err := f.record("can", qty)
		le := assertKind(t, err, domain.ErrInvalidQuantity)
		if le.Field != "quantity" {
			t.Errorf("qty %d: expected field quantity, got %q", qty, le.Field)
		}
		if got := f.points(t); got != 0 {
			t.Fatalf("qty %d: expected no points, got %d", qty, got)
		}
	}
}

func TestLedgerService_RecordEvent_QuantityUpperBound(t *testing.T) {
	f := newLedgerFixture(t, nil)

	ev, err := f.record("plastic", MaxQuantity)
	if err != nil {
		t.Fatalf("quantity %d should be accepted: %v", MaxQuantity, err)
	}
	if want := int64(MaxQuantity) * 5; ev.PointsAwarded != want {
		t.Fatalf("expected %d points, got %d", want, ev.PointsAwarded)
	}

	_, err = f.record("can", MaxQuantity+1)
	le := assertKind(t, err, domain.ErrInvalidQuantity)
	if le.Field != "quantity" {
		t.Errorf("expected field quantity, got %q", le.Field)
	}
	if got := f.points(t); got != int64(MaxQuantity)*5 {
		t.Fatalf("rejected scan must not move the balance, got %d", got)
	}
	if n := len(f.store.EventsByUser(f.user.ID)); n != 1 {
		t.Fatalf("expected 1 stored event, got %d", n)
	}
}

func TestLedgerService_RecordEvent_UnknownUser(t *testing.T) {
	f := newLedgerFixture(t, nil)

	_, err := f.ledger.RecordEvent(context.Background(), ports.RecordEventInput{UserID: "nobody", Material: "glass", Quantity: 0})
	assertKind(t, err, domain.ErrUserNotFound)
}

func TestLedgerService_RecordEvent_ValidationPrecedence(t *testing.T) {
	f := newLedgerFixture(t, nil)

	_, err := f.record("glass", 0)
	assertKind(t, err, domain.ErrInvalidMaterial)
}

// ---------------------------------------------------------------------------
// Duplicate window
// ---------------------------------------------------------------------------

func TestLedgerService_RecordEvent_RejectedUntilWindowElapses(t *testing.T) {
	f := newLedgerFixture(t, nil)

	if _, err := f.record("plastic", 1); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	for i := 0; i < 4; i++ {
		f.clock.Advance(time.Second)
		_, err := f.record("plastic", 1)
		assertKind(t, err, domain.ErrDuplicateScan)
	}

	f.clock.Advance(999 * time.Millisecond)
	_, err := f.record("plastic", 1)
	assertKind(t, err, domain.ErrDuplicateScan)

	// exactly 5s after the accepted scan
	f.clock.Advance(time.Millisecond)
	if _, err := f.record("plastic", 1); err != nil {
		t.Fatalf("expected scan at the window boundary to be accepted, got: %v", err)
	}
	if got := f.points(t); got != 10 {
		t.Fatalf("expected 10 points, got %d", got)
	}
}

func TestLedgerService_RecordEvent_ConcurrentSameMaterial(t *testing.T) {
	f := newLedgerFixture(t, nil)

	const callers = 16
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.record("plastic", 2)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDuplicateScan):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != callers-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d duplicates", ok, dup)
	}
	if got := f.points(t); got != 10 {
		t.Fatalf("expected 10 points, got %d", got)
	}
}

func TestLedgerService_RecordEvent_ConcurrentUsersAreIndependent(t *testing.T) {
	f := newLedgerFixture(t, nil)

	users := make([]*domain.User, 8)
	for i := range users {
		u, err := f.store.Create(context.Background(), &domain.User{Name: "u", Phone: "09123456789", Status: domain.UserActive})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		users[i] = u
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.ledger.RecordEvent(context.Background(), ports.RecordEventInput{UserID: id, Material: "can", Quantity: 1}); err != nil {
				t.Errorf("user %s: %v", id, err)
			}
		}(u.ID)
	}
	wg.Wait()

	for _, u := range users {
		got, _ := f.store.FindActiveByID(context.Background(), u.ID)
		if got.Points != 10 {
			t.Errorf("user %s: expected 10 points, got %d", u.ID, got.Points)
		}
	}
}

// ---------------------------------------------------------------------------
// Balance guard
// ---------------------------------------------------------------------------

func TestLedgerService_RecordEvent_NegativeBalance(t *testing.T) {
	f := newLedgerFixture(t, map[string]int64{"plastic": 5, "battery": -20})

	if _, err := f.record("plastic", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.record("battery", 1)
	le := assertKind(t, err, domain.ErrNegativeBalance)
	if le.Field != "points" {
		t.Errorf("expected field points, got %q", le.Field)
	}
	if got := f.points(t); got != 10 {
		t.Fatalf("expected balance unchanged at 10, got %d", got)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.record("plastic", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.record("battery", 1); err != nil {
		t.Fatalf("expected penalty within balance to succeed, got: %v", err)
	}
	if got := f.points(t); got != 0 {
		t.Fatalf("expected 0 points, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

type stubLocker struct {
	err error
}

func (l stubLocker) Lock(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

type stubLedgerStore struct {
	lockErr    error
	historyErr error
	conflicts  int
	calls      int
	committed  []*domain.RecyclingEvent
	user       domain.User
}

func (s *stubLedgerStore) WithUserLock(ctx context.Context, userID string, fn func(context.Context, ports.LedgerTx) error) error {
	s.calls++
	if s.lockErr != nil {
		return s.lockErr
	}
	u := s.user
	tx := &stubTx{store: s, user: &u}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return domain.ErrVersionConflict
	}
	s.committed = append(s.committed, tx.event)
	return nil
}

func (s *stubLedgerStore) FindEventByID(context.Context, string) (*domain.RecyclingEvent, error) {
	return nil, domain.ErrEventNotFound
}

type stubTx struct {
	store *stubLedgerStore
	user  *domain.User
	event *domain.RecyclingEvent
}

func (t *stubTx) User() *domain.User { return t.user }

func (t *stubTx) LatestEvent(context.Context, string, domain.Material) (*domain.RecyclingEvent, error) {
	return nil, t.store.historyErr
}

func (t *stubTx) Commit(_ context.Context, ev *domain.RecyclingEvent, _ int64) error {
	ev.ID = "ev-1"
	t.event = ev
	return nil
}

func newStubLedger(store ports.LedgerStore, locker ports.UserLocker) ports.LedgerService {
	table, _ := NewRateTable(DefaultRates())
	return NewLedgerService(store, locker, table, NewDuplicateGuard(DefaultDuplicateWindow), zerolog.Nop())
}

func TestLedgerService_RecordEvent_StorageFailure(t *testing.T) {
	store := &stubLedgerStore{lockErr: errors.New("mongo unavailable")}
	svc := newStubLedger(store, stubLocker{})

	_, err := svc.RecordEvent(context.Background(), ports.RecordEventInput{UserID: "u1", Material: "can", Quantity: 1})
	assertKind(t, err, domain.ErrOperationFailed)
}

func TestLedgerService_RecordEvent_HistoryFailure(t *testing.T) {
	store := &stubLedgerStore{user: domain.User{ID: "u1", Status: domain.UserActive}, historyErr: errors.New("read timeout")}
	svc := newStubLedger(store, stubLocker{})

	_, err := svc.RecordEvent(context.Background(), ports.RecordEventInput{UserID: "u1", Material: "can", Quantity: 1})
	assertKind(t, err, domain.ErrOperationFailed)
	if len(store.committed) != 0 {
		t.Fatalf("expected nothing committed")
	}
}

func TestLedgerService_RecordEvent_LockFailure(t *testing.T) {
	store := &stubLedgerStore{user: domain.User{ID: "u1", Status: domain.UserActive}}
	svc := newStubLedger(store, stubLocker{err: context.DeadlineExceeded})

	_, err := svc.RecordEvent(context.Background(), ports.RecordEventInput{UserID: "u1", Material: "can", Quantity: 1})
	assertKind(t, err, domain.ErrOperationFailed)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be preserved, got: %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store must not be touched without the lock")
	}
}

func TestLedgerService_RecordEvent_RetriesVersionConflict(t *testing.T) {
	store := &stubLedgerStore{user: domain.User{ID: "u1", Status: domain.UserActive}, conflicts: 2}
	svc := newStubLedger(store, stubLocker{})

	ev, err := svc.RecordEvent(context.Background(), ports.RecordEventInput{UserID: "u1", Material: "can", Quantity: 1})
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if ev.PointsAwarded != 10 || store.calls != 3 {
		t.Fatalf("unexpected result: %+v after %d calls", ev, store.calls)
	}
}

func TestLedgerService_RecordEvent_GivesUpOnPersistentConflict(t *testing.T) {
	store := &stubLedgerStore{user: domain.User{ID: "u1", Status: domain.UserActive}, conflicts: 10}
	svc := newStubLedger(store, stubLocker{})

	_, err := svc.RecordEvent(context.Background(), ports.RecordEventInput{UserID: "u1", Material: "can", Quantity: 1})
	assertKind(t, err, domain.ErrOperationFailed)
	if store.calls != maxCommitAttempts {
		t.Fatalf("expected %d attempts, got %d", maxCommitAttempts, store.calls)
	}
}

func TestLedgerService_RecordEvent_CancelledContext(t *testing.T) {
	f := newLedgerFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ledger.RecordEvent(ctx, ports.RecordEventInput{UserID: f.user.ID, Material: "can", Quantity: 1})
	assertKind(t, err, domain.ErrOperationFailed)
	if got := f.points(t); got != 0 {
		t.Fatalf("expected no points, got %d", got)
	}
}

func TestLedgerService_GetEvent(t *testing.T) {
	f := newLedgerFixture(t, nil)

	ev, err := f.record("can", 1)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := f.ledger.GetEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PointsAwarded != 10 {
		t.Errorf("unexpected event: %+v", got)
	}

	_, err = f.ledger.GetEvent(context.Background(), "missing")
	if !errors.Is(err, domain.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got: %v", err)
	}
}
