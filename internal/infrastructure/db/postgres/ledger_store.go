package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

const eventColumns = `id, user_id, material, quantity, points_awarded, "timestamp"`

// LedgerStore implements ports.LedgerStore. Each unit of work is one
// transaction that starts by row-locking the user.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithUserLock implements ports.LedgerStore.
func (s *LedgerStore) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	if _, err := uuid.Parse(userID); err != nil {
		return domain.ErrUserNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND status = 'active' FOR UPDATE`
	user, err := scanUser(tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		return err
	}

	if err := fn(ctx, &ledgerTx{db: tx, user: user}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FindEventByID implements ports.LedgerStore.
func (s *LedgerStore) FindEventByID(ctx context.Context, id string) (*domain.RecyclingEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrEventNotFound
	}
	query := `SELECT ` + eventColumns + ` FROM recycling_events WHERE id = $1`
	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	return ev, err
}

type ledgerTx struct {
	db   DBTX
	user *domain.User
}

func (t *ledgerTx) User() *domain.User {
	return t.user
}

// LatestEvent implements ports.EventHistory.
func (t *ledgerTx) LatestEvent(ctx context.Context, userID string, material domain.Material) (*domain.RecyclingEvent, error) {
	query :=
		`SELECT ` + eventColumns + ` FROM recycling_events
		 WHERE user_id = $1 AND material = $2
		 ORDER BY "timestamp" DESC
		 LIMIT 1`

	ev, err := scanEvent(t.db.QueryRowContext(ctx, query, userID, string(material)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

// Commit inserts the event and applies the new balance inside the open
// transaction. The balance update is guarded by the snapshot version.
func (t *ledgerTx) Commit(ctx context.Context, event *domain.RecyclingEvent, newBalance int64) error {
	id := uuid.NewString()

	insert :=
		`INSERT INTO recycling_events (id, user_id, material, quantity, points_awarded, "timestamp")
		 VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := t.db.ExecContext(ctx, insert,
		id, event.UserID, string(event.Material), event.Quantity, event.PointsAwarded, event.Timestamp.UTC()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	update :=
		`UPDATE users SET points = $1, version = version + 1, updated_at = $2
		 WHERE id = $3 AND version = $4`
	res, err := t.db.ExecContext(ctx, update, newBalance, event.Timestamp.UTC(), t.user.ID, t.user.Version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}

	event.ID = id
	return nil
}

func scanEvent(row *sql.Row) (*domain.RecyclingEvent, error) {
	var (
		ev       domain.RecyclingEvent
		material string
	)
	err := row.Scan(&ev.ID, &ev.UserID, &material, &ev.Quantity, &ev.PointsAwarded, &ev.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	ev.Material = domain.Material(material)
	ev.Timestamp = ev.Timestamp.UTC()
	return &ev, nil
}
