package service

import (
	"context"
	"fmt"
	"time"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

// DefaultDuplicateWindow is the cooldown between two accepted scans of the
// same material by the same user.
const DefaultDuplicateWindow = 5 * time.Second

// DuplicateGuard rejects a scan that arrives within window of the previous
// scan of the same material by the same user.
type DuplicateGuard struct {
	window time.Duration
}

func NewDuplicateGuard(window time.Duration) *DuplicateGuard {
	if window < 0 {
		window = 0
	}
	return &DuplicateGuard{window: window}
}

func (g *DuplicateGuard) Window() time.Duration {
	return g.window
}

// IsDuplicate must be called with the history of a locked unit of work,
// otherwise two concurrent scans can both pass.
// A scan exactly window after the previous one is accepted.
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, history ports.EventHistory, userID string, material domain.Material, now time.Time) (bool, error) {
	last, err := history.LatestEvent(ctx, userID, material)
	if err != nil {
		return false, fmt.Errorf("duplicate guard: %w", err)
	}
	if last == nil {
		return false, nil
	}
	return now.Sub(last.Timestamp) < g.window, nil
}
