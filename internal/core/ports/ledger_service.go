package ports

import (
	"context"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

// RecordEventInput is the DTO passed from the transport layer to the ledger.
type RecordEventInput struct {
	UserID   string
	Material string
	Quantity int
}

// LedgerService records recycling events and credits points.
type LedgerService interface {
	RecordEvent(ctx context.Context, in RecordEventInput) (*domain.RecyclingEvent, error)
	GetEvent(ctx context.Context, id string) (*domain.RecyclingEvent, error)
}
