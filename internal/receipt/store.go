package receipt

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store implementations when no receipt exists for
// the given identifier.
var ErrNotFound = errors.New("receipt not found")

// Update is a partial mutation of a stored receipt. Nil fields are left
// untouched; updated_at is always refreshed by the store.
type Update struct {
	Status          *Status
	ExtractedData   *ExtractedData
	ProcessingError *string
}

// Store is the record store holding one document per receipt.
// Implementations must order List results by created_at descending.
type Store interface {
	// Create persists a new receipt and returns its assigned identifier.
	Create(ctx context.Context, r *Receipt) (string, error)

	// Get returns the receipt with the given identifier, or ErrNotFound.
	Get(ctx context.Context, id string) (*Receipt, error)

	// Update applies a partial update to the receipt with the given
	// identifier. Returns ErrNotFound if the receipt does not exist.
	Update(ctx context.Context, id string, upd Update) error

	// List returns up to limit receipts, newest first, skipping offset.
	List(ctx context.Context, limit, offset int) ([]*Receipt, error)
}
