package driving

import (
	"context"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
)

// SaveResult identifies a stored document after a successful write.
type SaveResult struct {
	ID  string
	Rev string
}

// Model is the single entry point the UI layer consumes. Initialize must
// complete before any other operation; earlier calls fail with
// domain.ErrNotReady.
type Model interface {
	// Initialize opens (or creates) the store and ensures its indexes.
	// A failed initialisation stays failed and must be retried by calling
	// Initialize again.
	Initialize(ctx context.Context) error

	// Lists returns all documents with type "list", unordered.
	Lists(ctx context.Context) ([]domain.Document, error)

	// Items returns all documents with type "item" belonging to listID.
	Items(ctx context.Context, listID string) ([]domain.Document, error)

	// GetDocument retrieves a single document by id.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// Save applies a write request: NewList and NewItem create canonical
	// documents via the schema factory, Existing stamps updatedAt and
	// writes through the revision check.
	Save(ctx context.Context, req domain.SaveRequest) (*SaveResult, error)

	// Remove deletes a document. Removing a list cascades: all of its items
	// are tombstoned (children before parent) and then the list itself is
	// removed by revision.
	Remove(ctx context.Context, id string) error

	// Settings returns the stored settings, or defaults when no settings
	// document exists yet.
	Settings(ctx context.Context) (*domain.Settings, error)

	// SaveSettings writes settings, carrying the revision forward from the
	// last read (read-modify-write).
	SaveSettings(ctx context.Context, settings domain.Settings) error

	// Synchronize starts replication against remoteURL. See SyncController.
	Synchronize(ctx context.Context, remoteURL string, onComplete CompleteFunc, onChange ChangeFunc) error
}
