package driven

import (
	"context"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
)

// Selector is a conjunction of equality predicates over indexed fields.
// Type is required; List narrows to items of one list. Backing stores must
// index type (and type+list) before the model is considered ready.
type Selector struct {
	Type string
	List string
}

// BulkResult is the per-document outcome of a bulk write. Partial success
// is allowed; the caller inspects each result.
type BulkResult struct {
	ID  string
	Rev string
	Err error
}

// Change is one entry of the store's ordered change feed.
type Change struct {
	// Seq is the store-local, strictly increasing sequence number.
	Seq int64

	// Doc is the document at that sequence. Tombstones carry Deleted=true.
	Doc domain.Document
}

// DocumentStore is the contract around the local embedded, schema-less
// document database. Local documents (ids under "_local/") are readable and
// writable through GetLocal/PutLocal but never appear in FindByIndex or the
// change feed.
type DocumentStore interface {
	// Get retrieves a document by id. Tombstoned or unknown ids return
	// domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// Put creates or updates a document. Updating an existing document
	// requires its current revision token; a stale token returns
	// domain.ErrConflict. Returns the id and the new revision.
	Put(ctx context.Context, doc *domain.Document) (id, rev string, err error)

	// RemoveByRev tombstones a document, authorised by its current revision.
	RemoveByRev(ctx context.Context, id, rev string) error

	// BulkWrite applies many writes in one store operation, atomically where
	// the backing store supports it. Each document follows Put semantics;
	// failures are reported per document, not as a whole.
	BulkWrite(ctx context.Context, docs []domain.Document) ([]BulkResult, error)

	// FindByIndex returns all live documents matching the selector.
	// Ordering is the caller's responsibility.
	FindByIndex(ctx context.Context, sel Selector) ([]domain.Document, error)

	// Changes returns the feed entries with Seq > since, in order, plus the
	// highest sequence seen. Tombstones are included; local documents never.
	Changes(ctx context.Context, since int64) ([]Change, int64, error)

	// ApplyReplicated upserts documents arriving from a remote peer,
	// last-writer-wins, bypassing the revision check. Tombstones are kept.
	ApplyReplicated(ctx context.Context, docs []domain.Document) error

	// GetLocal reads a local-only document's raw body and revision.
	GetLocal(ctx context.Context, id string) (body []byte, rev string, err error)

	// PutLocal writes a local-only document. rev must match the stored
	// revision ("" for first write). Returns the new revision.
	PutLocal(ctx context.Context, id, rev string, body []byte) (newRev string, err error)

	// Close releases the store handle.
	Close() error
}

// StoreOpener lazily opens (or creates) the document store, including its
// indexes. The model calls it exactly once, during Initialize.
type StoreOpener func(ctx context.Context) (DocumentStore, error)
