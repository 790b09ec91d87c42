package driving

import (
	"context"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
)

// SyncInfo summarises a completed catch-up pass.
type SyncInfo struct {
	// DocsPulled is the number of remote documents applied locally.
	DocsPulled int

	// DocsPushed is the number of local documents uploaded to the remote.
	DocsPushed int
}

// CompleteFunc receives the outcome of the one-shot catch-up phase.
// err is non-nil exactly when catch-up failed (the continuous phase then
// never starts).
type CompleteFunc func(err error, info *SyncInfo)

// ChangeFunc receives inbound (remote-to-local) change batches from the
// continuous phase, or a transport error. Documents with Deleted set are
// removals the caller must reflect; others are upserts. Outbound changes are
// never reported - the caller already knows about its own writes.
type ChangeFunc func(err error, docs []domain.Document)

// SyncController manages the two-phase replication lifecycle: a one-shot
// catch-up pass, then a continuous, auto-retrying, bidirectional session.
type SyncController interface {
	// Synchronize cancels any prior continuous session, then replicates
	// against remoteURL. An empty remoteURL completes immediately with a
	// no-op success (local-only mode).
	Synchronize(ctx context.Context, remoteURL string, onComplete CompleteFunc, onChange ChangeFunc) error

	// Cancel stops the active continuous session, if any, and waits for it
	// to wind down.
	Cancel()
}
