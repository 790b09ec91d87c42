package driven

import (
	"context"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
)

// RemotePeer is a connected remote document-store endpoint. Sequence numbers
// are peer-local: cursors obtained from one peer are meaningless to another.
type RemotePeer interface {
	// Changes returns the remote feed entries with Seq > since, plus the
	// remote's highest sequence.
	Changes(ctx context.Context, since int64) ([]Change, int64, error)

	// Push uploads locally written documents (including tombstones) to the
	// remote store.
	Push(ctx context.Context, docs []domain.Document) error

	// Feed opens a live change subscription starting after since. The
	// returned channels are closed when the subscription ends; a transport
	// failure is delivered on the error channel first.
	Feed(ctx context.Context, since int64) (<-chan Change, <-chan error, error)

	// Close releases the connection.
	Close() error
}

// RemoteDialer connects to a remote document-store endpoint by URL.
type RemoteDialer interface {
	Dial(ctx context.Context, url string) (RemotePeer, error)
}
