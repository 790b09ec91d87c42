package httpsync

import "github.com/cartloop-labs/cartloop-cli/internal/core/domain"

// Wire types for the peer protocol. The serving side
// (adapters/driving/peer) marshals the same shapes.

// ChangeRow is one change feed entry on the wire. It is also the message
// format of the live WebSocket feed.
type ChangeRow struct {
	Seq int64           `json:"seq"`
	Doc domain.Document `json:"doc"`
}

// ChangesResponse is the body of GET /db/changes.
type ChangesResponse struct {
	Results []ChangeRow `json:"results"`
	LastSeq int64       `json:"last_seq"`
}

// BulkDocsRequest is the body of POST /db/bulk_docs.
type BulkDocsRequest struct {
	Docs []domain.Document `json:"docs"`
}
