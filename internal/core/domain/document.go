package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document kinds stored in the shopping database.
const (
	// TypeList is a shopping list, owner of zero or more items.
	TypeList = "list"

	// TypeItem is a single entry belonging to exactly one list.
	TypeItem = "item"
)

// SchemaVersion is the current document schema version.
const SchemaVersion = 1

// LocalDocPrefix marks documents that are never replicated to a remote peer.
const LocalDocPrefix = "_local/"

// Document is the canonical shape of a list or item document.
//
// A single struct covers both kinds: lists carry Place and leave List empty,
// items carry List (the owning list's id) and leave Place nil. The store
// treats the body as opaque JSON; only ID, Rev, Type, List and Deleted are
// meaningful to it.
type Document struct {
	// ID is the unique identifier, namespaced as "list:<uuid>" or "item:<uuid>".
	// Generated once at creation and immutable thereafter.
	ID string `json:"_id"`

	// Rev is the opaque revision token required to authorise updates and
	// deletes (optimistic concurrency). Empty on documents not yet stored.
	Rev string `json:"_rev,omitempty"`

	// Deleted marks a tombstone. Tombstones are kept so deletions replicate.
	Deleted bool `json:"_deleted,omitempty"`

	// Type is "list" or "item".
	Type string `json:"type"`

	// Version is the schema version the document was written with.
	Version int `json:"version"`

	// Title is the human-readable name. Required, non-empty.
	Title string `json:"title"`

	// Checked is user-settable on items. On lists it is derived: true iff
	// the list has at least one item and all of them are checked.
	Checked bool `json:"checked"`

	// List is the owning list's id. Items only.
	List string `json:"list,omitempty"`

	// Place is an optional structured location. Lists only.
	Place *Place `json:"place,omitempty"`

	// CreatedAt is an ISO-8601 timestamp stamped once at creation.
	CreatedAt string `json:"createdAt"`

	// UpdatedAt is empty until the first update, then restamped on every
	// mutation of the existing document.
	UpdatedAt string `json:"updatedAt"`
}

// Place is a structured location attached to a list.
type Place struct {
	Title   string            `json:"title"`
	License string            `json:"license"`
	Lat     *float64          `json:"lat"`
	Lon     *float64          `json:"lon"`
	Address map[string]string `json:"address"`
}

// clone returns a deep copy so factory callers can never alias the input.
func (p *Place) clone() *Place {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Address != nil {
		cp.Address = make(map[string]string, len(p.Address))
		for k, v := range p.Address {
			cp.Address[k] = v
		}
	}
	return &cp
}

// NewDocumentID generates a fresh identifier for the given kind.
//
// The generator is fixed to UUIDv4; ids from older datasets remain readable
// because identifiers are treated as opaque strings everywhere, but this
// format is the compatibility boundary for newly created documents.
func NewDocumentID(kind string) string {
	return kind + ":" + uuid.NewString()
}

// KindOfID returns the namespace prefix of an id ("list", "item"), or ""
// when the id carries no recognisable prefix.
func KindOfID(id string) string {
	kind, _, ok := strings.Cut(id, ":")
	if !ok {
		return ""
	}
	switch kind {
	case TypeList, TypeItem:
		return kind
	default:
		return ""
	}
}

// IsLocalID reports whether an id names a local-only, non-replicated document.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalDocPrefix)
}

// Timestamp returns the current time in the ISO-8601 format documents use.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
