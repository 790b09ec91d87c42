package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driving"
	"github.com/cartloop-labs/cartloop-cli/internal/logger"
)

// Ensure Model implements the interface.
var _ driving.Model = (*Model)(nil)

// modelState tracks the initialisation state machine:
// uninitialized -> initializing -> ready. There is no transition back; a
// failed initialisation returns to uninitialized and must be retried.
type modelState int

const (
	stateUninitialized modelState = iota
	stateInitializing
	stateReady
)

// Model owns the document store handle and all shopping-list invariants.
// The store is opened lazily by Initialize and treated as exclusively owned:
// no other component writes to it directly.
type Model struct {
	open   driven.StoreOpener
	dialer driven.RemoteDialer

	mu    sync.Mutex
	state modelState
	store driven.DocumentStore
	sync  driving.SyncController
}

// NewModel creates a model around a store opener. The dialer is used to
// reach remote replication endpoints; it may be nil for local-only use,
// in which case Synchronize only accepts an empty remote URL.
func NewModel(open driven.StoreOpener, dialer driven.RemoteDialer) *Model {
	return &Model{open: open, dialer: dialer}
}

// Initialize opens the store and ensures its indexes exist. It must complete
// before any data operation; concurrent calls during initialisation fail
// with domain.ErrNotReady.
func (m *Model) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case stateReady:
		m.mu.Unlock()
		return nil
	case stateInitializing:
		m.mu.Unlock()
		return fmt.Errorf("%w: initialisation in progress", domain.ErrNotReady)
	case stateUninitialized:
	}
	m.state = stateInitializing
	m.mu.Unlock()

	store, err := m.open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = stateUninitialized
		return fmt.Errorf("%w: %w", domain.ErrInit, err)
	}

	m.store = store
	m.sync = NewSyncController(store, m.dialer)
	m.state = stateReady
	logger.Info("model ready")
	return nil
}

// ready returns the store handle, or ErrNotReady before Initialize completes.
func (m *Model) ready() (driven.DocumentStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateReady {
		return nil, domain.ErrNotReady
	}
	return m.store, nil
}

// Lists returns all shopping lists, unordered.
func (m *Model) Lists(ctx context.Context) ([]domain.Document, error) {
	store, err := m.ready()
	if err != nil {
		return nil, err
	}

	docs, err := store.FindByIndex(ctx, driven.Selector{Type: domain.TypeList})
	if err != nil {
		return nil, fmt.Errorf("finding lists: %w", err)
	}
	return docs, nil
}

// Items returns all items belonging to listID.
func (m *Model) Items(ctx context.Context, listID string) ([]domain.Document, error) {
	store, err := m.ready()
	if err != nil {
		return nil, err
	}

	docs, err := store.FindByIndex(ctx, driven.Selector{Type: domain.TypeItem, List: listID})
	if err != nil {
		return nil, fmt.Errorf("finding items of %s: %w", listID, err)
	}
	return docs, nil
}

// GetDocument retrieves a single document by id.
func (m *Model) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	store, err := m.ready()
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

// Save applies a write request. New documents go through the schema factory;
// existing documents get updatedAt stamped and are written through the
// revision check. Saving an item recomputes the owning list's checked flag.
func (m *Model) Save(ctx context.Context, req domain.SaveRequest) (*driving.SaveResult, error) {
	store, err := m.ready()
	if err != nil {
		return nil, err
	}

	var doc *domain.Document
	switch r := req.(type) {
	case domain.NewList:
		doc, err = domain.NewListDocument(r)
	case domain.NewItem:
		doc, err = domain.NewItemDocument(r, "")
	case domain.Existing:
		if r.Doc.ID == "" {
			return nil, fmt.Errorf("%w: existing document without id", domain.ErrValidation)
		}
		d := r.Doc
		d.UpdatedAt = domain.Timestamp()
		doc = &d
	default:
		return nil, fmt.Errorf("%w: unsupported save request %T", domain.ErrValidation, req)
	}
	if err != nil {
		return nil, err
	}

	id, rev, err := store.Put(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("saving %s: %w", doc.ID, err)
	}
	logger.Debug("saved %s rev %s", id, rev)

	if doc.Type == domain.TypeItem && doc.List != "" {
		m.recomputeChecked(ctx, store, doc.List)
	}

	return &driving.SaveResult{ID: id, Rev: rev}, nil
}

// Remove deletes a document by id. Removing a list cascades to its items:
// children are tombstoned first in one bulk write, then the parent is
// removed by revision. A failure to enumerate or delete children is logged
// and the parent delete still proceeds - an orphaned tombstone is preferable
// to a list that cannot be deleted.
func (m *Model) Remove(ctx context.Context, id string) error {
	store, err := m.ready()
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: missing id", domain.ErrValidation)
	}

	doc, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("removing %s: %w", id, err)
	}

	if doc.Type == domain.TypeList {
		m.removeChildren(ctx, store, doc.ID)
	}

	if err := store.RemoveByRev(ctx, doc.ID, doc.Rev); err != nil {
		return fmt.Errorf("removing %s: %w", id, err)
	}
	logger.Debug("removed %s", id)

	if doc.Type == domain.TypeItem && doc.List != "" {
		m.recomputeChecked(ctx, store, doc.List)
	}
	return nil
}

// removeChildren tombstones all items of a list in one bulk write.
// Best effort: every failure is logged, none is fatal.
func (m *Model) removeChildren(ctx context.Context, store driven.DocumentStore, listID string) {
	items, err := store.FindByIndex(ctx, driven.Selector{Type: domain.TypeItem, List: listID})
	if err != nil {
		logger.Error("cascade delete: enumerating items of %s: %v", listID, err)
		return
	}
	if len(items) == 0 {
		return
	}

	now := domain.Timestamp()
	for i := range items {
		items[i].Deleted = true
		items[i].UpdatedAt = now
	}

	results, err := store.BulkWrite(ctx, items)
	if err != nil {
		logger.Error("cascade delete: bulk write for %s: %v", listID, err)
		return
	}
	for _, res := range results {
		if res.Err != nil {
			logger.Error("cascade delete: item %s: %v", res.ID, res.Err)
		}
	}
}

// recomputeChecked re-derives a list's checked flag: true iff the list has
// at least one item and all of them are checked. Failures are logged, not
// returned - the flag converges on the next item mutation.
func (m *Model) recomputeChecked(ctx context.Context, store driven.DocumentStore, listID string) {
	items, err := store.FindByIndex(ctx, driven.Selector{Type: domain.TypeItem, List: listID})
	if err != nil {
		logger.Warn("recompute checked: enumerating items of %s: %v", listID, err)
		return
	}

	want := len(items) > 0
	for _, item := range items {
		if !item.Checked {
			want = false
			break
		}
	}

	list, err := store.Get(ctx, listID)
	if err != nil {
		logger.Warn("recompute checked: loading %s: %v", listID, err)
		return
	}
	if list.Checked == want {
		return
	}

	list.Checked = want
	list.UpdatedAt = domain.Timestamp()
	if _, _, err := store.Put(ctx, list); err != nil {
		logger.Warn("recompute checked: saving %s: %v", listID, err)
	}
}

// Settings returns the stored settings singleton, or defaults when none
// exists yet.
func (m *Model) Settings(ctx context.Context) (*domain.Settings, error) {
	store, err := m.ready()
	if err != nil {
		return nil, err
	}

	body, rev, err := store.GetLocal(ctx, domain.SettingsDocID)
	if errors.Is(err, domain.ErrNotFound) {
		s := domain.DefaultSettings()
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	var s domain.Settings
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	s.Rev = rev
	return &s, nil
}

// SaveSettings writes the settings singleton, carrying the stored revision
// forward so the caller never has to track it.
func (m *Model) SaveSettings(ctx context.Context, settings domain.Settings) error {
	store, err := m.ready()
	if err != nil {
		return err
	}

	_, rev, err := store.GetLocal(ctx, domain.SettingsDocID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("loading settings revision: %w", err)
	}

	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if _, err := store.PutLocal(ctx, domain.SettingsDocID, rev, body); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Synchronize delegates to the sync controller.
func (m *Model) Synchronize(ctx context.Context, remoteURL string, onComplete driving.CompleteFunc, onChange driving.ChangeFunc) error {
	if _, err := m.ready(); err != nil {
		return err
	}
	return m.sync.Synchronize(ctx, remoteURL, onComplete, onChange)
}

// SyncController exposes the controller for callers that need Cancel.
func (m *Model) SyncController() driving.SyncController {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sync
}
