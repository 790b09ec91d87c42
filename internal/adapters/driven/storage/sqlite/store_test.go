package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newListDoc(t *testing.T, title string) domain.Document {
	t.Helper()
	doc, err := domain.NewListDocument(domain.NewList{Title: title})
	require.NoError(t, err)
	return *doc
}

func TestNewStore_Success(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, "shopping.db"), store.Path())
}

func TestNewStore_DirectoryCreation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()
}

func TestStore_MigrationIdempotency(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Opening the same database again must not re-run migrations.
	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	var count int
	row := store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStore_PutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newListDoc(t, "Groceries")
	id, rev, err := store.Put(ctx, &doc)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, id)
	assert.NotEmpty(t, rev)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, rev, got.Rev)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "list:missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Put_StaleRevConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newListDoc(t, "Groceries")
	_, rev, err := store.Put(ctx, &doc)
	require.NoError(t, err)

	doc.Rev = rev
	doc.Title = "Weekly groceries"
	_, rev2, err := store.Put(ctx, &doc)
	require.NoError(t, err)
	assert.NotEqual(t, rev, rev2)

	// Saving with the superseded revision must conflict.
	doc.Rev = rev
	_, _, err = store.Put(ctx, &doc)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_Put_UpdateOfMissing(t *testing.T) {
	store := newTestStore(t)

	doc := newListDoc(t, "Groceries")
	doc.Rev = "1-deadbeef"
	_, _, err := store.Put(context.Background(), &doc)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_RemoveByRev_Tombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newListDoc(t, "Groceries")
	id, rev, err := store.Put(ctx, &doc)
	require.NoError(t, err)

	require.NoError(t, store.RemoveByRev(ctx, id, rev))

	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// The tombstone still travels on the change feed.
	changes, _, err := store.Changes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Doc.Deleted)
	assert.Equal(t, id, changes[0].Doc.ID)
}

func TestStore_RemoveByRev_StaleRev(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newListDoc(t, "Groceries")
	id, _, err := store.Put(ctx, &doc)
	require.NoError(t, err)

	err = store.RemoveByRev(ctx, id, "1-deadbeef")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_BulkWrite_PartialSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	good := newListDoc(t, "Groceries")
	stale := newListDoc(t, "Hardware")
	stale.Rev = "1-deadbeef" // update of a document that does not exist

	results, err := store.BulkWrite(ctx, []domain.Document{good, stale})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Rev)
	require.Error(t, results[1].Err)

	// The successful write committed.
	_, err = store.Get(ctx, good.ID)
	require.NoError(t, err)
}

func TestStore_FindByIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	list := newListDoc(t, "Groceries")
	_, _, err := store.Put(ctx, &list)
	require.NoError(t, err)

	item, err := domain.NewItemDocument(domain.NewItem{Title: "Milk"}, list.ID)
	require.NoError(t, err)
	_, _, err = store.Put(ctx, item)
	require.NoError(t, err)

	other, err := domain.NewItemDocument(domain.NewItem{Title: "Nails"}, "list:other")
	require.NoError(t, err)
	_, _, err = store.Put(ctx, other)
	require.NoError(t, err)

	lists, err := store.FindByIndex(ctx, driven.Selector{Type: domain.TypeList})
	require.NoError(t, err)
	assert.Len(t, lists, 1)

	items, err := store.FindByIndex(ctx, driven.Selector{Type: domain.TypeItem, List: list.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Milk", items[0].Title)

	_, err = store.FindByIndex(ctx, driven.Selector{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_Changes_OrderingAndCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newListDoc(t, "First")
	second := newListDoc(t, "Second")
	_, _, err := store.Put(ctx, &first)
	require.NoError(t, err)
	_, _, err = store.Put(ctx, &second)
	require.NoError(t, err)

	changes, last, err := store.Changes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, first.ID, changes[0].Doc.ID)
	assert.Equal(t, second.ID, changes[1].Doc.ID)
	assert.Less(t, changes[0].Seq, changes[1].Seq)

	// Resuming from the cursor returns nothing new.
	changes, again, err := store.Changes(ctx, last)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, last, again)
}

func TestStore_ApplyReplicated_LastWriterWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := newListDoc(t, "Groceries")
	_, _, err := store.Put(ctx, &doc)
	require.NoError(t, err)

	inbound := doc
	inbound.Rev = "9-abcdef0011223344"
	inbound.Title = "Remote groceries"
	require.NoError(t, store.ApplyReplicated(ctx, []domain.Document{inbound}))

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Remote groceries", got.Title)
	assert.Equal(t, "9-abcdef0011223344", got.Rev)
}

func TestStore_LocalDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.GetLocal(ctx, domain.SettingsDocID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	rev, err := store.PutLocal(ctx, domain.SettingsDocID, "", []byte(`{"remoteDB":"http://couch.local/shopping"}`))
	require.NoError(t, err)

	body, gotRev, err := store.GetLocal(ctx, domain.SettingsDocID)
	require.NoError(t, err)
	assert.Equal(t, rev, gotRev)
	assert.Contains(t, string(body), "couch.local")

	// Stale revision conflicts.
	_, err = store.PutLocal(ctx, domain.SettingsDocID, "", []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrConflict)

	// Local documents never appear on the change feed.
	changes, _, err := store.Changes(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	doc := newListDoc(t, "Groceries")
	id, _, err := store.Put(ctx, &doc)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
}
