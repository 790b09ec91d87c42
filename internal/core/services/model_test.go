package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/storage/memory"
	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driving"
)

func newReadyModel(t *testing.T) (*Model, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	model := NewModel(func(context.Context) (driven.DocumentStore, error) {
		return store, nil
	}, nil)
	require.NoError(t, model.Initialize(context.Background()))
	return model, store
}

func mustSaveList(t *testing.T, model *Model, title string) string {
	t.Helper()
	res, err := model.Save(context.Background(), domain.NewList{Title: title})
	require.NoError(t, err)
	return res.ID
}

func mustSaveItem(t *testing.T, model *Model, listID, title string, checked bool) string {
	t.Helper()
	res, err := model.Save(context.Background(), domain.NewItem{List: listID, Title: title, Checked: checked})
	require.NoError(t, err)
	return res.ID
}

func TestModel_NotReadyBeforeInitialize(t *testing.T) {
	model := NewModel(func(context.Context) (driven.DocumentStore, error) {
		return memory.NewStore(), nil
	}, nil)

	_, err := model.Lists(context.Background())
	require.ErrorIs(t, err, domain.ErrNotReady)

	_, err = model.Save(context.Background(), domain.NewList{Title: "Groceries"})
	require.ErrorIs(t, err, domain.ErrNotReady)

	err = model.Remove(context.Background(), "list:x")
	require.ErrorIs(t, err, domain.ErrNotReady)
}

func TestModel_FailedInitializeCanBeRetried(t *testing.T) {
	attempts := 0
	model := NewModel(func(context.Context) (driven.DocumentStore, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("disk full")
		}
		return memory.NewStore(), nil
	}, nil)

	err := model.Initialize(context.Background())
	require.ErrorIs(t, err, domain.ErrInit)

	// Still not ready after the failure.
	_, err = model.Lists(context.Background())
	require.ErrorIs(t, err, domain.ErrNotReady)

	// Retrying succeeds.
	require.NoError(t, model.Initialize(context.Background()))
	_, err = model.Lists(context.Background())
	require.NoError(t, err)
}

func TestModel_RoundTrip(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	res, err := model.Save(ctx, domain.NewList{Title: "Groceries"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ID, "list:"))
	assert.NotEmpty(t, res.Rev)

	doc, err := model.GetDocument(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeList, doc.Type)
	assert.Equal(t, "Groceries", doc.Title)
	assert.False(t, doc.Checked)
	assert.NotEmpty(t, doc.CreatedAt)
	assert.Empty(t, doc.UpdatedAt)
}

func TestModel_Save_Validation_NoWrite(t *testing.T) {
	model, store := newReadyModel(t)
	ctx := context.Background()

	_, err := model.Save(ctx, domain.NewItem{List: "list:a"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = model.Save(ctx, domain.NewList{})
	require.ErrorIs(t, err, domain.ErrValidation)

	// Nothing reached the store.
	changes, _, err := store.Changes(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestModel_Save_ExistingStampsUpdatedAt(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	id := mustSaveList(t, model, "Groceries")
	doc, err := model.GetDocument(ctx, id)
	require.NoError(t, err)
	require.Empty(t, doc.UpdatedAt)

	doc.Title = "Weekly groceries"
	res, err := model.Save(ctx, domain.Existing{Doc: *doc})
	require.NoError(t, err)
	assert.Equal(t, id, res.ID)

	updated, err := model.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Weekly groceries", updated.Title)
	assert.NotEmpty(t, updated.UpdatedAt)
	assert.NotEqual(t, doc.Rev, updated.Rev)
}

func TestModel_Save_IdempotentUpdate(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	id := mustSaveList(t, model, "Groceries")

	// Two sequential saves of the re-read document never conflict, and
	// updatedAt is monotonically non-decreasing.
	var prevUpdatedAt string
	for i := 0; i < 2; i++ {
		doc, err := model.GetDocument(ctx, id)
		require.NoError(t, err)
		_, err = model.Save(ctx, domain.Existing{Doc: *doc})
		require.NoError(t, err)

		after, err := model.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, after.UpdatedAt, prevUpdatedAt)
		prevUpdatedAt = after.UpdatedAt
	}
}

func TestModel_Save_ExistingWithoutID(t *testing.T) {
	model, _ := newReadyModel(t)

	_, err := model.Save(context.Background(), domain.Existing{Doc: domain.Document{Type: domain.TypeList, Title: "x"}})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestModel_CascadeDelete(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	listID := mustSaveList(t, model, "Groceries")
	itemIDs := []string{
		mustSaveItem(t, model, listID, "Milk", false),
		mustSaveItem(t, model, listID, "Eggs", false),
		mustSaveItem(t, model, listID, "Bread", true),
	}
	// An item of another list must survive.
	otherList := mustSaveList(t, model, "Hardware")
	survivor := mustSaveItem(t, model, otherList, "Nails", false)

	require.NoError(t, model.Remove(ctx, listID))

	_, err := model.GetDocument(ctx, listID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	for _, id := range itemIDs {
		_, err := model.GetDocument(ctx, id)
		require.ErrorIs(t, err, domain.ErrNotFound, "item %s should be gone", id)
	}

	_, err = model.GetDocument(ctx, survivor)
	require.NoError(t, err)
}

func TestModel_Remove_Item_RecomputesList(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	listID := mustSaveList(t, model, "Groceries")
	checked := mustSaveItem(t, model, listID, "Milk", true)
	unchecked := mustSaveItem(t, model, listID, "Eggs", false)
	_ = checked

	// Removing the unchecked item leaves only checked items.
	require.NoError(t, model.Remove(ctx, unchecked))

	list, err := model.GetDocument(ctx, listID)
	require.NoError(t, err)
	assert.True(t, list.Checked)
}

func TestModel_Remove_UnknownID(t *testing.T) {
	model, _ := newReadyModel(t)

	err := model.Remove(context.Background(), "list:missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestModel_DerivedCheckedFlag(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	listID := mustSaveList(t, model, "Groceries")

	// Zero items: never auto-checked.
	list, err := model.GetDocument(ctx, listID)
	require.NoError(t, err)
	assert.False(t, list.Checked)

	mustSaveItem(t, model, listID, "Milk", true)
	secondID := mustSaveItem(t, model, listID, "Eggs", false)

	list, err = model.GetDocument(ctx, listID)
	require.NoError(t, err)
	assert.False(t, list.Checked, "one unchecked item keeps the list unchecked")

	second, err := model.GetDocument(ctx, secondID)
	require.NoError(t, err)
	second.Checked = true
	_, err = model.Save(ctx, domain.Existing{Doc: *second})
	require.NoError(t, err)

	list, err = model.GetDocument(ctx, listID)
	require.NoError(t, err)
	assert.True(t, list.Checked, "all items checked flips the list")
}

func TestModel_ListsAndItems(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	a := mustSaveList(t, model, "Groceries")
	b := mustSaveList(t, model, "Hardware")
	mustSaveItem(t, model, a, "Milk", false)
	mustSaveItem(t, model, a, "Eggs", false)
	mustSaveItem(t, model, b, "Nails", false)

	lists, err := model.Lists(ctx)
	require.NoError(t, err)
	assert.Len(t, lists, 2)

	items, err := model.Items(ctx, a)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestModel_Settings_DefaultsWhenMissing(t *testing.T) {
	model, _ := newReadyModel(t)

	settings, err := model.Settings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, settings.RemoteDB)
	assert.Empty(t, settings.Rev)
}

func TestModel_Settings_ReadModifyWrite(t *testing.T) {
	model, _ := newReadyModel(t)
	ctx := context.Background()

	require.NoError(t, model.SaveSettings(ctx, domain.Settings{RemoteDB: "http://couch.local/shopping"}))

	settings, err := model.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://couch.local/shopping", settings.RemoteDB)
	assert.NotEmpty(t, settings.Rev)

	// A second save carries the revision forward without the caller
	// tracking it.
	require.NoError(t, model.SaveSettings(ctx, domain.Settings{RemoteDB: "http://other.local/shopping"}))

	settings, err = model.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://other.local/shopping", settings.RemoteDB)
}

func TestModel_Synchronize_LocalOnly(t *testing.T) {
	model, _ := newReadyModel(t)

	var completed bool
	err := model.Synchronize(context.Background(), "", func(err error, info *driving.SyncInfo) {
		completed = true
		assert.NoError(t, err)
		require.NotNil(t, info)
		assert.Zero(t, info.DocsPulled)
		assert.Zero(t, info.DocsPushed)
	}, nil)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestModel_Synchronize_NotReady(t *testing.T) {
	model := NewModel(func(context.Context) (driven.DocumentStore, error) {
		return memory.NewStore(), nil
	}, nil)

	err := model.Synchronize(context.Background(), "", nil, nil)
	require.ErrorIs(t, err, domain.ErrNotReady)
}
