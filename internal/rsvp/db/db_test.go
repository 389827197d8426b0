package db_test

import (
	"context"
	"database/sql"
	"testing"

	"ms-invites/internal/models"
	"ms-invites/internal/rsvp/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Group)(nil)))
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Guest)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func seedGuest(t *testing.T, store *db.DB, id string, status models.EmailStatus) {
	t.Helper()
	require.NoError(t, store.CreateGuests(context.Background(), []models.Guest{{
		ID:          id,
		EventID:     "event-1",
		GroupID:     "group-1",
		FullName:    "Ann Smith",
		Email:       "ann@example.com",
		EmailStatus: status,
	}}))
}

func TestMarkGuestOpenedIsMonotonic(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedGuest(t, store, "guest-1", models.EmailStatusSent)

	advanced, err := store.MarkGuestOpened(ctx, "guest-1")
	require.NoError(t, err)
	assert.True(t, advanced)

	// A second pixel hit is a no-op.
	advanced, err = store.MarkGuestOpened(ctx, "guest-1")
	require.NoError(t, err)
	assert.False(t, advanced)

	guest, err := store.GetGuest(ctx, "guest-1")
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusOpened, guest.EmailStatus)
}

func TestMarkGuestOpenedIgnoresFailed(t *testing.T) {
	store := setupTestDB(t)
	seedGuest(t, store, "guest-1", models.EmailStatusFailed)

	advanced, err := store.MarkGuestOpened(context.Background(), "guest-1")
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestMarkGuestCompletedFromOpened(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedGuest(t, store, "guest-1", models.EmailStatusOpened)

	advanced, err := store.MarkGuestCompleted(ctx, "guest-1")
	require.NoError(t, err)
	assert.True(t, advanced)

	// completed is terminal for the pixel too.
	advanced, err = store.MarkGuestOpened(ctx, "guest-1")
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestDeleteGroupRemovesGuests(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, &models.Group{ID: "group-1", EventID: "event-1", GroupName: "Smiths"}))
	seedGuest(t, store, "guest-1", models.EmailStatusNone)
	seedGuest(t, store, "guest-2", models.EmailStatusNone)

	deleted, err := store.DeleteGroup(ctx, "group-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	guests, err := store.ListGuestsByEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Empty(t, guests)

	deleted, err = store.DeleteGroup(ctx, "group-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListGroupsWithGuestsBuildsTree(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, &models.Group{ID: "group-1", EventID: "event-1", GroupName: "Smiths"}))
	require.NoError(t, store.CreateGroup(ctx, &models.Group{ID: "group-2", EventID: "event-1", GroupName: "Empty"}))
	seedGuest(t, store, "guest-1", models.EmailStatusNone)

	tree, err := store.ListGroupsWithGuests(ctx, "event-1")
	require.NoError(t, err)
	require.Len(t, tree, 2)

	byID := map[string]models.GroupWithGuests{}
	for _, node := range tree {
		byID[node.ID] = node
	}
	assert.Len(t, byID["group-1"].Guests, 1)
	require.NotNil(t, byID["group-2"].Guests)
	assert.Empty(t, byID["group-2"].Guests)
}

func TestUpdateGuestMissingReturnsNil(t *testing.T) {
	store := setupTestDB(t)

	name := "Renamed"
	guest, err := store.UpdateGuest(context.Background(), "missing", &models.GuestPatch{FullName: &name})
	require.NoError(t, err)
	assert.Nil(t, guest)
}
