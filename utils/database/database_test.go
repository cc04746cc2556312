package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"filterbot/model"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "filtering.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestFilterListsRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.ReplaceFilterLists(ctx, []model.FilterListRecord{
		{
			Name:     "antispam",
			ListType: 0,
			Settings: map[string]any{"remove_context": true, "guild_pings": []any{"Moderators"}},
			Filters: []model.FilterRecord{
				{Content: "burst", AdditionalField: map[string]any{"interval": 10, "threshold": 7}},
			},
		},
		{Name: "extension", ListType: 1, Settings: map[string]any{"enabled": true}},
	})
	require.NoError(t, err)

	lists, err := store.FilterLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	require.Equal(t, "antispam", lists[0].Name)
	require.Equal(t, true, lists[0].Settings["remove_context"])
	require.Len(t, lists[0].Filters, 1)
	require.Equal(t, 7.0, lists[0].Filters[0].AdditionalField["threshold"])
	require.Empty(t, lists[1].Filters)
	require.False(t, lists[1].CreatedAt.IsZero())

	added, err := store.AddFilter(ctx, "extension", 1, model.FilterRecord{Content: ".png", Description: "images"})
	require.NoError(t, err)
	require.NotZero(t, added.ID)

	lists, err = store.FilterLists(ctx)
	require.NoError(t, err)
	require.Equal(t, ".png", lists[1].Filters[0].Content)
	require.Equal(t, "images", lists[1].Filters[0].Description)

	require.NoError(t, store.DeleteFilter(ctx, added.ID))
	require.ErrorIs(t, store.DeleteFilter(ctx, added.ID), ErrFilterNotFound)

	_, err = store.AddFilter(ctx, "domain", 0, model.FilterRecord{Content: "scam.com"})
	require.ErrorIs(t, err, ErrFilterNotFound)
}

func TestReplaceFilterListsDropsOldFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := []model.FilterListRecord{{Name: "token", Filters: []model.FilterRecord{{Content: "bad"}, {Content: "worse"}}}}
	require.NoError(t, store.ReplaceFilterLists(ctx, first))
	require.NoError(t, store.ReplaceFilterLists(ctx, []model.FilterListRecord{{Name: "token", Filters: []model.FilterRecord{{Content: "new"}}}}))

	lists, err := store.FilterLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	require.Len(t, lists[0].Filters, 1)
	require.Equal(t, "new", lists[0].Filters[0].Content)
}

func TestOffensiveMessages(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.AddOffensive(ctx, model.OffensiveMessage{MessageID: "m2", ChannelID: "c", DeleteAt: now.Add(2 * time.Hour)}))
	require.NoError(t, store.AddOffensive(ctx, model.OffensiveMessage{MessageID: "m1", ChannelID: "c", DeleteAt: now.Add(time.Hour)}))
	// A second record for the same message moves its deadline.
	require.NoError(t, store.AddOffensive(ctx, model.OffensiveMessage{MessageID: "m2", ChannelID: "c", DeleteAt: now.Add(30 * time.Minute)}))

	pending, err := store.PendingOffensive(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "m2", pending[0].MessageID)
	require.WithinDuration(t, now.Add(30*time.Minute), pending[0].DeleteAt, time.Second)

	require.NoError(t, store.DeleteOffensive(ctx, "m2"))
	require.NoError(t, store.DeleteOffensive(ctx, "missing"))
	pending, err = store.PendingOffensive(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestInfractions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC()
	_, err := store.AddInfraction(ctx, model.InfractionRecord{UserID: "u1", GuildID: "g", Type: "WARNING", CreatedAt: old})
	require.NoError(t, err)
	id, err := store.AddInfraction(ctx, model.InfractionRecord{UserID: "u1", GuildID: "g", Type: "TIMEOUT", Reason: "burst spam", Duration: 600})
	require.NoError(t, err)
	require.NotZero(t, id)
	_, err = store.AddInfraction(ctx, model.InfractionRecord{UserID: "u2", GuildID: "g", Type: "BAN"})
	require.NoError(t, err)

	records, err := store.Infractions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "TIMEOUT", records[0].Type)
	require.Equal(t, int64(600), records[0].Duration)

	since := time.Now().Add(-time.Hour)
	recent, err := GetInfractionRecordsByUserID(ctx, store.DB, "u1", &since)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}
