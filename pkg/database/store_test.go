package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/pkg/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "mediakeeper.db"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(name string, saved time.Time) *MediaRecord {
	return &MediaRecord{
		Filename:     name,
		URL:          "https://pbs.twimg.com/media/" + name + ":orig",
		PostID:       "100",
		PostURL:      "https://twitter.com/a/status/100",
		CreatedAt:    saved.Add(-time.Hour),
		AuthorHandle: "a",
		MediaKind:    "photo",
		SavedAt:      saved,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, KindFavorite, record("a.jpg", now)))
	require.NoError(t, s.Upsert(ctx, KindFavorite, record("a.jpg", now.Add(time.Minute))))

	n, err := s.Count(ctx, KindFavorite)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := s.SelectByFilename(ctx, KindFavorite, "a.jpg")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "https://pbs.twimg.com/media/a.jpg:orig", rec.URL)
	assert.True(t, rec.SavedAt.Equal(now.Add(time.Minute)), "replace semantics keep the latest row")
	assert.True(t, rec.CreatedAt.Equal(now.Add(time.Minute).Add(-time.Hour)))
	assert.True(t, rec.Exists)
}

func TestUpsertReplacesOnURLConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := record("a.jpg", now)
	second := record("b.jpg", now)
	second.URL = first.URL

	require.NoError(t, s.Upsert(ctx, KindFavorite, first))
	require.NoError(t, s.Upsert(ctx, KindFavorite, second))

	n, err := s.Count(ctx, KindFavorite)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollectionsAreSeparate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, KindFavorite, record("a.jpg", time.Now())))
	rec, err := s.SelectByFilename(ctx, KindRetweet, "a.jpg")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Error(t, s.Upsert(ctx, Kind("bookmark"), record("a.jpg", time.Now())))
}

func TestUpsertRejectsIncompleteRecord(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Upsert(context.Background(), KindFavorite, &MediaRecord{Filename: "x.jpg"}))
}

func TestSelectRecentOrdersBySavedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(ctx, KindRetweet, record(fmt.Sprintf("%d.jpg", i), base.Add(time.Duration(i)*time.Second))))
	}

	recs, err := s.SelectRecent(ctx, KindRetweet, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "4.jpg", recs[0].Filename)
	assert.Equal(t, "3.jpg", recs[1].Filename)
	assert.Equal(t, "2.jpg", recs[2].Filename)

	none, err := s.SelectRecent(ctx, KindRetweet, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExistFlagReconciliation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		require.NoError(t, s.Upsert(ctx, KindFavorite, record(name, time.Now())))
	}

	require.NoError(t, s.ClearExistFlags(ctx, KindFavorite))
	require.NoError(t, s.MarkExisting(ctx, KindFavorite, []string{"a.jpg", "c.jpg", "unknown.jpg"}))

	flags := map[string]bool{}
	recs, err := s.SelectRecent(ctx, KindFavorite, 10)
	require.NoError(t, err)
	for _, r := range recs {
		flags[r.Filename] = r.Exists
	}
	assert.Equal(t, map[string]bool{"a.jpg": true, "b.jpg": false, "c.jpg": true}, flags)
}

func TestPendingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AddPending(ctx, PendingTarget{PostID: "old", CreatedAt: now.Add(-25 * time.Hour), Body: "done", Added: 2, Removed: 1}))
	require.NoError(t, s.AddPending(ctx, PendingTarget{PostID: "new", CreatedAt: now.Add(-time.Hour)}))
	// duplicate post ids are ignored
	require.NoError(t, s.AddPending(ctx, PendingTarget{PostID: "old", CreatedAt: now}))

	due, err := s.SelectDuePending(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "old", due[0].PostID)
	assert.Equal(t, 2, due[0].Added)
	assert.Equal(t, 1, due[0].Removed)
	assert.False(t, due[0].DeleteDone)

	require.NoError(t, s.MarkPendingDeleted(ctx, "old", now))

	due, err = s.SelectDuePending(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "new", due[0].PostID, "closed targets are never selected again")

	// closing twice keeps the first deletion time
	require.NoError(t, s.MarkPendingDeleted(ctx, "old", now.Add(time.Hour)))
	var deletedAt string
	require.NoError(t, s.db.QueryRow(`SELECT deleted_at FROM pending_deletions WHERE post_id = 'old'`).Scan(&deletedAt))
	assert.Equal(t, formatTime(now), deletedAt)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep.db")
	s, err := Open(path, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), KindFavorite, record("a.jpg", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path, logger.NewNopLogger())
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background(), KindFavorite)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKindTitle(t *testing.T) {
	assert.Equal(t, "Favorite", KindFavorite.Title())
	assert.Equal(t, "Retweet", KindRetweet.Title())
}
