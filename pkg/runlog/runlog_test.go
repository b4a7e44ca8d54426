package runlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/pkg/logger"
)

func TestSaveAndLoad(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	started := time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC)
	rec := &Record{
		RunID:      "run-1",
		Kind:       "favorite",
		Success:    true,
		Stage:      "done",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Duration:   90 * time.Second,
		Added:      2,
		Removed:    1,
	}
	require.NoError(t, mgr.Save(rec))

	loaded, err := mgr.Load("favorite")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, 2, loaded.Added)
	assert.Equal(t, 90*time.Second, loaded.Duration)
	assert.True(t, loaded.StartedAt.Equal(started))
	assert.Equal(t, 1, loaded.Version)

	_, err = os.Stat(filepath.Join(mgr.Dir(), "last-run-favorite.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestSaveReplacesPreviousRecord(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, mgr.Save(&Record{RunID: "a", Kind: "retweet", Success: true}))
	require.NoError(t, mgr.Save(&Record{RunID: "b", Kind: "retweet", Error: "listing failed"}))

	loaded, err := mgr.Load("retweet")
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.RunID)
	assert.False(t, loaded.Success)
	assert.Equal(t, "listing failed", loaded.Error)
}

func TestLoadMissing(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	rec, err := mgr.Load("favorite")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLoadAll(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, mgr.Save(&Record{Kind: "retweet"}))
	require.NoError(t, mgr.Save(&Record{Kind: "favorite"}))
	require.NoError(t, os.WriteFile(filepath.Join(mgr.Dir(), "last-run-broken.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(mgr.Dir(), "notes.txt"), []byte("x"), 0644))

	all, err := mgr.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "favorite", all[0].Kind)
	assert.Equal(t, "retweet", all[1].Kind)
}

func TestSaveRequiresKind(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Error(t, mgr.Save(&Record{RunID: "x"}))
}

func TestDefaultDirectoryUsesXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	mgr, err := NewManager("", logger.NewNopLogger())
	if err != nil {
		t.Skipf("no data directory on this platform: %v", err)
	}
	assert.DirExists(t, mgr.Dir())
}
