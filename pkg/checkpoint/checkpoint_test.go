package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmediagrab/pkg/discovery"
	"xmediagrab/pkg/logger"
)

func TestCheckpointManager(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	t.Run("CreateAndLoad", func(t *testing.T) {
		mgr, err := NewManager("", "nasa", logger.NewNopLogger())
		require.NoError(t, err)

		cp, err := mgr.Create("run-1", "nasa")
		require.NoError(t, err)
		assert.Equal(t, "nasa", cp.User)
		assert.Equal(t, Version, cp.Version)

		loaded, err := mgr.Load()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "run-1", loaded.RunID)
		assert.NotNil(t, loaded.Downloaded)
	})

	t.Run("RecordDiscoveryAndDownloads", func(t *testing.T) {
		mgr, err := NewManager("", "nasa", logger.NewNopLogger())
		require.NoError(t, err)
		cp, err := mgr.Create("run-2", "nasa")
		require.NoError(t, err)

		result := discovery.Result{
			URLs:   []string{"https://pbs.twimg.com/media/a?format=jpg&name=large", "https://pbs.twimg.com/media/b?format=png&name=large"},
			Stats:  discovery.Stats{ScrollIterations: 7, URLsFound: 2},
			Reason: discovery.ReasonStagnation,
		}
		require.NoError(t, mgr.RecordDiscovery(cp, result))
		require.NoError(t, mgr.RecordDownloads(cp, "/tmp/out", map[int]string{1: "image_1.jpg"}))

		loaded, err := mgr.Load()
		require.NoError(t, err)
		assert.Equal(t, result.URLs, loaded.URLs)
		assert.Equal(t, 7, loaded.Stats.ScrollIterations)
		assert.True(t, loaded.Complete)
		assert.Equal(t, "image_1.jpg", loaded.Downloaded[1])
		assert.Equal(t, 1, loaded.TotalDownloaded)
		assert.Equal(t, []int{2}, loaded.Pending())
	})

	t.Run("CanceledRunIsIncomplete", func(t *testing.T) {
		mgr, err := NewManager("", "esa", logger.NewNopLogger())
		require.NoError(t, err)
		cp, err := mgr.Create("run-3", "esa")
		require.NoError(t, err)

		require.NoError(t, mgr.RecordDiscovery(cp, discovery.Result{Reason: discovery.ReasonCanceled}))
		loaded, err := mgr.Load()
		require.NoError(t, err)
		assert.False(t, loaded.Complete)
	})

	t.Run("MissingCheckpoint", func(t *testing.T) {
		mgr, err := NewManager("", "nobody", logger.NewNopLogger())
		require.NoError(t, err)
		assert.False(t, mgr.Exists())

		cp, err := mgr.Load()
		assert.NoError(t, err)
		assert.Nil(t, cp)

		info, err := mgr.GetCheckpointInfo()
		assert.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("DeleteAndBackup", func(t *testing.T) {
		mgr, err := NewManager("", "nasa", logger.NewNopLogger())
		require.NoError(t, err)
		_, err = mgr.Create("run-4", "nasa")
		require.NoError(t, err)

		// creating again keeps the previous file as a backup
		_, err = mgr.Create("run-5", "nasa")
		require.NoError(t, err)
		assert.FileExists(t, mgr.Path()+".backup")

		info, err := mgr.GetCheckpointInfo()
		require.NoError(t, err)
		assert.Equal(t, "run-5", info["run_id"])

		require.NoError(t, mgr.Delete())
		assert.False(t, mgr.Exists())
		assert.NoError(t, mgr.Delete(), "deleting twice is fine")
	})
}

func TestExplicitDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cp")
	mgr, err := NewManager(dir, "nasa", logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nasa.checkpoint.json"), mgr.Path())

	_, err = NewManager(dir, "", nil)
	assert.Error(t, err)
}

func TestLoadRejectsCorruptAndNewerFiles(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "nasa", logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(mgr.Path(), []byte("{not json"), 0644))
	_, err = mgr.Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(mgr.Path(), []byte(`{"version": 99}`), 0644))
	_, err = mgr.Load()
	assert.ErrorContains(t, err, "newer")
}
