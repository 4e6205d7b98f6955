package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(tempDir, "", true)
	require.NoError(t, err)

	assert.Equal(t, 0, manager.GetDownloadedCount())
	assert.False(t, manager.Exists("image_1.jpg"))

	data := []byte("test image data")
	n, err := manager.Save(bytes.NewReader(data), manager.FileName(1, "jpg"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	content, err := os.ReadFile(filepath.Join(tempDir, "image_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, data, content)

	assert.True(t, manager.Exists("image_1.jpg"))
	assert.Equal(t, 1, manager.GetDownloadedCount())

	// files written by earlier runs are picked up, unrelated files are not
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "image_7.png"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("x"), 0644))

	manager2, err := NewManager(tempDir, "", true)
	require.NoError(t, err)
	assert.Equal(t, 2, manager2.GetDownloadedCount())
	assert.True(t, manager2.Exists("image_7.png"))
}

func TestFileName(t *testing.T) {
	m, err := NewManager(t.TempDir(), "", true)
	require.NoError(t, err)
	assert.Equal(t, "image_3.png", m.FileName(3, "png"))
	assert.Equal(t, "image_10.jpg", m.FileName(10, ".jpg"))

	custom, err := NewManager(t.TempDir(), "{index}-media.{ext}", true)
	require.NoError(t, err)
	assert.Equal(t, "4-media.webp", custom.FileName(4, "webp"))

	_, err = NewManager(t.TempDir(), "image.{ext}", true)
	assert.Error(t, err)
}

func TestShouldSkip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image_1.jpg"), []byte("old"), 0644))

	overwrite, err := NewManager(dir, "", true)
	require.NoError(t, err)
	assert.False(t, overwrite.ShouldSkip("image_1.jpg"))

	keep, err := NewManager(dir, "", false)
	require.NoError(t, err)
	assert.True(t, keep.ShouldSkip("image_1.jpg"))
	assert.False(t, keep.ShouldSkip("image_2.jpg"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, "", true)
	require.NoError(t, err)

	_, err = m.Save(failingReader{}, "image_1.jpg")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be removed")
	assert.False(t, m.Exists("image_1.jpg"))
}

func TestWriteFileReplaces(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, "", true)
	require.NoError(t, err)

	require.NoError(t, m.WriteFile("manifest.json", []byte("one")))
	require.NoError(t, m.WriteFile("manifest.json", []byte("two")))

	content, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))
	assert.Equal(t, 0, m.GetDownloadedCount())
}

func TestNewManagerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err := NewManager(dir, "", true)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
