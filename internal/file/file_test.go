package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SpatiumPortae/stardrop/internal/file"
	"github.com/SpatiumPortae/stardrop/internal/receiver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	t.Run("text file", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0644))
		f, info, err := file.Open(path)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "notes.txt", info.Name)
		assert.Equal(t, int64(12), info.Size)
		assert.Contains(t, info.MimeType, "text/plain")
	})
	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		f, info, err := file.Open(path)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, int64(0), info.Size)
		assert.NotEmpty(t, info.MimeType)
	})
	t.Run("directory", func(t *testing.T) {
		_, _, err := file.Open(dir)
		assert.ErrorIs(t, err, file.ErrIsDir)
	})
	t.Run("missing", func(t *testing.T) {
		_, _, err := file.Open(filepath.Join(dir, "missing"))
		assert.Error(t, err)
	})
}

func TestCommit(t *testing.T) {
	t.Run("numbered names", func(t *testing.T) {
		dir := t.TempDir()
		a := &receiver.Artifact{Name: "photo.jpg", Data: []byte("one")}
		first, err := file.Commit(dir, a, false)
		require.NoError(t, err)
		second, err := file.Commit(dir, &receiver.Artifact{Name: "photo.jpg", Data: []byte("two")}, false)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "photo.jpg"), first)
		assert.Equal(t, filepath.Join(dir, "photo (1).jpg"), second)
		b, err := os.ReadFile(first)
		require.NoError(t, err)
		assert.Equal(t, "one", string(b))
	})
	t.Run("overwrite", func(t *testing.T) {
		dir := t.TempDir()
		_, err := file.Commit(dir, &receiver.Artifact{Name: "a.txt", Data: []byte("old")}, true)
		require.NoError(t, err)
		path, err := file.Commit(dir, &receiver.Artifact{Name: "a.txt", Data: []byte("new")}, true)
		require.NoError(t, err)
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(b))
	})
	t.Run("stays inside the output directory", func(t *testing.T) {
		dir := t.TempDir()
		path, err := file.Commit(dir, &receiver.Artifact{Name: "../../etc/passwd", Data: []byte("x")}, false)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "passwd"), path)
	})
	t.Run("nil artifact", func(t *testing.T) {
		_, err := file.Commit(t.TempDir(), nil, false)
		assert.ErrorIs(t, err, file.ErrNilArtifact)
	})
}

func TestTarget(t *testing.T) {
	dir := t.TempDir()
	a := &receiver.Artifact{Name: "sub/report.pdf", Data: []byte("pdf")}
	path, exists, err := file.Target(dir, a)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.pdf"), path)
	assert.False(t, exists)

	_, err = file.Commit(dir, a, false)
	require.NoError(t, err)
	_, exists, err = file.Target(dir, a)
	require.NoError(t, err)
	assert.True(t, exists)

	_, _, err = file.Target(dir, nil)
	assert.ErrorIs(t, err, file.ErrNilArtifact)
}

func TestSanitize(t *testing.T) {
	for in, want := range map[string]string{
		"report.pdf":          "report.pdf",
		"dir/report.pdf":      "report.pdf",
		`C:\Users\x\file.txt`: "file.txt",
		"../secret":           "secret",
	} {
		got, err := file.Sanitize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", ".", "..", "/"} {
		_, err := file.Sanitize(in)
		assert.ErrorIs(t, err, file.ErrInvalidName, in)
	}
}
