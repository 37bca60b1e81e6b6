package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "b.hcl"), "")
	write(t, filepath.Join(root, "nested", "a.hcl"), "")
	write(t, filepath.Join(root, "notes.txt"), "")

	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "b.hcl"),
		filepath.Join(root, "nested", "a.hcl"),
	}, files)

	assert.Panics(t, func() { _, _ = FindFilesByExtension(root, "") })
}

func TestLinkOrCopy_ReplacesWithoutWritingThrough(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	old := filepath.Join(dir, "old")
	dst := filepath.Join(dir, "dst")
	write(t, src, "new")
	write(t, old, "old")
	require.NoError(t, LinkOrCopy(old, dst))

	require.NoError(t, LinkOrCopy(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	got, err = os.ReadFile(old)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "the previous link target must be untouched")
}

func TestCopyFile_OntoHardLinkOfSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cached.o")
	dst := filepath.Join(dir, "out.o")
	write(t, src, "object")
	require.NoError(t, os.Link(src, dst))

	require.NoError(t, CopyFile(src, dst))

	for _, path := range []string{src, dst} {
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "object", string(got), path)
	}
}

func TestLinkOrCopyDir(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	write(t, filepath.Join(src, "one"), "1")
	write(t, filepath.Join(src, "sub", "two"), "2")

	require.NoError(t, LinkOrCopyDir(src, dst))
	assert.FileExists(t, filepath.Join(dst, "one"))
	assert.NoDirExists(t, filepath.Join(dst, "sub"))
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "absent"), filepath.Join(dir, "dst"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
