package cstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMetadata(t *testing.T, dir string, m *CrateMetadata) {
	t.Helper()
	data, err := m.Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, m.Name+"."+MetadataExt), data, 0o644))
}

func TestDirLoader(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	want := &CrateMetadata{Name: "util", StableID: 7, Hash: 11, Exports: []string{"greet"}}
	writeMetadata(t, second, want)

	l := &DirLoader{Dirs: []string{first, second}}
	got, err := l.LoadMetadata("util")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadMetadata() mismatch (-want +got):\n%s", diff)
	}

	_, err = l.LoadMetadata("absent")
	assert.ErrorIs(t, err, ErrCrateNotFound)
}

func TestDirLoader_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.rmeta"), []byte{0xc1}, 0o644))
	_, err := (&DirLoader{Dirs: []string{dir}}).LoadMetadata("bad")
	assert.ErrorContains(t, err, "invalid crate metadata")
}

type mapLoader map[string]*CrateMetadata

func (m mapLoader) LoadMetadata(name string) (*CrateMetadata, error) {
	if md, ok := m[name]; ok {
		return md, nil
	}
	return nil, ErrCrateNotFound
}

func TestCrateLoader(t *testing.T) {
	loads := 0
	loader := mapLoader{
		"util":  {Name: "util"},
		"alias": {Name: "other"},
	}
	cl := &CrateLoader{Loader: countingLoader{loader, &loads}, Store: New()}

	_, err := cl.Load("util")
	require.NoError(t, err)
	_, err = cl.Load("util")
	require.NoError(t, err)
	assert.Equal(t, 1, loads, "second load should hit the store")
	assert.Equal(t, []string{"util"}, cl.Store.Names())

	_, err = cl.Load("alias")
	assert.ErrorContains(t, err, `describes crate "other"`)
	assert.Equal(t, 1, cl.Store.Len())
}

type countingLoader struct {
	inner MetadataLoader
	n     *int
}

func (c countingLoader) LoadMetadata(name string) (*CrateMetadata, error) {
	*c.n++
	return c.inner.LoadMetadata(name)
}
