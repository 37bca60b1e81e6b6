// Package cstore keeps track of the external crates a compilation links
// against and of the metadata files describing them.
package cstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// MetadataExt is the extension of crate metadata files.
const MetadataExt = "rmeta"

// ErrCrateNotFound is returned by a MetadataLoader that has no metadata for
// the requested crate.
var ErrCrateNotFound = errors.New("crate not found")

// CrateMetadata describes a compiled crate to its dependents. Lints is
// only set for plugin crates.
type CrateMetadata struct {
	Name     string   `msgpack:"name"`
	StableID uint64   `msgpack:"stable_id"`
	Hash     uint64   `msgpack:"hash"`
	Exports  []string `msgpack:"exports"`
	Features []string `msgpack:"features"`
	Lints    []string `msgpack:"lints"`
}

// Encode serializes metadata for writing to an .rmeta file.
func (m *CrateMetadata) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// DecodeMetadata parses the content of an .rmeta file.
func DecodeMetadata(data []byte) (*CrateMetadata, error) {
	var m CrateMetadata
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid crate metadata: %w", err)
	}
	return &m, nil
}

// MetadataLoader locates and reads the metadata of external crates. Each
// codegen backend provides one.
type MetadataLoader interface {
	LoadMetadata(name string) (*CrateMetadata, error)
}

// DirLoader loads `<name>.rmeta` files from a list of search directories.
type DirLoader struct {
	Dirs []string
}

// LoadMetadata implements MetadataLoader.
func (l *DirLoader) LoadMetadata(name string) (*CrateMetadata, error) {
	for _, dir := range l.Dirs {
		data, err := os.ReadFile(filepath.Join(dir, name+"."+MetadataExt))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return DecodeMetadata(data)
	}
	return nil, fmt.Errorf("%w: %s (searched %v)", ErrCrateNotFound, name, l.Dirs)
}

// CStore is the table of loaded external crates. It is not synchronized;
// callers guard it.
type CStore struct {
	crates map[string]*CrateMetadata
	order  []string
}

// New creates an empty crate store.
func New() *CStore {
	return &CStore{crates: make(map[string]*CrateMetadata)}
}

// Add records a loaded crate. Adding a name twice keeps the first entry.
func (c *CStore) Add(m *CrateMetadata) {
	if _, ok := c.crates[m.Name]; ok {
		return
	}
	c.crates[m.Name] = m
	c.order = append(c.order, m.Name)
}

// Get returns the crate named name.
func (c *CStore) Get(name string) (*CrateMetadata, bool) {
	m, ok := c.crates[name]
	return m, ok
}

// Names returns the loaded crate names in load order.
func (c *CStore) Names() []string {
	return slices.Clone(c.order)
}

// Len returns the number of loaded crates.
func (c *CStore) Len() int {
	return len(c.order)
}

// CrateLoader resolves extern declarations into a CStore.
type CrateLoader struct {
	Loader MetadataLoader
	Store  *CStore
}

// Load makes sure the crate name is present in the store.
func (cl *CrateLoader) Load(name string) (*CrateMetadata, error) {
	if m, ok := cl.Store.Get(name); ok {
		return m, nil
	}
	m, err := cl.Loader.LoadMetadata(name)
	if err != nil {
		return nil, err
	}
	if m.Name != name {
		return nil, fmt.Errorf("metadata for %q describes crate %q", name, m.Name)
	}
	cl.Store.Add(m)
	return m, nil
}
