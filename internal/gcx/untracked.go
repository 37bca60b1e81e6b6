package gcx

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/cratedrive/internal/cstore"
)

// DefIndex identifies a definition of the local crate.
type DefIndex uint32

// CrateDefID is the definition of the crate root. Its span is the first
// entry of the span table.
const CrateDefID DefIndex = 0

// DefKind classifies definitions.
type DefKind string

const (
	DefCrate  DefKind = "crate"
	DefFn     DefKind = "fn"
	DefStatic DefKind = "static"
	DefExtern DefKind = "extern"
)

// DefData is one entry of the definitions table.
type DefData struct {
	Name   string
	Parent DefIndex
	Kind   DefKind
}

// Definitions is the table of the local crate's definitions. It is not
// synchronized; UntrackedState guards it.
type Definitions struct {
	stableCrateID uint64
	defs          []DefData
	byPath        map[string]DefIndex
}

// NewDefinitions creates a table holding only the crate root.
func NewDefinitions(stableCrateID uint64) *Definitions {
	d := &Definitions{stableCrateID: stableCrateID, byPath: make(map[string]DefIndex)}
	d.defs = append(d.defs, DefData{Kind: DefCrate, Parent: CrateDefID})
	d.byPath[d.DefPath(CrateDefID)] = CrateDefID
	return d
}

// StableCrateID returns the id the table was created for.
func (d *Definitions) StableCrateID() uint64 {
	return d.stableCrateID
}

// Create adds a definition under parent. Defining the same path twice
// panics.
func (d *Definitions) Create(parent DefIndex, name string, kind DefKind) DefIndex {
	idx := DefIndex(len(d.defs))
	d.defs = append(d.defs, DefData{Name: name, Parent: parent, Kind: kind})
	path := d.DefPath(idx)
	if _, dup := d.byPath[path]; dup {
		panic(fmt.Sprintf("gcx: definition %s created twice", path))
	}
	d.byPath[path] = idx
	return idx
}

// Def returns the entry for idx.
func (d *Definitions) Def(idx DefIndex) DefData {
	return d.defs[idx]
}

// DefPath renders the path of idx, e.g. `crate::main`.
func (d *Definitions) DefPath(idx DefIndex) string {
	var parts []string
	for cur := idx; cur != CrateDefID; cur = d.defs[cur].Parent {
		parts = append([]string{d.defs[cur].Name}, parts...)
	}
	return strings.Join(append([]string{"crate"}, parts...), "::")
}

// Lookup finds a definition by path.
func (d *Definitions) Lookup(path string) (DefIndex, bool) {
	idx, ok := d.byPath[path]
	return idx, ok
}

// Len returns the number of definitions, the root included.
func (d *Definitions) Len() int {
	return len(d.defs)
}

// SpanTable maps definitions to their source ranges, by position.
type SpanTable struct {
	spans []hcl.Range
}

// NewSpanTable creates an empty table.
func NewSpanTable() *SpanTable {
	return &SpanTable{}
}

// Push appends r and returns the definition index it belongs to.
func (t *SpanTable) Push(r hcl.Range) DefIndex {
	t.spans = append(t.spans, r)
	return DefIndex(len(t.spans) - 1)
}

// Get returns the span of def.
func (t *SpanTable) Get(def DefIndex) (hcl.Range, bool) {
	if int(def) >= len(t.spans) {
		return hcl.Range{}, false
	}
	return t.spans[def], true
}

// Len returns the number of spans.
func (t *SpanTable) Len() int {
	return len(t.spans)
}

// Guarded is a value behind a read-write lock. The value is only reachable
// inside Read and Write.
type Guarded[T any] struct {
	mu sync.RWMutex
	v  T
}

// NewGuarded wraps v.
func NewGuarded[T any](v T) *Guarded[T] {
	return &Guarded[T]{v: v}
}

// Read runs fn with shared access.
func (g *Guarded[T]) Read(fn func(T)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.v)
}

// Write runs fn with exclusive access.
func (g *Guarded[T]) Write(fn func(T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.v)
}

// UntrackedState is crate-wide mutable state that lives outside the
// dependency graph.
type UntrackedState struct {
	CStore      *Guarded[*cstore.CStore]
	Definitions *Guarded[*Definitions]
	SourceSpans *Guarded[*SpanTable]
}
