package incremental

import (
	"fmt"
	"sync"
)

// DepNode identifies one tracked computation.
type DepNode struct {
	Kind string `msgpack:"kind"`
	Key  string `msgpack:"key"`
}

func (n DepNode) String() string {
	return fmt.Sprintf("%s(%s)", n.Kind, n.Key)
}

// SerializedDepGraph is the persisted form of a dependency graph. Edges[i]
// lists the indices of the nodes Nodes[i] read.
type SerializedDepGraph struct {
	Nodes        []DepNode     `msgpack:"nodes"`
	Fingerprints []Fingerprint `msgpack:"fingerprints"`
	Edges        [][]uint32    `msgpack:"edges"`
}

// Len returns the number of nodes.
func (g *SerializedDepGraph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Nodes)
}

// DepGraph tracks the dependency nodes of the current session next to the
// graph of the previous one. A DepGraph without data is disabled: every
// method is a no-op.
type DepGraph struct {
	data *depGraphData
}

type depGraphData struct {
	prev             *SerializedDepGraph
	prevIndex        map[DepNode]int
	prevWorkProducts WorkProductMap

	mu    sync.Mutex
	nodes []DepNode
	fps   []Fingerprint
	edges [][]uint32
	index map[DepNode]uint32
}

// NewDisabledDepGraph returns a graph that records nothing.
func NewDisabledDepGraph() *DepGraph {
	return &DepGraph{}
}

func newDepGraph(prev *SerializedDepGraph, products WorkProductMap) *DepGraph {
	if prev == nil {
		prev = &SerializedDepGraph{}
	}
	if products == nil {
		products = WorkProductMap{}
	}
	idx := make(map[DepNode]int, len(prev.Nodes))
	for i, n := range prev.Nodes {
		idx[n] = i
	}
	return &DepGraph{data: &depGraphData{
		prev:             prev,
		prevIndex:        idx,
		prevWorkProducts: products,
		index:            make(map[DepNode]uint32),
	}}
}

// IsFullyEnabled reports whether the graph records dependencies.
func (g *DepGraph) IsFullyEnabled() bool {
	return g != nil && g.data != nil
}

// Clone returns a handle sharing the same graph.
func (g *DepGraph) Clone() *DepGraph {
	return &DepGraph{data: g.data}
}

// Record adds node with fingerprint fp and edges to deps. Dependencies not
// yet recorded are ignored; recording a node twice keeps the first entry.
func (g *DepGraph) Record(node DepNode, fp Fingerprint, deps ...DepNode) {
	if !g.IsFullyEnabled() {
		return
	}
	d := g.data
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.index[node]; ok {
		return
	}
	var edges []uint32
	for _, dep := range deps {
		if i, ok := d.index[dep]; ok {
			edges = append(edges, i)
		}
	}
	d.index[node] = uint32(len(d.nodes))
	d.nodes = append(d.nodes, node)
	d.fps = append(d.fps, fp)
	d.edges = append(d.edges, edges)
}

// PrevFingerprint returns node's fingerprint in the previous session.
func (g *DepGraph) PrevFingerprint(node DepNode) (Fingerprint, bool) {
	if !g.IsFullyEnabled() {
		return 0, false
	}
	i, ok := g.data.prevIndex[node]
	if !ok {
		return 0, false
	}
	return g.data.prev.Fingerprints[i], true
}

// TryMarkGreen reports whether node existed in the previous session with
// the same fingerprint, meaning its previous result can be reused.
func (g *DepGraph) TryMarkGreen(node DepNode, fp Fingerprint) bool {
	prev, ok := g.PrevFingerprint(node)
	return ok && prev == fp
}

// PreviousWorkProduct returns the work product id produced last session.
func (g *DepGraph) PreviousWorkProduct(id WorkProductID) (WorkProduct, bool) {
	if !g.IsFullyEnabled() {
		return WorkProduct{}, false
	}
	wp, ok := g.data.prevWorkProducts[id]
	return wp, ok
}

// PreviousWorkProducts returns the previous session's work products.
func (g *DepGraph) PreviousWorkProducts() WorkProductMap {
	if !g.IsFullyEnabled() {
		return nil
	}
	return g.data.prevWorkProducts
}

// NodeCount returns the number of nodes recorded this session.
func (g *DepGraph) NodeCount() int {
	if !g.IsFullyEnabled() {
		return 0
	}
	g.data.mu.Lock()
	defer g.data.mu.Unlock()
	return len(g.data.nodes)
}

// Serialize snapshots the current session's graph.
func (g *DepGraph) Serialize() *SerializedDepGraph {
	if !g.IsFullyEnabled() {
		return &SerializedDepGraph{}
	}
	d := g.data
	d.mu.Lock()
	defer d.mu.Unlock()
	out := &SerializedDepGraph{
		Nodes:        append([]DepNode(nil), d.nodes...),
		Fingerprints: append([]Fingerprint(nil), d.fps...),
		Edges:        make([][]uint32, len(d.edges)),
	}
	for i, e := range d.edges {
		out.Edges[i] = append([]uint32(nil), e...)
	}
	return out
}
