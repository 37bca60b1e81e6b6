package incremental

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/session"
	"golang.org/x/sync/errgroup"
)

// LoadStatus classifies the outcome of loading the previous session.
type LoadStatus int

const (
	LoadOK LoadStatus = iota
	// LoadDataOutOfDate means there is nothing usable to load, e.g. a
	// first compilation or a cache from another driver version.
	LoadDataOutOfDate
	LoadFailed
)

// LoadResult is what a LoadFuture resolves to.
type LoadResult struct {
	Status       LoadStatus
	Graph        *SerializedDepGraph
	WorkProducts WorkProductMap
	Err          error
}

// LoadFuture is the in-flight load of the previous session's dep graph and
// work-product index.
type LoadFuture struct {
	done   chan struct{}
	result LoadResult
}

// Load starts reading the previous session's data from the active session
// directory in the background.
func Load(ctx context.Context, sess *session.Session) *LoadFuture {
	dir, state := sess.IncrSession()
	f := &LoadFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if state != session.IncrActive {
			f.result = LoadResult{Status: LoadDataOutOfDate}
			return
		}
		f.result = load(ctx, dir)
		ctxlog.FromContext(ctx).Debug("Previous dep graph loaded.",
			"status", f.result.Status, "nodes", f.result.Graph.Len(), "workProducts", len(f.result.WorkProducts))
	}()
	return f
}

func load(ctx context.Context, dir string) LoadResult {
	var graph SerializedDepGraph
	var products WorkProductMap

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return readEncoded(gctx, filepath.Join(dir, DepGraphFile), &graph)
	})
	g.Go(func() error {
		return readEncoded(gctx, filepath.Join(dir, WorkProductsFile), &products)
	})
	err := g.Wait()

	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, errVersionMismatch):
		return LoadResult{Status: LoadDataOutOfDate, Err: err}
	case err != nil:
		return LoadResult{Status: LoadFailed, Err: err}
	}
	return LoadResult{Status: LoadOK, Graph: &graph, WorkProducts: products}
}

// Wait blocks until the load finishes or ctx is done.
func (f *LoadFuture) Wait(ctx context.Context) (LoadResult, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return LoadResult{}, ctx.Err()
	}
}

// Open joins the load and returns the previous graph and work products,
// both empty when nothing usable was loaded. A failed load is reported as
// a warning.
func (f *LoadFuture) Open(ctx context.Context, sess *session.Session) (*SerializedDepGraph, WorkProductMap) {
	res, err := f.Wait(ctx)
	if err != nil {
		res = LoadResult{Status: LoadFailed, Err: err}
	}
	switch res.Status {
	case LoadOK:
		return res.Graph, res.WorkProducts
	case LoadFailed:
		sess.Diag.Warn("Could not load dep-graph", res.Err.Error(), nil)
	default:
		ctxlog.FromContext(ctx).Debug("Previous dep graph is out of date.", "reason", res.Err)
	}
	return &SerializedDepGraph{}, WorkProductMap{}
}

// Build creates the session's dep graph on top of the previous one. It
// returns nil when there is no active session directory. Work products
// whose files are missing are dropped.
func Build(ctx context.Context, sess *session.Session, prev *SerializedDepGraph, products WorkProductMap) *DepGraph {
	dir, state := sess.IncrSession()
	if state != session.IncrActive {
		return nil
	}
	valid := make(WorkProductMap, len(products))
	for id, wp := range products {
		if allFilesExist(dir, wp) {
			valid[id] = wp
			continue
		}
		ctxlog.FromContext(ctx).Debug("Dropping work product with missing files.", "id", id)
	}
	return newDepGraph(prev, valid)
}

func allFilesExist(dir string, wp WorkProduct) bool {
	for _, name := range wp.SavedFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// SaveDepGraph persists g into the active session directory.
func SaveDepGraph(ctx context.Context, sess *session.Session, g *DepGraph) error {
	dir, state := sess.IncrSession()
	if !g.IsFullyEnabled() || state != session.IncrActive {
		return nil
	}
	serialized := g.Serialize()
	if err := writeEncoded(filepath.Join(dir, DepGraphFile), serialized); err != nil {
		return sess.Diag.Error("Could not save dep-graph", err.Error(), nil)
	}
	ctxlog.FromContext(ctx).Debug("Dep graph saved.", "nodes", serialized.Len())
	return nil
}
