// Package textgen is the reference codegen backend. It "compiles" each item
// of a crate into a small text object, one codegen unit per item, and links
// objects by concatenation. Units are compiled concurrently and reused from
// the incremental cache when their inputs did not change.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/codegen"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/fsutil"
	"github.com/vk/cratedrive/internal/gcx"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/session"
	"golang.org/x/sync/errgroup"
)

// Name is the backend's name.
const Name = "textgen"

const objectExt = "o"

// Backend is the textgen codegen backend.
type Backend struct {
	// SearchPaths are the directories searched for extern crate metadata.
	SearchPaths []string
}

// New creates a backend searching searchPaths for extern crates.
func New(searchPaths ...string) *Backend {
	return &Backend{SearchPaths: searchPaths}
}

// Name implements codegen.Backend.
func (b *Backend) Name() string { return Name }

// MetadataLoader implements codegen.Backend.
func (b *Backend) MetadataLoader() cstore.MetadataLoader {
	return &cstore.DirLoader{Dirs: b.SearchPaths}
}

type unit struct {
	index int
	name  string
	item  *ast.Item
	// green is set when the unit's inputs match the previous session.
	green bool
}

type handle struct {
	done chan struct{}
	err  error

	info     codegen.CrateInfo
	metadata []byte

	mu       sync.Mutex
	modules  []codegen.CompiledModule
	products incremental.WorkProductMap
}

// StartCodegen implements codegen.Backend.
func (b *Backend) StartCodegen(ctx context.Context, tcx *gcx.Context) (codegen.Handle, error) {
	logger := ctxlog.FromContext(ctx)
	items, err := tcx.Items(ctx)
	if err != nil {
		return nil, err
	}
	sess := tcx.Sess
	h := &handle{
		done:     make(chan struct{}),
		info:     codegen.NewCrateInfo(ctx, tcx),
		products: incremental.WorkProductMap{},
	}
	if sess.Opts.HasOutputType(session.OutputMetadata) {
		if h.metadata, err = codegen.EncodeMetadata(ctx, tcx); err != nil {
			return nil, sess.Diag.Fatal(fmt.Sprintf("failed to encode metadata: %v", err), nil)
		}
	}

	var units []unit
	for _, it := range items {
		if it.Item.Kind == ast.ItemExtern {
			continue
		}
		u := unit{index: len(units), name: tcx.CrateName() + "." + it.Item.Name, item: it.Item}
		node := incremental.DepNode{Kind: "codegen_unit", Key: u.name}
		fp := unitFingerprint(u)
		u.green = tcx.DepGraph.TryMarkGreen(node, fp)
		tcx.DepGraph.Record(node, fp)
		units = append(units, u)
	}
	h.modules = make([]codegen.CompiledModule, len(units))

	workers := sess.Opts.CodegenWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	outputs := tcx.OutputFilenames()
	depGraph := tcx.DepGraph

	logger.Debug("Starting codegen.", "units", len(units), "workers", workers)
	go func() {
		defer close(h.done)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, u := range units {
			g.Go(func() error {
				return h.compileUnit(gctx, sess, depGraph, outputs, u)
			})
		}
		h.err = g.Wait()
	}()
	return h, nil
}

func (h *handle) compileUnit(ctx context.Context, sess *session.Session, dg *incremental.DepGraph, outputs *session.OutputFilenames, u unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	obj := outputs.TempPath(u.item.Name, objectExt)

	if u.green {
		if wp, ok := dg.PreviousWorkProduct(incremental.WorkProductID(u.name)); ok {
			if err := fsutil.CopyFile(incremental.WorkProductPath(sess, wp.SavedFiles[objectExt]), obj); err == nil {
				logger.Debug("Reusing codegen unit.", "cgu", u.name)
				h.finish(u, codegen.CompiledModule{Name: u.name, Object: obj, Reused: true}, incremental.WorkProductID(u.name), &wp)
				return nil
			}
		}
	}

	// A leftover object may still be linked into the incremental cache.
	if err := os.Remove(obj); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale object for %s: %w", u.name, err)
	}
	if err := os.WriteFile(obj, []byte(render(u)), 0o644); err != nil {
		return fmt.Errorf("writing object for %s: %w", u.name, err)
	}
	logger.Debug("Compiled codegen unit.", "cgu", u.name, "object", obj)
	module := codegen.CompiledModule{Name: u.name, Object: obj}
	if id, wp, ok := incremental.CopyCguWorkProduct(sess, u.name, map[string]string{objectExt: obj}); ok {
		h.finish(u, module, id, &wp)
		return nil
	}
	h.finish(u, module, "", nil)
	return nil
}

func (h *handle) finish(u unit, m codegen.CompiledModule, id incremental.WorkProductID, wp *incremental.WorkProduct) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules[u.index] = m
	if wp != nil {
		h.products[id] = *wp
	}
}

func unitFingerprint(u unit) incremental.Fingerprint {
	h := incremental.NewHasher().WriteString(u.name).WriteString(string(u.item.Kind)).WriteString(u.item.Body)
	for _, a := range u.item.Attrs {
		h.WriteString(a.String())
	}
	return h.Sum()
}

func render(u unit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; textgen object %s\n", u.name)
	fmt.Fprintf(&b, "%s %s\n", u.item.Kind, u.item.Name)
	for _, line := range strings.Split(u.item.Body, "\n") {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	return b.String()
}

// Join implements codegen.Handle. Object and assembly outputs are produced
// here since they need no linking.
func (h *handle) Join(ctx context.Context, sess *session.Session, outputs *session.OutputFilenames) (*codegen.Results, incremental.WorkProductMap, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	if h.err != nil {
		return nil, nil, sess.Diag.Fatal(fmt.Sprintf("codegen failed: %v", h.err), nil)
	}

	h.mu.Lock()
	results := &codegen.Results{
		Modules:   append([]codegen.CompiledModule(nil), h.modules...),
		Metadata:  h.metadata,
		CrateInfo: h.info,
	}
	products := h.products
	h.mu.Unlock()

	for _, t := range []session.OutputType{session.OutputObject, session.OutputAssembly} {
		if !sess.Opts.HasOutputType(t) {
			continue
		}
		path := outputs.Path(t)
		if err := writeConcatenated(path, "", results.Modules, 0o644); err != nil {
			return nil, nil, sess.Diag.Fatal(fmt.Sprintf("failed to write %s: %v", path, err), nil)
		}
	}
	return results, products, nil
}

// Link implements codegen.Backend.
func (b *Backend) Link(ctx context.Context, sess *session.Session, results *codegen.Results, outputs *session.OutputFilenames) error {
	logger := ctxlog.FromContext(ctx)
	for _, t := range outputs.OutputTypes {
		path := outputs.Path(t)
		var err error
		switch t {
		case session.OutputExe:
			header := fmt.Sprintf("#!textgen exe\n# crate %s\n# entry %s\n", results.CrateInfo.CrateName, results.CrateInfo.EntryFn)
			for _, ext := range results.CrateInfo.Externs {
				header += "# extern " + ext + "\n"
			}
			err = writeConcatenated(path, header, results.Modules, 0o755)
		case session.OutputMetadata:
			err = os.WriteFile(path, results.Metadata, 0o644)
		default:
			continue
		}
		if err != nil {
			return sess.Diag.Fatal(fmt.Sprintf("failed to write %s: %v", path, err), nil)
		}
		logger.Debug("Linked artifact.", "type", t, "path", path)
	}

	for _, m := range results.Modules {
		if err := os.Remove(m.Object); err != nil && !os.IsNotExist(err) {
			logger.Warn("Could not remove temporary object.", "path", m.Object, "error", err)
		}
	}
	return nil
}

func writeConcatenated(path, header string, modules []codegen.CompiledModule, perm os.FileMode) error {
	var b strings.Builder
	b.WriteString(header)
	for _, m := range modules {
		data, err := os.ReadFile(m.Object)
		if err != nil {
			return err
		}
		b.Write(data)
	}
	return os.WriteFile(path, []byte(b.String()), perm)
}
