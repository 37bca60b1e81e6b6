package testutil

import (
	"context"
	"sync"

	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/codegen"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/gcx"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/session"
)

// FakeParser returns a fixed tree, or reports Err.
type FakeParser struct {
	Tree *ast.Tree
	Err  error

	mu    sync.Mutex
	calls int
}

// Parse implements driver.Parser.
func (p *FakeParser) Parse(_ context.Context, sess *session.Session) (*ast.Tree, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.Err != nil {
		return nil, sess.Diag.Error(p.Err.Error(), "", nil)
	}
	return p.Tree, nil
}

// Calls returns how many times Parse ran.
func (p *FakeParser) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// MetadataMap is a MetadataLoader backed by a map.
type MetadataMap map[string]*cstore.CrateMetadata

// LoadMetadata implements cstore.MetadataLoader.
func (m MetadataMap) LoadMetadata(name string) (*cstore.CrateMetadata, error) {
	if md, ok := m[name]; ok {
		return md, nil
	}
	return nil, cstore.ErrCrateNotFound
}

// FakeBackend is a codegen backend that records calls and produces no
// files.
type FakeBackend struct {
	Metadata MetadataMap
	StartErr error
	JoinErr  error
	LinkErr  error

	mu         sync.Mutex
	startCalls int
	linkCalls  int
	linked     *codegen.Results
}

// Name implements codegen.Backend.
func (b *FakeBackend) Name() string { return "fake" }

// MetadataLoader implements codegen.Backend.
func (b *FakeBackend) MetadataLoader() cstore.MetadataLoader {
	if b.Metadata == nil {
		return MetadataMap{}
	}
	return b.Metadata
}

// StartCodegen implements codegen.Backend.
func (b *FakeBackend) StartCodegen(ctx context.Context, tcx *gcx.Context) (codegen.Handle, error) {
	b.mu.Lock()
	b.startCalls++
	b.mu.Unlock()
	if b.StartErr != nil {
		return nil, b.StartErr
	}
	items, err := tcx.Items(ctx)
	if err != nil {
		return nil, err
	}
	results := &codegen.Results{CrateInfo: codegen.NewCrateInfo(ctx, tcx)}
	for _, it := range items {
		results.Modules = append(results.Modules, codegen.CompiledModule{Name: tcx.CrateName() + "." + it.Item.Name})
	}
	return &FakeHandle{Results: results, Err: b.JoinErr}, nil
}

// Link implements codegen.Backend.
func (b *FakeBackend) Link(_ context.Context, _ *session.Session, results *codegen.Results, _ *session.OutputFilenames) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linkCalls++
	b.linked = results
	return b.LinkErr
}

// StartCalls returns how many times codegen was started.
func (b *FakeBackend) StartCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startCalls
}

// LinkCalls returns how many times Link ran.
func (b *FakeBackend) LinkCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linkCalls
}

// Linked returns the results passed to the last Link.
func (b *FakeBackend) Linked() *codegen.Results {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linked
}

// FakeHandle is a finished codegen.
type FakeHandle struct {
	Results *codegen.Results
	Err     error
}

// Join implements codegen.Handle.
func (h *FakeHandle) Join(context.Context, *session.Session, *session.OutputFilenames) (*codegen.Results, incremental.WorkProductMap, error) {
	if h.Err != nil {
		return nil, nil, h.Err
	}
	return h.Results, nil, nil
}
