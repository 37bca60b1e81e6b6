package gcx

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/lint"
	"github.com/vk/cratedrive/internal/memo"
	"github.com/vk/cratedrive/internal/session"
)

// Analyzer is an additional analysis pass run by the analysis query after
// name resolution.
type Analyzer func(ctx context.Context, tcx *Context) error

// ResolverInput is what name resolution consumes: the configured tree and
// its crate attributes.
type ResolverInput struct {
	Tree  *ast.Tree
	Attrs ast.AttrVec
}

// Config carries everything a Context is built from.
type Config struct {
	Sess      *session.Session
	LintStore *lint.Store
	DepGraph  *incremental.DepGraph
	Untracked *UntrackedState
	Analyzer  Analyzer
}

// Context is the global context of a compilation.
type Context struct {
	Sess      *session.Session
	LintStore *lint.Store
	DepGraph  *incremental.DepGraph
	Untracked *UntrackedState

	analyzer Analyzer
	entered  atomic.Int64

	feedMu         sync.Mutex
	crateName      string
	crateNameFed   bool
	resolverInput  *memo.Steal[*ResolverInput]
	metadataLoader *memo.Steal[cstore.MetadataLoader]
	features       []string
	featuresFed    bool

	resolutions *memo.Cell[*Resolutions]
	analysis    *memo.Cell[struct{}]
	crateHash   *memo.Cell[incremental.Svh]
	outputs     func() *session.OutputFilenames

	delayBugMu sync.Mutex
	delayBugs  map[DefIndex]bool
}

// New creates a context. It must be fed before it is queried.
func New(cfg Config) *Context {
	c := &Context{
		Sess:        cfg.Sess,
		LintStore:   cfg.LintStore,
		DepGraph:    cfg.DepGraph,
		Untracked:   cfg.Untracked,
		analyzer:    cfg.Analyzer,
		resolutions: memo.NewCell[*Resolutions]("resolver_for_lowering"),
		analysis:    memo.NewCell[struct{}]("analysis"),
		crateHash:   memo.NewCell[incremental.Svh]("crate_hash"),
		delayBugs:   make(map[DefIndex]bool),
	}
	c.outputs = sync.OnceValue(func() *session.OutputFilenames {
		return session.BuildOutputFilenames(&c.Sess.Opts, c.CrateName())
	})
	return c
}

type ctxKey struct{}

// Enter runs f with the context installed in ctx. Enter may be called any
// number of times, including from within f.
func (c *Context) Enter(ctx context.Context, f func(ctx context.Context) error) error {
	c.entered.Add(1)
	return f(context.WithValue(ctx, ctxKey{}, c))
}

// EnterCount returns how many times the context has been entered.
func (c *Context) EnterCount() int64 {
	return c.entered.Load()
}

// FromContext returns the context installed by Enter.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Context)
	return c, ok
}

// FeedCrateName sets the crate name. Feeding twice panics.
func (c *Context) FeedCrateName(name string) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	if c.crateNameFed {
		panic("gcx: crate name fed twice")
	}
	c.crateName, c.crateNameFed = name, true
}

// CrateName returns the fed crate name.
func (c *Context) CrateName() string {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	if !c.crateNameFed {
		panic("gcx: crate name requested before it was fed")
	}
	return c.crateName
}

// FeedResolverInput hands the resolver its input; resolution steals it.
func (c *Context) FeedResolverInput(box *memo.Steal[*ResolverInput]) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	if c.resolverInput != nil {
		panic("gcx: resolver input fed twice")
	}
	c.resolverInput = box
}

// FeedMetadataLoader hands the crate loader its metadata loader;
// resolution steals it.
func (c *Context) FeedMetadataLoader(box *memo.Steal[cstore.MetadataLoader]) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	if c.metadataLoader != nil {
		panic("gcx: metadata loader fed twice")
	}
	c.metadataLoader = box
}

// FeedFeatures sets the enabled features.
func (c *Context) FeedFeatures(features []string) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	if c.featuresFed {
		panic("gcx: features fed twice")
	}
	c.features, c.featuresFed = slices.Clone(features), true
}

// Features returns the fed features.
func (c *Context) Features() []string {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()
	return slices.Clone(c.features)
}

func (c *Context) takeResolverInputs() (*ResolverInput, cstore.MetadataLoader) {
	c.feedMu.Lock()
	input, loader := c.resolverInput, c.metadataLoader
	c.feedMu.Unlock()
	if input == nil || loader == nil {
		panic("gcx: resolution requested before resolver input and metadata loader were fed")
	}
	return input.Steal(), loader.Steal()
}
