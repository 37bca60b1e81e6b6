package gcx

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/lint"
	"github.com/vk/cratedrive/internal/memo"
	"github.com/vk/cratedrive/internal/session"
)

type mapLoader map[string]*cstore.CrateMetadata

func (m mapLoader) LoadMetadata(name string) (*cstore.CrateMetadata, error) {
	if md, ok := m[name]; ok {
		return md, nil
	}
	return nil, cstore.ErrCrateNotFound
}

func span(line int) hcl.Range {
	return hcl.Range{Filename: "demo.crate", Start: hcl.Pos{Line: line, Column: 1}, End: hcl.Pos{Line: line, Column: 10}}
}

func demoTree() *ast.Tree {
	return &ast.Tree{
		Attrs: ast.AttrVec{{Name: "allow", Args: []string{"dead_code", "no_such_lint"}}},
		Items: []*ast.Item{
			{Kind: ast.ItemExtern, Name: "util", Span: span(2)},
			{Kind: ast.ItemStatic, Name: "greeting", Body: `"hi"`, Span: span(3)},
			{Kind: ast.ItemFn, Name: "main", Body: "print(greeting)", Span: span(4),
				Attrs: ast.AttrVec{{Name: "driver_error", Args: []string{"delay_bug_from_inside_query"}}}},
		},
		Span: span(1),
	}
}

func newTestContext(t *testing.T, opts session.Options, tree *ast.Tree, analyzer Analyzer) *Context {
	t.Helper()
	sess := session.New(opts, slog.New(slog.DiscardHandler))
	store := lint.NewStore()
	store.RegisterBuiltins()
	untracked := &UntrackedState{
		CStore:      NewGuarded(cstore.New()),
		Definitions: NewGuarded(NewDefinitions(incremental.StableCrateID("demo"))),
		SourceSpans: NewGuarded(NewSpanTable()),
	}
	untracked.SourceSpans.Write(func(st *SpanTable) {
		require.Equal(t, CrateDefID, st.Push(tree.Span))
	})
	tcx := New(Config{
		Sess:      sess,
		LintStore: store,
		DepGraph:  incremental.NewDisabledDepGraph(),
		Untracked: untracked,
		Analyzer:  analyzer,
	})
	tcx.FeedCrateName("demo")
	tcx.FeedResolverInput(memo.NewSteal(&ResolverInput{Tree: tree, Attrs: tree.Attrs}))
	tcx.FeedMetadataLoader(memo.NewSteal[cstore.MetadataLoader](mapLoader{"util": {Name: "util", Hash: 5}}))
	tcx.FeedFeatures([]string{"labels"})
	return tcx
}

func TestDefinitions(t *testing.T) {
	d := NewDefinitions(9)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, "crate", d.DefPath(CrateDefID))

	main := d.Create(CrateDefID, "main", DefFn)
	assert.Equal(t, DefIndex(1), main)
	assert.Equal(t, "crate::main", d.DefPath(main))
	got, ok := d.Lookup("crate::main")
	require.True(t, ok)
	assert.Equal(t, main, got)
	assert.Equal(t, uint64(9), d.StableCrateID())

	assert.Panics(t, func() { d.Create(CrateDefID, "main", DefStatic) })
}

func TestContext_Resolution(t *testing.T) {
	ctx := context.Background()
	tcx := newTestContext(t, session.Options{}, demoTree(), nil)

	items, err := tcx.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, DefIndex(i+1), it.Def)
		assert.Equal(t, it.Item.Span, tcx.DefSpan(it.Def))
	}
	assert.Equal(t, span(1), tcx.DefSpan(CrateDefID))
	assert.Equal(t, "crate::greeting", tcx.DefPath(items[1].Def))

	tcx.Untracked.CStore.Read(func(cs *cstore.CStore) {
		assert.Equal(t, []string{"util"}, cs.Names())
	})

	main, ok := tcx.EntryFn(ctx)
	require.True(t, ok)
	assert.Equal(t, items[2].Def, main)
	assert.Len(t, tcx.GetAttrs(ctx, main, "driver_error"), 1)
	assert.Len(t, tcx.GetAttrs(ctx, CrateDefID, "allow"), 1)

	// The resolver input was consumed.
	assert.Panics(t, func() { tcx.resolverInput.Steal() })
}

func TestContext_AnalysisReportsProblems(t *testing.T) {
	ctx := context.Background()
	tree := demoTree()
	tree.Items = tree.Items[:2]
	tree.Items[0].Name = "missing"

	analyzerRuns := 0
	tcx := newTestContext(t, session.Options{}, tree, func(ctx context.Context, tcx *Context) error {
		analyzerRuns++
		_, ok := FromContext(ctx)
		assert.False(t, ok, "analysis does not install the context itself")
		return nil
	})

	err := tcx.Analysis(ctx)
	require.Error(t, err)
	assert.Equal(t, err, tcx.Analysis(ctx), "analysis result is memoized")
	assert.Equal(t, 1, analyzerRuns)
	assert.Equal(t, 2, tcx.Sess.Diag.ErrorCount(), "missing crate and missing main")
	assert.Equal(t, 1, tcx.Sess.Diag.WarningCount(), "unknown lint")
}

func TestContext_AnalysisSucceeds(t *testing.T) {
	tcx := newTestContext(t, session.Options{OutputTypes: []session.OutputType{session.OutputMetadata}}, &ast.Tree{Span: span(1)}, nil)
	require.NoError(t, tcx.Analysis(context.Background()))
	_, ok := tcx.EntryFn(context.Background())
	assert.False(t, ok)
}

func TestContext_Enter(t *testing.T) {
	tcx := newTestContext(t, session.Options{}, demoTree(), nil)
	err := tcx.Enter(context.Background(), func(ctx context.Context) error {
		got, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Same(t, tcx, got)
		return tcx.Enter(ctx, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), tcx.EnterCount())
}

func TestContext_FeedsAreOnce(t *testing.T) {
	tcx := newTestContext(t, session.Options{}, demoTree(), nil)
	assert.Panics(t, func() { tcx.FeedCrateName("other") })
	assert.Panics(t, func() { tcx.FeedFeatures(nil) })
	assert.Panics(t, func() { tcx.FeedResolverInput(memo.NewSteal(&ResolverInput{})) })
	assert.Panics(t, func() { tcx.FeedMetadataLoader(memo.NewSteal[cstore.MetadataLoader](mapLoader{})) })
	assert.Equal(t, []string{"labels"}, tcx.Features())
}

func TestContext_CrateHash(t *testing.T) {
	ctx := context.Background()
	hash := func(body string) incremental.Svh {
		tree := demoTree()
		tree.Items[2].Body = body
		tcx := newTestContext(t, session.Options{}, tree, nil)
		h, err := tcx.CrateHash(ctx)
		require.NoError(t, err)
		again, err := tcx.CrateHash(ctx)
		require.NoError(t, err)
		require.Equal(t, h, again)
		return h
	}
	assert.Equal(t, hash("a"), hash("a"))
	assert.NotEqual(t, hash("a"), hash("b"))
}

func TestContext_TriggerDelayBugOncePerDef(t *testing.T) {
	ctx := context.Background()
	tcx := newTestContext(t, session.Options{}, demoTree(), nil)
	main, ok := tcx.EntryFn(ctx)
	require.True(t, ok)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tcx.TriggerDelayBug(ctx, main)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, tcx.Sess.Diag.DelayedCount())
}

func TestContext_OutputFilenamesAndQueryStrings(t *testing.T) {
	tcx := newTestContext(t, session.Options{OutDir: "/out"}, demoTree(), nil)
	out := tcx.OutputFilenames()
	assert.Same(t, out, tcx.OutputFilenames())
	assert.Equal(t, "demo", out.FileStem)

	_, err := tcx.Items(context.Background())
	require.NoError(t, err)
	tcx.AllocSelfProfileQueryStrings()
	assert.Contains(t, tcx.Sess.Prof.QueryStrings(), "crate::main")
	assert.Contains(t, tcx.Sess.Prof.QueryStrings(), "analysis")
}
