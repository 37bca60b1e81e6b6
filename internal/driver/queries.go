package driver

import (
	"context"

	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/codegen"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/expand"
	"github.com/vk/cratedrive/internal/gcx"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/lint"
	"github.com/vk/cratedrive/internal/memo"
	"github.com/vk/cratedrive/internal/passes"
	"github.com/vk/cratedrive/internal/session"
)

// Stage names. They double as the profiler activity of each stage.
const (
	StageDepGraphFuture  = "dep_graph_future"
	StageParse           = "parse"
	StagePreConfigure    = "pre_configure"
	StageCrateName       = "crate_name"
	StageRegisterPlugins = "register_plugins"
	StageDepGraph        = "dep_graph"
	StageGlobalCtxt      = "global_ctxt"
	StageOngoingCodegen  = "ongoing_codegen"
)

// PreConfigured is the output of pre_configure.
type PreConfigured struct {
	Tree  *ast.Tree
	Attrs ast.AttrVec
}

// Registered is the output of register_plugins.
type Registered struct {
	Tree  *ast.Tree
	Attrs ast.AttrVec
	Lints *lint.Store
}

// Queries is the stage graph of one Compiler.Enter. Every stage method
// returns the stage's box; callers Borrow or Steal from it.
type Queries struct {
	compiler *Compiler
	gcxSlot  memo.OnceSlot[gcx.Context]

	depGraphFuture  *memo.Cell[*incremental.LoadFuture]
	parse           *memo.Cell[*ast.Tree]
	preConfigure    *memo.Cell[PreConfigured]
	crateName       *memo.Cell[string]
	registerPlugins *memo.Cell[Registered]
	depGraph        *memo.Cell[*incremental.DepGraph]
	globalCtxt      *memo.Cell[*gcx.Context]
	ongoingCodegen  *memo.Cell[codegen.Handle]
}

func newQueries(c *Compiler) *Queries {
	return &Queries{
		compiler:        c,
		depGraphFuture:  memo.NewCell[*incremental.LoadFuture](StageDepGraphFuture),
		parse:           memo.NewCell[*ast.Tree](StageParse),
		preConfigure:    memo.NewCell[PreConfigured](StagePreConfigure),
		crateName:       memo.NewCell[string](StageCrateName),
		registerPlugins: memo.NewCell[Registered](StageRegisterPlugins),
		depGraph:        memo.NewCell[*incremental.DepGraph](StageDepGraph),
		globalCtxt:      memo.NewCell[*gcx.Context](StageGlobalCtxt),
		ongoingCodegen:  memo.NewCell[codegen.Handle](StageOngoingCodegen),
	}
}

func (q *Queries) sess() *session.Session {
	return q.compiler.Sess
}

// compute runs a stage body through its cell, timing it as a profiler
// activity named after the stage.
func compute[T any](ctx context.Context, q *Queries, cell *memo.Cell[T], f func(ctx context.Context) (T, error)) (*memo.Steal[T], error) {
	return cell.Compute(ctx, func(ctx context.Context) (T, error) {
		logger := ctxlog.FromContext(ctx)
		logger.Debug("Computing stage.", "stage", cell.Name)
		var v T
		err := q.sess().Prof.TimeErr(ctx, cell.Name, func(ctx context.Context) error {
			var err error
			v, err = f(ctx)
			return err
		})
		if err != nil {
			logger.Debug("Stage failed.", "stage", cell.Name, "error", err)
			return v, err
		}
		logger.Debug("Stage computed.", "stage", cell.Name)
		return v, nil
	})
}

// DepGraphFuture starts loading the previous session's dep graph. The
// future is nil when incremental compilation is disabled.
func (q *Queries) DepGraphFuture(ctx context.Context) (*memo.Steal[*incremental.LoadFuture], error) {
	return compute(ctx, q, q.depGraphFuture, func(ctx context.Context) (*incremental.LoadFuture, error) {
		if !q.sess().Opts.BuildDepGraph() {
			return nil, nil
		}
		return incremental.Load(ctx, q.sess()), nil
	})
}

// Parse parses the session's input.
func (q *Queries) Parse(ctx context.Context) (*memo.Steal[*ast.Tree], error) {
	return compute(ctx, q, q.parse, func(ctx context.Context) (*ast.Tree, error) {
		return q.compiler.parser().Parse(ctx, q.sess())
	})
}

// PreConfigure injects command-line crate attributes and expands cfg_attr
// on the crate attributes. It consumes the parsed tree.
func (q *Queries) PreConfigure(ctx context.Context) (*memo.Steal[PreConfigured], error) {
	return compute(ctx, q, q.preConfigure, func(ctx context.Context) (PreConfigured, error) {
		box, err := q.Parse(ctx)
		if err != nil {
			return PreConfigured{}, err
		}
		tree := box.Steal()
		expand.InjectCrateAttrs(ctx, q.sess(), tree)
		attrs := expand.PreConfigureAttrs(ctx, q.sess(), tree.Attrs)
		return PreConfigured{Tree: tree, Attrs: attrs}, nil
	})
}

// CrateName resolves the crate name from the options and the
// pre-configured attributes, which it only reads.
func (q *Queries) CrateName(ctx context.Context) (*memo.Steal[string], error) {
	return compute(ctx, q, q.crateName, func(ctx context.Context) (string, error) {
		box, err := q.PreConfigure(ctx)
		if err != nil {
			return "", err
		}
		return expand.FindCrateName(q.sess(), box.Borrow().Attrs), nil
	})
}

// RegisterPlugins registers lints and prepares incremental compilation,
// then kicks off the background load of the previous dep graph.
func (q *Queries) RegisterPlugins(ctx context.Context) (*memo.Steal[Registered], error) {
	return compute(ctx, q, q.registerPlugins, func(ctx context.Context) (Registered, error) {
		nameBox, err := q.CrateName(ctx)
		if err != nil {
			return Registered{}, err
		}
		crateName := nameBox.Borrow()

		pcBox, err := q.PreConfigure(ctx)
		if err != nil {
			return Registered{}, err
		}
		pc := pcBox.Steal()

		lints, err := passes.RegisterPlugins(ctx, q.sess(), q.compiler.Backend.MetadataLoader(),
			q.compiler.RegisterLints, pc.Attrs, crateName)
		if err != nil {
			return Registered{}, err
		}

		// Start loading now that the session directory exists; dep_graph
		// picks the result up.
		_, _ = q.DepGraphFuture(ctx)

		return Registered{Tree: pc.Tree, Attrs: pc.Attrs, Lints: lints}, nil
	})
}

// DepGraph waits for the background load and builds this session's dep
// graph, or a disabled one.
func (q *Queries) DepGraph(ctx context.Context) (*memo.Steal[*incremental.DepGraph], error) {
	return compute(ctx, q, q.depGraph, func(ctx context.Context) (*incremental.DepGraph, error) {
		box, err := q.DepGraphFuture(ctx)
		if err != nil {
			return nil, err
		}
		var g *incremental.DepGraph
		if future := box.Steal(); future != nil {
			var prev *incremental.SerializedDepGraph
			var products incremental.WorkProductMap
			q.sess().Time(ctx, "blocked_on_dep_graph_loading", func(ctx context.Context) {
				prev, products = future.Open(ctx, q.sess())
			})
			g = incremental.Build(ctx, q.sess(), prev, products)
		}
		if g == nil {
			g = incremental.NewDisabledDepGraph()
		}
		return g, nil
	})
}

// GlobalCtxt builds the global context, publishes it for teardown and
// feeds it the inputs of resolution.
func (q *Queries) GlobalCtxt(ctx context.Context) (*memo.Steal[*gcx.Context], error) {
	return compute(ctx, q, q.globalCtxt, func(ctx context.Context) (*gcx.Context, error) {
		nameBox, err := q.CrateName(ctx)
		if err != nil {
			return nil, err
		}
		crateName := nameBox.Borrow()

		regBox, err := q.RegisterPlugins(ctx)
		if err != nil {
			return nil, err
		}
		reg := regBox.Steal()

		sess := q.sess()
		untracked := &gcx.UntrackedState{
			CStore:      gcx.NewGuarded(cstore.New()),
			Definitions: gcx.NewGuarded(gcx.NewDefinitions(sess.LocalStableCrateID())),
			SourceSpans: gcx.NewGuarded(gcx.NewSpanTable()),
		}
		untracked.SourceSpans.Write(func(t *gcx.SpanTable) {
			if def := t.Push(reg.Tree.Span); def != gcx.CrateDefID {
				panic("driver: crate root span is not the first definition")
			}
		})

		dgBox, err := q.DepGraph(ctx)
		if err != nil {
			return nil, err
		}

		tcx := passes.CreateGlobalCtxt(ctx, gcx.Config{
			Sess:      sess,
			LintStore: reg.Lints,
			DepGraph:  dgBox.Steal(),
			Untracked: untracked,
			Analyzer:  q.compiler.Analyzer,
		}, &q.gcxSlot)

		_ = tcx.Enter(ctx, func(context.Context) error {
			tcx.FeedCrateName(crateName)
			tcx.FeedResolverInput(memo.NewSteal(&gcx.ResolverInput{Tree: reg.Tree, Attrs: reg.Attrs}))
			tcx.FeedMetadataLoader(memo.NewSteal(q.compiler.Backend.MetadataLoader()))
			tcx.FeedFeatures(sess.Features())
			return nil
		})
		return tcx, nil
	})
}

// OngoingCodegen runs analysis and starts codegen.
func (q *Queries) OngoingCodegen(ctx context.Context) (*memo.Steal[codegen.Handle], error) {
	return compute(ctx, q, q.ongoingCodegen, func(ctx context.Context) (codegen.Handle, error) {
		box, err := q.GlobalCtxt(ctx)
		if err != nil {
			return nil, err
		}
		tcx := box.Borrow()

		var handle codegen.Handle
		err = tcx.Enter(ctx, func(ctx context.Context) error {
			// Analysis errors were already reported; CompileStatus
			// surfaces them.
			_ = tcx.Analysis(ctx)
			if err := tcx.Sess.CompileStatus(); err != nil {
				return err
			}
			if err := tcx.Sess.Diag.FlushDelayed(); err != nil {
				return err
			}
			if err := checkForDriverErrorAttr(ctx, tcx); err != nil {
				return err
			}
			var err error
			handle, err = passes.StartCodegen(ctx, q.compiler.Backend, tcx)
			return err
		})
		return handle, err
	})
}
