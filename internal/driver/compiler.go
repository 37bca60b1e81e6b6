package driver

import (
	"context"

	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/codegen"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/frontend"
	"github.com/vk/cratedrive/internal/gcx"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/passes"
	"github.com/vk/cratedrive/internal/session"
)

// Parser turns the session's input into an unexpanded tree. Errors are
// reported to the session before being returned.
type Parser interface {
	Parse(ctx context.Context, sess *session.Session) (*ast.Tree, error)
}

// Compiler is one compilation: a session plus the pluggable collaborators
// the stages call into.
type Compiler struct {
	Sess    *session.Session
	Backend codegen.Backend
	// Parser defaults to the HCL frontend.
	Parser Parser
	// RegisterLints is called during plugin registration.
	RegisterLints passes.RegisterLintsHook
	// Analyzer runs as part of analysis.
	Analyzer gcx.Analyzer
}

// NewCompiler creates a compiler with the default parser.
func NewCompiler(sess *session.Session, backend codegen.Backend) *Compiler {
	return &Compiler{Sess: sess, Backend: backend}
}

func (c *Compiler) parser() Parser {
	if c.Parser == nil {
		return frontend.NewParser()
	}
	return c.Parser
}

// Enter runs f against a fresh stage graph and returns its error. If f got
// as far as building the global context, its query strings are allocated
// and the dep graph is saved afterwards; neither affects the result.
func (c *Compiler) Enter(ctx context.Context, f func(ctx context.Context, q *Queries) error) error {
	logger := ctxlog.FromContext(ctx)
	q := newQueries(c)
	err := f(ctx, q)

	if tcx, ok := q.gcxSlot.Get(); ok {
		c.Sess.Time(ctx, "self_profile_alloc_query_strings", func(ctx context.Context) {
			_ = tcx.Enter(ctx, func(context.Context) error {
				tcx.AllocSelfProfileQueryStrings()
				return nil
			})
		})
		c.Sess.Time(ctx, "serialize_dep_graph", func(ctx context.Context) {
			_ = tcx.Enter(ctx, func(ctx context.Context) error {
				if err := incremental.SaveDepGraph(ctx, c.Sess, tcx.DepGraph); err != nil {
					logger.Warn("Dep graph was not saved.", "error", err)
				}
				return nil
			})
		})
	}

	c.Sess.Time(ctx, "free_global_ctxt", func(context.Context) {})
	return err
}
