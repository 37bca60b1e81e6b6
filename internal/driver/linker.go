package driver

import (
	"context"
	"fmt"

	"github.com/vk/cratedrive/internal/codegen"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/session"
)

// Linker is everything needed to finish a compilation after the stage
// graph is gone: it owns the codegen handle and a handle on the dep graph.
type Linker struct {
	sess      *session.Session
	backend   codegen.Backend
	depGraph  *incremental.DepGraph
	outputs   *session.OutputFilenames
	crateHash *incremental.Svh
	handle    codegen.Handle
}

// Linker collects what linking needs from the global context and takes
// the ongoing codegen.
func (q *Queries) Linker(ctx context.Context) (*Linker, error) {
	gcxBox, err := q.GlobalCtxt(ctx)
	if err != nil {
		return nil, err
	}
	tcx := gcxBox.Borrow()
	sess := q.sess()

	l := &Linker{sess: sess, backend: q.compiler.Backend}
	err = tcx.Enter(ctx, func(ctx context.Context) error {
		if sess.NeedsCrateHash() {
			h, err := tcx.CrateHash(ctx)
			if err != nil {
				return err
			}
			l.crateHash = &h
		}
		l.outputs = tcx.OutputFilenames()
		l.depGraph = tcx.DepGraph.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	codegenBox, err := q.OngoingCodegen(ctx)
	if err != nil {
		return nil, err
	}
	l.handle = codegenBox.Steal()
	return l, nil
}

// Link joins codegen, persists incremental state and produces the
// artifacts, or an .rlink file when linking is disabled.
func (l *Linker) Link(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	sess := l.sess

	results, products, err := l.handle.Join(ctx, sess, l.outputs)
	if err != nil {
		return err
	}
	if err := sess.CompileStatus(); err != nil {
		return err
	}

	sess.Time(ctx, "serialize_work_products", func(ctx context.Context) {
		err = incremental.SaveWorkProductIndex(ctx, sess, l.depGraph, products)
	})
	if err != nil {
		return err
	}

	sess.Time(ctx, "drop_dep_graph", func(context.Context) {
		l.depGraph = nil
	})

	incremental.FinalizeSessionDir(ctx, sess, l.crateHash)

	if !sess.Opts.HasOutputType(session.OutputExe) && !sess.Opts.HasOutputType(session.OutputMetadata) {
		logger.Debug("Nothing to link.", "outputs", sess.Opts.EffectiveOutputTypes())
		return nil
	}

	if sess.Opts.NoLink {
		path := l.outputs.WithExtension(session.RlinkExt)
		if err := codegen.SerializeRlink(path, results); err != nil {
			return sess.Diag.Fatal(fmt.Sprintf("failed to write file %s: %v", path, err), nil)
		}
		logger.Debug("Codegen results written.", "path", path)
		return nil
	}

	return sess.Prof.TimeErr(ctx, "link_crate", func(ctx context.Context) error {
		return l.backend.Link(ctx, sess, results, l.outputs)
	})
}
