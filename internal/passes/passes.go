// Package passes contains the driver's stage bodies that are not queries:
// plugin registration, global context creation and the start of codegen.
package passes

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/codegen"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/gcx"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/lint"
	"github.com/vk/cratedrive/internal/memo"
	"github.com/vk/cratedrive/internal/session"
)

// RegisterLintsHook lets the embedder of the driver register extra lints.
type RegisterLintsHook func(sess *session.Session, store *lint.Store)

// RegisterPlugins enables the crate's features, fixes its stable id,
// prepares the incremental session directory and builds the lint store:
// builtin lints, lints of `plugin(...)` crates, then the hook's.
func RegisterPlugins(ctx context.Context, sess *session.Session, loader cstore.MetadataLoader, hook RegisterLintsHook, attrs ast.AttrVec, crateName string) (*lint.Store, error) {
	logger := ctxlog.FromContext(ctx)

	var features []string
	for _, attr := range attrs.All("feature") {
		features = append(features, attr.Args...)
	}
	sess.InitFeatures(features)
	sess.SetLocalStableCrateID(incremental.StableCrateID(crateName))

	if err := incremental.PrepareSessionDir(ctx, sess, crateName); err != nil {
		return nil, err
	}

	store := lint.NewStore()
	store.RegisterBuiltins()

	sess.Time(ctx, "plugin_loading", func(ctx context.Context) {
		for _, attr := range attrs.All("plugin") {
			for _, name := range attr.Args {
				md, err := loader.LoadMetadata(name)
				if err != nil {
					_ = sess.Diag.Error(fmt.Sprintf("Plugin `%s` not found", name), err.Error(), attr.Span.Ptr())
					continue
				}
				for _, l := range md.Lints {
					store.RegisterLints(&lint.Lint{Name: l, Default: lint.Warn, Desc: "registered by plugin " + name})
				}
				logger.Debug("Plugin loaded.", "plugin", name, "lints", len(md.Lints))
			}
		}
	})

	if hook != nil {
		sess.Time(ctx, "plugin_registration", func(context.Context) {
			hook(sess, store)
		})
	}
	logger.Debug("Plugins registered.", "crate", crateName, "features", len(features), "lints", len(store.Lints()))
	return store, nil
}

// CreateGlobalCtxt builds the global context and publishes it into slot,
// which must be empty.
func CreateGlobalCtxt(ctx context.Context, cfg gcx.Config, slot *memo.OnceSlot[gcx.Context]) *gcx.Context {
	var tcx *gcx.Context
	cfg.Sess.Time(ctx, "setup_global_ctxt", func(context.Context) {
		tcx = slot.Set(gcx.New(cfg))
	})
	return tcx
}

// StartCodegen writes dep-info when requested and hands the crate to the
// backend.
func StartCodegen(ctx context.Context, backend codegen.Backend, tcx *gcx.Context) (codegen.Handle, error) {
	sess := tcx.Sess
	ctxlog.FromContext(ctx).Debug("Starting codegen.", "backend", backend.Name(), "crate", tcx.CrateName())

	if sess.Opts.HasOutputType(session.OutputDepInfo) {
		if err := writeDepInfo(tcx); err != nil {
			return nil, err
		}
	}

	var handle codegen.Handle
	err := sess.Prof.TimeErr(ctx, "codegen_crate", func(ctx context.Context) error {
		var err error
		handle, err = backend.StartCodegen(ctx, tcx)
		return err
	})
	return handle, err
}

// writeDepInfo writes a make-style dependency file listing the input as
// prerequisite of every other requested artifact.
func writeDepInfo(tcx *gcx.Context) error {
	sess := tcx.Sess
	outputs := tcx.OutputFilenames()
	input := escapeDepPath(sess.Opts.Input)

	var b strings.Builder
	for _, t := range outputs.OutputTypes {
		if t == session.OutputDepInfo {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", escapeDepPath(outputs.Path(t)), input)
	}
	fmt.Fprintf(&b, "\n%s:\n", input)

	path := outputs.Path(session.OutputDepInfo)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return sess.Diag.Fatal(fmt.Sprintf("error writing dependencies to `%s`: %v", path, err), nil)
	}
	return nil
}

func escapeDepPath(p string) string {
	return strings.ReplaceAll(p, " ", `\ `)
}
