package gcx

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/lint"
	"github.com/vk/cratedrive/internal/memo"
	"github.com/vk/cratedrive/internal/session"
)

// DelayBugMessage is the delayed bug raised by TriggerDelayBug.
const DelayBugMessage = "delayed bug triggered by #[driver_error(delay_bug_from_inside_query)]"

// queryNames lists the memoized queries, for self-profile string tables.
var queryNames = []string{"resolver_for_lowering", "analysis", "crate_hash", "entry_fn", "output_filenames", "def_span", "trigger_delay_bug"}

// Resolutions is the output of name resolution.
type Resolutions struct {
	CrateAttrs ast.AttrVec
	// Order lists item definitions in source order.
	Order   []DefIndex
	Items   map[DefIndex]*ast.Item
	Externs map[string]DefIndex
}

// ItemDef pairs an item with its definition.
type ItemDef struct {
	Def  DefIndex
	Item *ast.Item
}

func query[T any](ctx context.Context, c *Context, cell *memo.Cell[T], f func(ctx context.Context) (T, error)) (T, error) {
	box, err := cell.Compute(ctx, func(ctx context.Context) (T, error) {
		var v T
		err := c.Sess.Prof.TimeErr(ctx, cell.Name, func(ctx context.Context) error {
			var err error
			v, err = f(ctx)
			return err
		})
		return v, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return box.Borrow(), nil
}

// Resolutions runs name resolution: every item gets a definition and a
// span, and extern crates are loaded into the crate store.
func (c *Context) Resolutions(ctx context.Context) (*Resolutions, error) {
	return query(ctx, c, c.resolutions, c.resolve)
}

func (c *Context) resolve(ctx context.Context) (*Resolutions, error) {
	logger := ctxlog.FromContext(ctx)
	input, loader := c.takeResolverInputs()
	res := &Resolutions{
		CrateAttrs: input.Attrs,
		Items:      make(map[DefIndex]*ast.Item),
		Externs:    make(map[string]DefIndex),
	}

	for _, item := range input.Tree.Items {
		var def DefIndex
		c.Untracked.Definitions.Write(func(d *Definitions) {
			def = d.Create(CrateDefID, item.Name, DefKind(item.Kind))
		})
		c.Untracked.SourceSpans.Write(func(t *SpanTable) {
			if got := t.Push(item.Span); got != def {
				panic(fmt.Sprintf("gcx: span table out of sync: span %d for definition %d", got, def))
			}
		})
		res.Items[def] = item
		res.Order = append(res.Order, def)

		if item.Kind == ast.ItemExtern {
			res.Externs[item.Name] = def
			var err error
			c.Untracked.CStore.Write(func(cs *cstore.CStore) {
				_, err = (&cstore.CrateLoader{Loader: loader, Store: cs}).Load(item.Name)
			})
			if err != nil {
				_ = c.Sess.Diag.Error(fmt.Sprintf("Can't find crate for `%s`", item.Name), err.Error(), item.Span.Ptr())
			}
		}
		c.DepGraph.Record(incremental.DepNode{Kind: "hir_owner", Key: item.Name}, itemFingerprint(item))
	}

	logger.Debug("Names resolved.", "items", len(res.Order), "externs", len(res.Externs))
	return res, nil
}

func itemFingerprint(item *ast.Item) incremental.Fingerprint {
	h := incremental.NewHasher().WriteString(string(item.Kind)).WriteString(item.Name).WriteString(item.Body)
	for _, a := range item.Attrs {
		h.WriteString(a.String())
	}
	return h.Sum()
}

// Items returns the crate's items in source order.
func (c *Context) Items(ctx context.Context) ([]ItemDef, error) {
	res, err := c.Resolutions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ItemDef, 0, len(res.Order))
	for _, def := range res.Order {
		out = append(out, ItemDef{Def: def, Item: res.Items[def]})
	}
	return out, nil
}

// Analysis checks the crate after name resolution and runs the configured
// analyzer. It fails when any error was reported.
func (c *Context) Analysis(ctx context.Context) error {
	_, err := query(ctx, c, c.analysis, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.analyze(ctx)
	})
	return err
}

func (c *Context) analyze(ctx context.Context) error {
	res, err := c.Resolutions(ctx)
	if err != nil {
		return err
	}

	if c.Sess.Opts.HasOutputType(session.OutputExe) {
		if _, ok := c.EntryFn(ctx); !ok {
			span := c.DefSpan(CrateDefID)
			_ = c.Sess.Diag.Error("`main` function not found",
				fmt.Sprintf("Crate `%s` is built as an executable but defines no `fn \"main\"`.", c.CrateName()), &span)
		}
	}
	c.checkLintAttrs(res.CrateAttrs)

	if c.analyzer != nil {
		if err := c.analyzer(ctx, c); err != nil {
			return err
		}
	}
	return c.Sess.CompileStatus()
}

// checkLintAttrs warns about lint level attributes naming unknown lints.
func (c *Context) checkLintAttrs(attrs ast.AttrVec) {
	if c.LintStore == nil {
		return
	}
	for _, attr := range attrs {
		if _, isLevel := lint.ParseLevel(attr.Name); !isLevel {
			continue
		}
		for _, name := range attr.Args {
			if _, ok := c.LintStore.Expand(name); !ok {
				c.Sess.Diag.Warn(fmt.Sprintf("Unknown lint: `%s`", name),
					fmt.Sprintf("Reported by lint `%s`.", lint.UnknownLints.Name), attr.Span.Ptr())
			}
		}
	}
}

// EntryFn returns the definition of the crate's `main` function.
func (c *Context) EntryFn(ctx context.Context) (DefIndex, bool) {
	res, err := c.Resolutions(ctx)
	if err != nil {
		return 0, false
	}
	for _, def := range res.Order {
		if item := res.Items[def]; item.Kind == ast.ItemFn && item.Name == "main" {
			return def, true
		}
	}
	return 0, false
}

// GetAttrs returns the attributes named name on def. For the crate root
// these are the configured crate attributes.
func (c *Context) GetAttrs(ctx context.Context, def DefIndex, name string) ast.AttrVec {
	res, err := c.Resolutions(ctx)
	if err != nil {
		return nil
	}
	if def == CrateDefID {
		return res.CrateAttrs.All(name)
	}
	if item, ok := res.Items[def]; ok {
		return item.Attrs.All(name)
	}
	return nil
}

// DefSpan returns the source range of def.
func (c *Context) DefSpan(def DefIndex) hcl.Range {
	var r hcl.Range
	var ok bool
	c.Untracked.SourceSpans.Read(func(t *SpanTable) { r, ok = t.Get(def) })
	if !ok {
		panic(fmt.Sprintf("gcx: no span for definition %d", def))
	}
	return r
}

// DefPath renders the path of def.
func (c *Context) DefPath(def DefIndex) string {
	var path string
	c.Untracked.Definitions.Read(func(d *Definitions) { path = d.DefPath(def) })
	return path
}

// CrateHash computes the strict version hash of the crate: its name,
// features, crate attributes, items and the hashes of its dependencies.
func (c *Context) CrateHash(ctx context.Context) (incremental.Svh, error) {
	return query(ctx, c, c.crateHash, func(ctx context.Context) (incremental.Svh, error) {
		res, err := c.Resolutions(ctx)
		if err != nil {
			return 0, err
		}
		h := incremental.NewHasher().WriteString(c.CrateName())
		var stableID uint64
		c.Untracked.Definitions.Read(func(d *Definitions) { stableID = d.StableCrateID() })
		h.WriteUint64(stableID)
		for _, f := range c.Features() {
			h.WriteString(f)
		}
		for _, a := range res.CrateAttrs {
			h.WriteString(a.String())
		}
		for _, def := range res.Order {
			h.WriteUint64(uint64(itemFingerprint(res.Items[def])))
		}
		c.Untracked.CStore.Read(func(cs *cstore.CStore) {
			names := cs.Names()
			slices.Sort(names)
			for _, name := range names {
				m, _ := cs.Get(name)
				h.WriteString(name).WriteUint64(m.Hash)
			}
		})
		svh := incremental.Svh(h.Sum())
		c.DepGraph.Record(incremental.DepNode{Kind: "crate_hash", Key: c.CrateName()}, incremental.Fingerprint(svh))
		return svh, nil
	})
}

// OutputFilenames returns the plan of where the crate's artifacts go.
func (c *Context) OutputFilenames() *session.OutputFilenames {
	return c.outputs()
}

// TriggerDelayBug records a delayed bug at def. It runs at most once per
// definition.
func (c *Context) TriggerDelayBug(ctx context.Context, def DefIndex) {
	c.delayBugMu.Lock()
	if c.delayBugs[def] {
		c.delayBugMu.Unlock()
		return
	}
	c.delayBugs[def] = true
	c.delayBugMu.Unlock()

	span := c.DefSpan(def)
	ctxlog.FromContext(ctx).Debug("Triggering delayed bug.", "def", c.DefPath(def))
	c.Sess.Diag.DelayBug(DelayBugMessage, &span)
}

// AllocSelfProfileQueryStrings registers the names of every query and of
// every definition with the profiler's string table.
func (c *Context) AllocSelfProfileQueryStrings() {
	for _, name := range queryNames {
		c.Sess.Prof.AllocQueryString(name)
	}
	c.Untracked.Definitions.Read(func(d *Definitions) {
		for i := 0; i < d.Len(); i++ {
			c.Sess.Prof.AllocQueryString(d.DefPath(DefIndex(i)))
		}
	})
}
