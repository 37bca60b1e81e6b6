// Package expand performs the attribute work that happens before the crate
// is configured: injecting crate attributes given on the command line,
// expanding `cfg_attr`, and deciding the crate name.
package expand

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/session"
)

// CrateAttrFilename is the pseudo file name of injected crate attributes.
const CrateAttrFilename = "<crate attribute>"

// FallbackCrateName is used when nothing else names the crate.
const FallbackCrateName = "out"

// ParseMetaItem parses the source form of one attribute: `name`,
// `name(arg, ...)` or `name = value`. Arguments keep their source text, so
// nested meta items such as `feature(x)` survive as strings.
func ParseMetaItem(src, filename string, span hcl.Range) (ast.Attribute, hcl.Diagnostics) {
	if name, value, ok := strings.Cut(src, "="); ok && hclsyntax.ValidIdentifier(strings.TrimSpace(name)) {
		expr, diags := hclsyntax.ParseExpression([]byte(value), filename, hcl.InitialPos)
		if diags.HasErrors() {
			return ast.Attribute{}, diags
		}
		v, valDiags := expr.Value(nil)
		diags = append(diags, valDiags...)
		return ast.Attribute{Name: strings.TrimSpace(name), Value: v, Span: span}, diags
	}

	source := []byte(src)
	expr, diags := hclsyntax.ParseExpression(source, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return ast.Attribute{}, diags
	}
	switch e := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(e.Traversal) == 1 {
			return ast.Attribute{Name: e.Traversal.RootName(), Span: span}, nil
		}
	case *hclsyntax.FunctionCallExpr:
		args := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			args = append(args, argText(source, arg))
		}
		return ast.Attribute{Name: e.Name, Args: args, Span: span}, nil
	}
	return ast.Attribute{}, hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  "Malformed attribute",
		Detail:   fmt.Sprintf("%q is not of the form `name`, `name(args)` or `name = value`.", src),
		Subject:  span.Ptr(),
	}}
}

// argText returns a literal string argument's value, or the argument's
// source text otherwise.
func argText(src []byte, arg hclsyntax.Expression) string {
	if tmpl, ok := arg.(*hclsyntax.TemplateExpr); ok && tmpl.IsStringLiteral() {
		if v, diags := tmpl.Value(nil); !diags.HasErrors() {
			return v.AsString()
		}
	}
	r := arg.Range()
	return strings.TrimSpace(string(src[r.Start.Byte:r.End.Byte]))
}

// InjectCrateAttrs appends the session's command-line crate attributes to
// the tree. Malformed attributes are reported and skipped.
func InjectCrateAttrs(ctx context.Context, sess *session.Session, tree *ast.Tree) {
	logger := ctxlog.FromContext(ctx)
	for _, raw := range sess.Opts.CrateAttrs {
		span := hcl.Range{Filename: CrateAttrFilename, Start: hcl.InitialPos, End: hcl.Pos{Line: 1, Column: len(raw) + 1, Byte: len(raw)}}
		attr, diags := ParseMetaItem(raw, CrateAttrFilename, span)
		if sess.Diag.EmitAll(diags) != nil {
			continue
		}
		logger.Debug("Injecting crate attribute.", "attr", attr.String())
		tree.Attrs = append(tree.Attrs, attr)
	}
}

// PreConfigureAttrs expands `cfg_attr(predicate, attr, ...)` in attrs
// against the session's active cfg set. Attributes whose predicate is off
// are dropped. Expansion recurses, so a cfg_attr may produce another one.
func PreConfigureAttrs(ctx context.Context, sess *session.Session, attrs ast.AttrVec) ast.AttrVec {
	out := make(ast.AttrVec, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, expandCfgAttr(ctx, sess, attr)...)
	}
	return out
}

func expandCfgAttr(ctx context.Context, sess *session.Session, attr ast.Attribute) ast.AttrVec {
	if attr.Name != "cfg_attr" {
		return ast.AttrVec{attr}
	}
	args, ok := attr.MetaItemList()
	if !ok || len(args) < 2 {
		_ = sess.Diag.Error("Malformed cfg_attr attribute",
			"Expected `cfg_attr(predicate, attr, ...)`.", attr.Span.Ptr())
		return nil
	}
	pred := args[0]
	if !sess.Opts.CfgSet(pred) {
		ctxlog.FromContext(ctx).Debug("cfg_attr predicate is off.", "predicate", pred)
		return nil
	}

	var out ast.AttrVec
	for _, raw := range args[1:] {
		inner, diags := ParseMetaItem(raw, attr.Span.Filename, attr.Span)
		if sess.Diag.EmitAll(diags) != nil {
			continue
		}
		out = append(out, expandCfgAttr(ctx, sess, inner)...)
	}
	return out
}

// FindCrateName decides the crate name. An explicit name from the session
// options wins; a `crate_name` attribute that disagrees with it is an
// error. Otherwise the attribute is used, then the input file stem.
func FindCrateName(sess *session.Session, attrs ast.AttrVec) string {
	var attrName string
	var attrSpan *hcl.Range
	if attr, ok := attrs.Find("crate_name"); ok {
		attrSpan = attr.Span.Ptr()
		if s, ok := attr.ValueString(); ok {
			attrName = s
		} else {
			_ = sess.Diag.Error("Malformed crate_name attribute",
				"Expected `crate_name = \"name\"`.", attrSpan)
		}
	}

	if explicit := sess.Opts.CrateName; explicit != "" {
		if attrName != "" && attrName != explicit {
			_ = sess.Diag.Error("Crate name mismatch",
				fmt.Sprintf("The explicit crate name %q and the crate_name attribute %q are required to match.", explicit, attrName),
				attrSpan)
		}
		validateCrateName(sess, explicit, nil)
		return explicit
	}
	if attrName != "" {
		validateCrateName(sess, attrName, attrSpan)
		return attrName
	}
	if sess.Opts.Input != "" {
		stem := strings.TrimSuffix(filepath.Base(sess.Opts.Input), filepath.Ext(sess.Opts.Input))
		stem = strings.ReplaceAll(stem, "-", "_")
		if stem != "" {
			validateCrateName(sess, stem, nil)
			return stem
		}
	}
	return FallbackCrateName
}

func validateCrateName(sess *session.Session, name string, span *hcl.Range) {
	for _, r := range name {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			continue
		}
		_ = sess.Diag.Error("Invalid crate name",
			fmt.Sprintf("Invalid character %q in crate name %q.", r, name), span)
		return
	}
}
