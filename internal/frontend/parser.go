// Package frontend is the reference parser of the driver: it reads a
// translation unit written in HCL syntax and produces an unexpanded
// ast.Tree.
//
// A unit consists of crate attributes and items:
//
//	attr "crate_name" {
//	  value = "demo"
//	}
//	attr "feature" {
//	  args = ["labels"]
//	}
//
//	fn "main" {
//	  attr "driver_error" {}
//	  body = "print(greeting)"
//	}
//	static "greeting" {
//	  body = "\"hello\""
//	}
//
// Parse errors are emitted to the session's diagnostic handler; the
// returned error is diag.ErrReported.
package frontend

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/session"
	"github.com/zclconf/go-cty/cty"
)

var unitSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "attr", LabelNames: []string{"name"}},
		{Type: string(ast.ItemFn), LabelNames: []string{"name"}},
		{Type: string(ast.ItemStatic), LabelNames: []string{"name"}},
		{Type: string(ast.ItemExtern), LabelNames: []string{"name"}},
	},
}

var itemSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{{Name: "body"}},
	Blocks:     []hcl.BlockHeaderSchema{{Type: "attr", LabelNames: []string{"name"}}},
}

// attrBody is the content of an `attr` block.
type attrBody struct {
	Args  *[]string `hcl:"args,optional"`
	Value cty.Value `hcl:"value,optional"`
}

// Parser parses translation units from disk.
type Parser struct{}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads and parses the session's input file.
func (p *Parser) Parse(ctx context.Context, sess *session.Session) (*ast.Tree, error) {
	src, err := os.ReadFile(sess.Opts.Input)
	if err != nil {
		return nil, sess.Diag.Fatal(fmt.Sprintf("couldn't read %s: %v", sess.Opts.Input, err), nil)
	}
	return ParseSource(ctx, sess, sess.Opts.Input, src)
}

// ParseSource parses src as the unit named filename.
func ParseSource(ctx context.Context, sess *session.Session, filename string, src []byte) (*ast.Tree, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing translation unit.", "file", filename, "bytes", len(src))

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, sess.Diag.EmitAll(diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		panic(fmt.Sprintf("frontend: unexpected body type %T", file.Body))
	}

	content, diags := body.Content(unitSchema)
	tree := &ast.Tree{Span: body.SrcRange}
	seen := make(map[string]hcl.Range)

	for _, blk := range content.Blocks {
		if blk.Type == "attr" {
			attr, attrDiags := decodeAttr(blk)
			diags = append(diags, attrDiags...)
			tree.Attrs = append(tree.Attrs, attr)
			continue
		}

		item, itemDiags := decodeItem(blk)
		diags = append(diags, itemDiags...)
		if prev, dup := seen[item.Name]; dup {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate item name",
				Detail:   fmt.Sprintf("The name %q is defined multiple times; first definition at %s.", item.Name, prev),
				Subject:  blk.DefRange.Ptr(),
			})
			continue
		}
		seen[item.Name] = blk.DefRange
		tree.Items = append(tree.Items, item)
	}

	if err := sess.Diag.EmitAll(diags); err != nil {
		return nil, err
	}
	logger.Debug("Translation unit parsed.", "attrs", len(tree.Attrs), "items", len(tree.Items))
	return tree, nil
}

func decodeAttr(blk *hcl.Block) (ast.Attribute, hcl.Diagnostics) {
	var body attrBody
	diags := gohcl.DecodeBody(blk.Body, nil, &body)
	attr := ast.Attribute{Name: blk.Labels[0], Value: body.Value, Span: blk.DefRange}
	if body.Args != nil {
		attr.Args = append([]string{}, (*body.Args)...)
	}
	if attr.Args != nil && attr.HasValue() {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Malformed attribute",
			Detail:   fmt.Sprintf("Attribute %q sets both args and value; use one form.", attr.Name),
			Subject:  blk.DefRange.Ptr(),
		})
	}
	return attr, diags
}

func decodeItem(blk *hcl.Block) (*ast.Item, hcl.Diagnostics) {
	item := &ast.Item{Kind: ast.ItemKind(blk.Type), Name: blk.Labels[0], Span: blk.DefRange}
	content, diags := blk.Body.Content(itemSchema)
	if attr, ok := content.Attributes["body"]; ok {
		var text string
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &text)...)
		item.Body = text
	}
	for _, nested := range content.Blocks {
		attr, attrDiags := decodeAttr(nested)
		diags = append(diags, attrDiags...)
		item.Attrs = append(item.Attrs, attr)
	}
	return item, diags
}
