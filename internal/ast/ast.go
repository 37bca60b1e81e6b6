// Package ast defines the unexpanded syntax tree of a translation unit as
// the driver sees it: crate-level attributes and top-level items, each with
// its source range.
package ast

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Attribute is one `#[name]`, `#[name(args...)]` or `#[name = value]`
// annotation.
type Attribute struct {
	Name string
	// Args is the meta-item list. nil means the attribute has no list;
	// an empty non-nil slice is an empty list.
	Args []string
	// Value is the `name = value` form; cty.NilVal when absent.
	Value cty.Value
	Span  hcl.Range
}

// IsWord reports whether the attribute is bare: no list, no value.
func (a Attribute) IsWord() bool {
	return a.Args == nil && !a.HasValue()
}

// HasValue reports whether the attribute uses the `name = value` form.
func (a Attribute) HasValue() bool {
	return a.Value.Type() != cty.NilType
}

// MetaItemList returns the attribute's argument list, if it has one.
func (a Attribute) MetaItemList() ([]string, bool) {
	return a.Args, a.Args != nil
}

// ValueString returns the attribute's value when it is a known string.
func (a Attribute) ValueString() (string, bool) {
	if !a.HasValue() || !a.Value.Type().Equals(cty.String) || !a.Value.IsKnown() || a.Value.IsNull() {
		return "", false
	}
	return a.Value.AsString(), true
}

// String renders the attribute in source form.
func (a Attribute) String() string {
	var b strings.Builder
	b.WriteString(a.Name)
	switch {
	case a.Args != nil:
		b.WriteString("(")
		b.WriteString(strings.Join(a.Args, ", "))
		b.WriteString(")")
	case a.HasValue():
		b.WriteString(" = ")
		b.Write(hclwrite.TokensForValue(a.Value).Bytes())
	}
	return b.String()
}

// AttrVec is an ordered list of attributes.
type AttrVec []Attribute

// Find returns the first attribute named name.
func (v AttrVec) Find(name string) (Attribute, bool) {
	for _, a := range v {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// All returns every attribute named name, in order.
func (v AttrVec) All(name string) AttrVec {
	var out AttrVec
	for _, a := range v {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// ItemKind distinguishes top-level items.
type ItemKind string

const (
	ItemFn     ItemKind = "fn"
	ItemStatic ItemKind = "static"
	ItemExtern ItemKind = "extern"
)

// Item is a top-level item of the crate.
type Item struct {
	Kind  ItemKind
	Name  string
	Attrs AttrVec
	// Body is the item's source text, opaque to the driver.
	Body string
	Span hcl.Range
}

// Tree is the unexpanded syntax tree of a crate.
type Tree struct {
	Attrs AttrVec
	Items []*Item
	// Span is the inner span of the whole crate.
	Span hcl.Range
}
