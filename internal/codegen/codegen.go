// Package codegen defines the boundary between the driver and a code
// generation backend, and the results that cross it.
package codegen

import (
	"context"
	"slices"

	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/cstore"
	"github.com/vk/cratedrive/internal/gcx"
	"github.com/vk/cratedrive/internal/incremental"
	"github.com/vk/cratedrive/internal/session"
)

// Backend generates code for a crate and links the results.
type Backend interface {
	Name() string
	// MetadataLoader reads the metadata of external crates in the
	// backend's artifact format.
	MetadataLoader() cstore.MetadataLoader
	// StartCodegen begins code generation. The backend may continue
	// working in the background until the handle is joined.
	StartCodegen(ctx context.Context, tcx *gcx.Context) (Handle, error)
	// Link produces the final artifacts from joined codegen results.
	Link(ctx context.Context, sess *session.Session, results *Results, outputs *session.OutputFilenames) error
}

// Handle is in-flight code generation.
type Handle interface {
	// Join waits for code generation to finish and returns its results and
	// the work products to remember for the next incremental session.
	Join(ctx context.Context, sess *session.Session, outputs *session.OutputFilenames) (*Results, incremental.WorkProductMap, error)
}

// ModuleKind classifies compiled modules.
type ModuleKind int

const (
	ModuleRegular ModuleKind = iota
	ModuleMetadata
)

// CompiledModule is one codegen unit's output.
type CompiledModule struct {
	Name   string     `msgpack:"name"`
	Kind   ModuleKind `msgpack:"kind"`
	Object string     `msgpack:"object"`
	Reused bool       `msgpack:"reused"`
}

// CrateInfo is what linking needs to know about the crate.
type CrateInfo struct {
	CrateName     string   `msgpack:"crate_name"`
	StableCrateID uint64   `msgpack:"stable_crate_id"`
	EntryFn       string   `msgpack:"entry_fn"`
	Externs       []string `msgpack:"externs"`
	Features      []string `msgpack:"features"`
}

// Results is joined codegen output.
type Results struct {
	Modules   []CompiledModule `msgpack:"modules"`
	Metadata  []byte           `msgpack:"metadata"`
	CrateInfo CrateInfo        `msgpack:"crate_info"`
}

// NewCrateInfo collects the crate info of tcx.
func NewCrateInfo(ctx context.Context, tcx *gcx.Context) CrateInfo {
	info := CrateInfo{
		CrateName:     tcx.CrateName(),
		StableCrateID: tcx.Sess.LocalStableCrateID(),
		Features:      tcx.Features(),
	}
	if def, ok := tcx.EntryFn(ctx); ok {
		info.EntryFn = tcx.DefPath(def)
	}
	tcx.Untracked.CStore.Read(func(cs *cstore.CStore) {
		info.Externs = cs.Names()
	})
	return info
}

// EncodeMetadata produces the crate's metadata for dependents.
func EncodeMetadata(ctx context.Context, tcx *gcx.Context) ([]byte, error) {
	items, err := tcx.Items(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := tcx.CrateHash(ctx)
	if err != nil {
		return nil, err
	}
	md := &cstore.CrateMetadata{
		Name:     tcx.CrateName(),
		StableID: tcx.Sess.LocalStableCrateID(),
		Hash:     uint64(hash),
		Features: tcx.Features(),
	}
	for _, it := range items {
		if it.Item.Kind != ast.ItemExtern {
			md.Exports = append(md.Exports, it.Item.Name)
		}
	}
	slices.Sort(md.Exports)
	return md.Encode()
}
