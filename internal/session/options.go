package session

import (
	"fmt"
	"slices"
	"strings"
)

// RlinkExt is the reserved extension of the serialized codegen results
// written in no-link mode.
const RlinkExt = "rlink"

// OutputType is one kind of artifact a compilation can be asked to emit.
type OutputType int

const (
	OutputExe OutputType = iota
	OutputMetadata
	OutputObject
	OutputAssembly
	OutputDepInfo
)

var outputTypeNames = map[OutputType]string{
	OutputExe:      "exe",
	OutputMetadata: "metadata",
	OutputObject:   "obj",
	OutputAssembly: "asm",
	OutputDepInfo:  "dep-info",
}

var outputTypeExts = map[OutputType]string{
	OutputExe:      "",
	OutputMetadata: "rmeta",
	OutputObject:   "o",
	OutputAssembly: "s",
	OutputDepInfo:  "d",
}

func (t OutputType) String() string {
	if name, ok := outputTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OutputType(%d)", int(t))
}

// Extension returns the file extension used for t, without the dot.
func (t OutputType) Extension() string {
	return outputTypeExts[t]
}

// ParseOutputType parses the textual name of an output type.
func ParseOutputType(s string) (OutputType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range outputTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown output type %q", s)
}

// Options is the configuration of one compilation session.
type Options struct {
	// Input is the path of the translation unit.
	Input string
	// CrateName is the crate name given explicitly by the invoker. It takes
	// precedence over a crate_name attribute, which must agree with it.
	CrateName string
	// OutputTypes lists the requested artifacts. Empty means exe.
	OutputTypes []OutputType
	// OutDir is the directory artifacts are written to.
	OutDir string
	// OutputFile overrides the path of the single requested artifact.
	OutputFile string
	// Incremental is the root of the incremental-compilation cache. Empty
	// disables incremental compilation.
	Incremental string
	// NoLink stops after codegen and writes the results to an .rlink file.
	NoLink bool
	// CrateAttrs are crate-level attributes injected before
	// pre-configuration, e.g. `feature(foo)`.
	CrateAttrs []string
	// Cfg is the set of active configuration predicates.
	Cfg map[string]string
	// ParseOnly stops the default pipeline after parsing.
	ParseOnly bool
	// CodegenWorkers bounds the backend's parallel codegen units.
	CodegenWorkers int
}

// BuildDepGraph reports whether a dependency graph should be tracked.
func (o *Options) BuildDepGraph() bool {
	return o.Incremental != ""
}

// HasOutputType reports whether t was requested.
func (o *Options) HasOutputType(t OutputType) bool {
	return slices.Contains(o.EffectiveOutputTypes(), t)
}

// EffectiveOutputTypes returns OutputTypes, defaulting to exe.
func (o *Options) EffectiveOutputTypes() []OutputType {
	if len(o.OutputTypes) == 0 {
		return []OutputType{OutputExe}
	}
	return o.OutputTypes
}

// CfgSet reports whether the configuration predicate name is active. A
// predicate of the form `key=value` matches a Cfg entry with that value.
func (o *Options) CfgSet(pred string) bool {
	key, want, hasValue := strings.Cut(pred, "=")
	key = strings.TrimSpace(key)
	got, ok := o.Cfg[key]
	if !ok {
		return false
	}
	if !hasValue {
		return true
	}
	return got == strings.Trim(strings.TrimSpace(want), `"`)
}
