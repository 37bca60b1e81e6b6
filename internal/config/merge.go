package config

import (
	"errors"
	"fmt"
	"maps"

	"github.com/vk/cratedrive/internal/session"
)

// Merge overlays the options set in override onto base and returns the
// result. Scalars set in override win; lists and cfg maps are combined.
func Merge(base, override *session.Options) *session.Options {
	out := *base
	out.OutputTypes = append([]session.OutputType(nil), base.OutputTypes...)
	out.CrateAttrs = append([]string(nil), base.CrateAttrs...)
	out.Cfg = maps.Clone(base.Cfg)

	if override.Input != "" {
		out.Input = override.Input
	}
	if override.CrateName != "" {
		out.CrateName = override.CrateName
	}
	if len(override.OutputTypes) > 0 {
		out.OutputTypes = append([]session.OutputType(nil), override.OutputTypes...)
	}
	if override.OutDir != "" {
		out.OutDir = override.OutDir
	}
	if override.OutputFile != "" {
		out.OutputFile = override.OutputFile
	}
	if override.Incremental != "" {
		out.Incremental = override.Incremental
	}
	out.NoLink = out.NoLink || override.NoLink
	out.ParseOnly = out.ParseOnly || override.ParseOnly
	out.CrateAttrs = append(out.CrateAttrs, override.CrateAttrs...)
	if override.CodegenWorkers > 0 {
		out.CodegenWorkers = override.CodegenWorkers
	}
	if len(override.Cfg) > 0 {
		if out.Cfg == nil {
			out.Cfg = make(map[string]string, len(override.Cfg))
		}
		maps.Copy(out.Cfg, override.Cfg)
	}
	return &out
}

// Validate checks options for values no stage can work with.
func Validate(opts *session.Options) error {
	var errs []error
	if opts.Input == "" {
		errs = append(errs, errors.New("an input file is required"))
	}
	if opts.CodegenWorkers < 0 {
		errs = append(errs, fmt.Errorf("codegen_workers must not be negative, got %d", opts.CodegenWorkers))
	}
	if opts.OutputFile != "" && len(opts.EffectiveOutputTypes()) > 1 {
		errs = append(errs, errors.New("output_file can only be used with a single output type"))
	}
	seen := make(map[session.OutputType]bool)
	for _, t := range opts.OutputTypes {
		if seen[t] {
			errs = append(errs, fmt.Errorf("output type %s requested more than once", t))
		}
		seen[t] = true
	}
	return errors.Join(errs...)
}
