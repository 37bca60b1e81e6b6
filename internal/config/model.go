package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/cratedrive/internal/session"
)

// fileRoot is the struct every configuration file is decoded into.
type fileRoot struct {
	CrateName      *string     `hcl:"crate_name,optional"`
	OutputTypes    []string    `hcl:"output_types,optional"`
	OutDir         *string     `hcl:"out_dir,optional"`
	OutputFile     *string     `hcl:"output_file,optional"`
	Incremental    *string     `hcl:"incremental,optional"`
	NoLink         *bool       `hcl:"no_link,optional"`
	CrateAttrs     []string    `hcl:"crate_attrs,optional"`
	CodegenWorkers *int        `hcl:"codegen_workers,optional"`
	Cfg            []*cfgBlock `hcl:"cfg,block"`
	Remain         hcl.Body    `hcl:",remain"`
}

// cfgBlock is a `cfg "name" { value = "..." }` block.
type cfgBlock struct {
	Name  string  `hcl:"name,label"`
	Value *string `hcl:"value,optional"`
}

// translate merges one decoded file into opts. Later files override scalar
// options set by earlier ones and extend list options.
func (r *fileRoot) translate(opts *session.Options) error {
	if r.CrateName != nil {
		opts.CrateName = *r.CrateName
	}
	for _, raw := range r.OutputTypes {
		t, err := session.ParseOutputType(raw)
		if err != nil {
			return err
		}
		opts.OutputTypes = append(opts.OutputTypes, t)
	}
	if r.OutDir != nil {
		opts.OutDir = *r.OutDir
	}
	if r.OutputFile != nil {
		opts.OutputFile = *r.OutputFile
	}
	if r.Incremental != nil {
		opts.Incremental = *r.Incremental
	}
	if r.NoLink != nil {
		opts.NoLink = *r.NoLink
	}
	opts.CrateAttrs = append(opts.CrateAttrs, r.CrateAttrs...)
	if r.CodegenWorkers != nil {
		opts.CodegenWorkers = *r.CodegenWorkers
	}
	for _, c := range r.Cfg {
		if opts.Cfg == nil {
			opts.Cfg = make(map[string]string)
		}
		if _, dup := opts.Cfg[c.Name]; dup {
			return fmt.Errorf("cfg %q declared more than once", c.Name)
		}
		v := ""
		if c.Value != nil {
			v = *c.Value
		}
		opts.Cfg[c.Name] = v
	}
	return nil
}
