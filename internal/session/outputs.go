package session

import (
	"path/filepath"
	"strings"
)

// OutputFilenames is the plan of where each artifact of a crate is written.
type OutputFilenames struct {
	OutDir           string
	FileStem         string
	SingleOutputFile string
	OutputTypes      []OutputType
}

// Path returns the destination of an artifact of type t.
func (o *OutputFilenames) Path(t OutputType) string {
	if o.SingleOutputFile != "" && len(o.OutputTypes) == 1 && o.OutputTypes[0] == t {
		return o.SingleOutputFile
	}
	ext := t.Extension()
	if ext == "" {
		return filepath.Join(o.OutDir, o.FileStem)
	}
	return o.WithExtension(ext)
}

// WithExtension returns the crate's output stem with extension ext.
func (o *OutputFilenames) WithExtension(ext string) string {
	return filepath.Join(o.OutDir, o.FileStem+"."+ext)
}

// TempPath returns the path of an intermediate file for codegen unit cgu.
func (o *OutputFilenames) TempPath(cgu, ext string) string {
	return filepath.Join(o.OutDir, o.FileStem+"."+cgu+"."+ext)
}

// BuildOutputFilenames derives the output plan for crateName from opts.
func BuildOutputFilenames(opts *Options, crateName string) *OutputFilenames {
	outDir := opts.OutDir
	stem := crateName
	if opts.OutputFile != "" {
		outDir = filepath.Dir(opts.OutputFile)
		stem = strings.TrimSuffix(filepath.Base(opts.OutputFile), filepath.Ext(opts.OutputFile))
	}
	if outDir == "" {
		outDir = "."
	}
	types := opts.EffectiveOutputTypes()
	single := ""
	if opts.OutputFile != "" && len(types) == 1 {
		single = opts.OutputFile
	}
	return &OutputFilenames{
		OutDir:           outDir,
		FileStem:         stem,
		SingleOutputFile: single,
		OutputTypes:      types,
	}
}
