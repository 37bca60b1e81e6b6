package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/fsutil"
	"github.com/vk/cratedrive/internal/session"
)

// Loader reads session options from configuration sources.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*session.Options, error)
}

// LoadError wraps the HCL diagnostics produced for a configuration file.
type LoadError struct {
	Path  string
	Diags hcl.Diagnostics
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load configuration %s: %s", e.Path, e.Diags.Error())
}

// HCLLoader is the HCL implementation of Loader.
type HCLLoader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *HCLLoader {
	return &HCLLoader{}
}

// Load parses every .hcl file found under paths, in order, and merges them
// into one set of options. Missing paths are skipped.
func (l *HCLLoader) Load(ctx context.Context, paths ...string) (*session.Options, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL config loader started.", "path_count", len(paths))

	files, err := findHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered config files.", "count", len(files))

	opts := &session.Options{}
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, &LoadError{Path: file, Diags: diags}
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, &LoadError{Path: file, Diags: diags}
		}
		if err := root.translate(opts); err != nil {
			return nil, fmt.Errorf("failed to load configuration %s: %w", file, err)
		}
	}

	logger.Debug("Config loading complete.", "files", len(files), "incremental", opts.Incremental != "")
	return opts, nil
}

// findHCLFiles returns the .hcl files named by or found under paths, in a
// stable order without duplicates.
func findHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		matches, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error searching %s: %w", path, err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return all, nil
}
