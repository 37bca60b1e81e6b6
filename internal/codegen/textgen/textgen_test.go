package textgen

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/codegen"
	"github.com/vk/cratedrive/internal/session"
)

func TestRender(t *testing.T) {
	got := render(unit{name: "demo.main", item: &ast.Item{Kind: ast.ItemFn, Name: "main", Body: "a\nb"}})
	assert.Equal(t, "; textgen object demo.main\nfn main\n  a\n  b\n", got)
}

func TestLink(t *testing.T) {
	dir := t.TempDir()
	obj := filepath.Join(dir, "demo.main.o")
	require.NoError(t, os.WriteFile(obj, []byte("fn main\n"), 0o644))

	opts := session.Options{OutDir: dir, OutputTypes: []session.OutputType{session.OutputExe, session.OutputMetadata}}
	sess := session.New(opts, slog.New(slog.DiscardHandler))
	outputs := session.BuildOutputFilenames(&opts, "demo")
	results := &codegen.Results{
		Modules:   []codegen.CompiledModule{{Name: "demo.main", Object: obj}},
		Metadata:  []byte("meta"),
		CrateInfo: codegen.CrateInfo{CrateName: "demo", EntryFn: "crate::main", Externs: []string{"util"}},
	}

	require.NoError(t, New().Link(context.Background(), sess, results, outputs))

	exe, err := os.ReadFile(filepath.Join(dir, "demo"))
	require.NoError(t, err)
	assert.Equal(t, "#!textgen exe\n# crate demo\n# entry crate::main\n# extern util\nfn main\n", string(exe))
	meta, err := os.ReadFile(filepath.Join(dir, "demo.rmeta"))
	require.NoError(t, err)
	assert.Equal(t, "meta", string(meta))
	assert.NoFileExists(t, obj, "temporary objects are removed after linking")
}

func TestLink_MissingObjectIsFatal(t *testing.T) {
	dir := t.TempDir()
	opts := session.Options{OutDir: dir}
	sess := session.New(opts, slog.New(slog.DiscardHandler))
	results := &codegen.Results{Modules: []codegen.CompiledModule{{Name: "x", Object: filepath.Join(dir, "absent.o")}}}

	err := New().Link(context.Background(), sess, results, session.BuildOutputFilenames(&opts, "demo"))
	assert.ErrorContains(t, err, filepath.Join(dir, "demo"))
	assert.Equal(t, 1, sess.Diag.ErrorCount())
}
