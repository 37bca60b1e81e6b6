package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cratedrive/internal/codegen/textgen"
	"github.com/vk/cratedrive/internal/diag"
	"github.com/vk/cratedrive/internal/session"
	"github.com/vk/cratedrive/internal/testutil"
)

const utilUnit = `
attr "crate_name" {
  value = "util"
}

fn "greet" {
  body = "print(\"hi\")"
}
`

const appUnit = `
attr "crate_name" {
  value = "app"
}
attr "cfg_attr" {
  args = ["debug", "feature(tracing)"]
}

extern "util" {}

static "greeting" {
  body = "\"hello\""
}

fn "main" {
  body = "greet(greeting)"
}
`

func runTextgen(t *testing.T, opts session.Options) (*session.Session, *testutil.SafeBuffer, error) {
	t.Helper()
	sess, logs := testutil.NewSession(t, opts)
	c := NewCompiler(sess, textgen.New(opts.OutDir))
	return sess, logs, Run(testutil.Context(sess), c)
}

func TestRun_TextgenEndToEnd(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	testutil.WriteFiles(t, src, map[string]string{"util.crate": utilUnit, "app.crate": appUnit})

	_, _, err := runTextgen(t, session.Options{
		Input:       filepath.Join(src, "util.crate"),
		OutDir:      out,
		OutputTypes: []session.OutputType{session.OutputMetadata, session.OutputDepInfo},
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "util.rmeta"))
	depInfo, err := os.ReadFile(filepath.Join(out, "util.d"))
	require.NoError(t, err)
	assert.Contains(t, string(depInfo), filepath.Join(src, "util.crate"))
	assert.NoFileExists(t, filepath.Join(out, "util.greet.o"), "temporary objects are removed")

	sess, _, err := runTextgen(t, session.Options{
		Input:  filepath.Join(src, "app.crate"),
		OutDir: out,
		Cfg:    map[string]string{"debug": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tracing"}, sess.Features())

	exe, err := os.ReadFile(filepath.Join(out, "app"))
	require.NoError(t, err)
	text := string(exe)
	assert.True(t, strings.HasPrefix(text, "#!textgen exe\n# crate app\n# entry crate::main\n# extern util\n"), text)
	assert.Contains(t, text, "fn main\n  greet(greeting)\n")
	assert.Contains(t, text, "static greeting\n")
}

func TestRun_TextgenMissingExternCrate(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	testutil.WriteFiles(t, src, map[string]string{"app.crate": appUnit})

	sess, _, err := runTextgen(t, session.Options{Input: filepath.Join(src, "app.crate"), OutDir: out})

	var compileErr *diag.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, 1, sess.Diag.ErrorCount())
	assert.NoFileExists(t, filepath.Join(out, "app"))
}

func TestRun_TextgenIncrementalReuse(t *testing.T) {
	src, out, incr := t.TempDir(), t.TempDir(), t.TempDir()
	testutil.WriteFiles(t, src, map[string]string{"util.crate": utilUnit})
	opts := session.Options{Input: filepath.Join(src, "util.crate"), OutDir: out, Incremental: incr, OutputTypes: []session.OutputType{session.OutputMetadata}}

	_, logs, err := runTextgen(t, opts)
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "Reusing codegen unit.")
	first, err := os.ReadFile(filepath.Join(out, "util.rmeta"))
	require.NoError(t, err)

	sess, logs, err := runTextgen(t, opts)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "Reusing codegen unit.")
	second, err := os.ReadFile(filepath.Join(out, "util.rmeta"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	dir, state := sess.IncrSession()
	assert.Equal(t, session.IncrFinalized, state)
	sessions, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "older sessions are pruned")
}

func TestRun_TextgenIncrementalObjectReuse(t *testing.T) {
	src, out, incr := t.TempDir(), t.TempDir(), t.TempDir()
	testutil.WriteFiles(t, src, map[string]string{"util.crate": utilUnit})
	opts := session.Options{Input: filepath.Join(src, "util.crate"), OutDir: out, Incremental: incr, OutputTypes: []session.OutputType{session.OutputObject}}
	want := "; textgen object util.greet\nfn greet\n  print(\"hi\")\n"

	_, _, err := runTextgen(t, opts)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(out, "util.o"))
	require.NoError(t, err)
	require.Equal(t, want, string(first))

	for i := 0; i < 2; i++ {
		sess, logs, err := runTextgen(t, opts)
		require.NoError(t, err)
		assert.Contains(t, logs.String(), "Reusing codegen unit.")
		got, err := os.ReadFile(filepath.Join(out, "util.o"))
		require.NoError(t, err)
		assert.Equal(t, want, string(got), "build %d", i+2)

		dir, _ := sess.IncrSession()
		index, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range index {
			info, err := e.Info()
			require.NoError(t, err)
			assert.Positive(t, info.Size(), "cached file %s must survive reuse", e.Name())
		}
	}
}

func TestRun_FailedIncrementalBuildLeavesNoSession(t *testing.T) {
	src, out, incr := t.TempDir(), t.TempDir(), t.TempDir()
	testutil.WriteFiles(t, src, map[string]string{"app.crate": appUnit})
	opts := session.Options{Input: filepath.Join(src, "app.crate"), OutDir: out, Incremental: incr}

	for i := 0; i < 3; i++ {
		sess, _, err := runTextgen(t, opts)
		require.ErrorIs(t, err, diag.ErrReported)
		_, state := sess.IncrSession()
		assert.Equal(t, session.IncrInvalid, state)
	}

	crates, err := os.ReadDir(incr)
	require.NoError(t, err)
	require.Len(t, crates, 1)
	sessions, err := os.ReadDir(filepath.Join(incr, crates[0].Name()))
	require.NoError(t, err)
	assert.Empty(t, sessions, "failed builds must not leave working directories")
}

func TestRun_TextgenParseError(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	testutil.WriteFiles(t, src, map[string]string{"bad.crate": `fn "main" {`})

	sess, _, err := runTextgen(t, session.Options{Input: filepath.Join(src, "bad.crate"), OutDir: out})

	require.ErrorIs(t, err, diag.ErrReported)
	assert.Positive(t, sess.Diag.ErrorCount())
	assert.Zero(t, sess.Prof.Count("serialize_dep_graph"))
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
