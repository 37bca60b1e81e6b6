package frontend

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cratedrive/internal/ast"
	"github.com/vk/cratedrive/internal/diag"
	"github.com/vk/cratedrive/internal/session"
)

const demoUnit = `
attr "crate_name" {
  value = "demo"
}
attr "feature" {
  args = ["labels"]
}

static "greeting" {
  body = "\"hello\""
}

fn "main" {
  attr "driver_error" {}
  body = "print(greeting)"
}
`

func newSession() *session.Session {
	return session.New(session.Options{}, slog.New(slog.DiscardHandler))
}

func TestParseSource(t *testing.T) {
	sess := newSession()
	tree, err := ParseSource(context.Background(), sess, "demo.crate", []byte(demoUnit))
	require.NoError(t, err)

	require.Len(t, tree.Attrs, 2)
	name, ok := tree.Attrs[0].ValueString()
	require.True(t, ok)
	assert.Equal(t, "demo", name)
	assert.Equal(t, []string{"labels"}, tree.Attrs[1].Args)

	require.Len(t, tree.Items, 2)
	assert.Equal(t, ast.ItemStatic, tree.Items[0].Kind)
	assert.Equal(t, "greeting", tree.Items[0].Name)
	assert.Equal(t, ast.ItemFn, tree.Items[1].Kind)
	assert.Equal(t, "print(greeting)", tree.Items[1].Body)
	require.Len(t, tree.Items[1].Attrs, 1)
	assert.True(t, tree.Items[1].Attrs[0].IsWord())

	assert.Equal(t, "demo.crate", tree.Span.Filename)
}

func TestParseSource_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{name: "syntax", src: `fn "main" {`},
		{name: "unknown block", src: `struct "point" {}`},
		{name: "duplicate item", src: "fn \"main\" {}\nstatic \"main\" {}"},
		{name: "args and value", src: `attr "x" {
  args  = ["a"]
  value = "b"
}`},
		{name: "non-string body", src: `fn "main" {
  body = [1]
}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sess := newSession()
			tree, err := ParseSource(context.Background(), sess, "bad.crate", []byte(tc.src))
			assert.Nil(t, tree)
			assert.True(t, errors.Is(err, diag.ErrReported))
			assert.Positive(t, sess.Diag.ErrorCount())
		})
	}
}

func TestParser_ReadsInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.crate")
	require.NoError(t, os.WriteFile(path, []byte(demoUnit), 0o644))

	sess := session.New(session.Options{Input: path}, slog.New(slog.DiscardHandler))
	tree, err := NewParser().Parse(context.Background(), sess)
	require.NoError(t, err)
	assert.Len(t, tree.Items, 2)
}

func TestParser_MissingInputIsFatal(t *testing.T) {
	sess := session.New(session.Options{Input: filepath.Join(t.TempDir(), "absent.crate")}, slog.New(slog.DiscardHandler))
	_, err := NewParser().Parse(context.Background(), sess)
	var fatal *diag.FatalError
	assert.ErrorAs(t, err, &fatal)
}
