package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Builtins(t *testing.T) {
	s := NewStore()
	s.RegisterBuiltins()

	l, ok := s.Lookup("dead_code")
	require.True(t, ok)
	assert.Equal(t, Warn, l.Default)

	members, ok := s.Expand("unused")
	require.True(t, ok)
	assert.Equal(t, []string{"unused_attributes", "dead_code", "unused_extern_crates"}, members)

	single, ok := s.Expand("unknown_lints")
	require.True(t, ok)
	assert.Equal(t, []string{"unknown_lints"}, single)

	_, ok = s.Expand("nope")
	assert.False(t, ok)
	assert.Len(t, s.Lints(), 4)
}

func TestStore_DuplicatesPanic(t *testing.T) {
	s := NewStore()
	s.RegisterLints(DeadCode)
	assert.PanicsWithValue(t, "lint 'dead_code' already registered", func() {
		s.RegisterLints(&Lint{Name: "dead_code"})
	})
	assert.Panics(t, func() { s.RegisterGroup("dead_code") })
	assert.Panics(t, func() { s.RegisterGroup("g", "missing") })
}

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("deny")
	require.True(t, ok)
	assert.Equal(t, Deny, lvl)
	assert.Equal(t, "deny", lvl.String())
	_, ok = ParseLevel("forbid")
	assert.False(t, ok)
}
