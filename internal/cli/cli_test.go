package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cratedrive/internal/session"
)

func TestParse_Flags(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{
		"--crate-name", "app",
		"--emit", "exe,metadata",
		"--out-dir", "build",
		"--incremental", "build/incr",
		"--crate-attr", "feature(tracing)",
		"--cfg", "debug",
		"--cfg", `target="x86"`,
		"-L", "deps",
		"--codegen-workers", "2",
		"--log-level", "DEBUG",
		"main.crate",
	}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)

	want := session.Options{
		Input:          "main.crate",
		CrateName:      "app",
		OutputTypes:    []session.OutputType{session.OutputExe, session.OutputMetadata},
		OutDir:         "build",
		Incremental:    "build/incr",
		CrateAttrs:     []string{"feature(tracing)"},
		Cfg:            map[string]string{"debug": "", "target": "x86"},
		CodegenWorkers: 2,
	}
	assert.Equal(t, want, cfg.Options)
	assert.Equal(t, []string{"deps"}, cfg.SearchPaths)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestParse_UnsetFlagsStayZero(t *testing.T) {
	t.Parallel()

	cfg, _, err := Parse([]string{"--config", "crate.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, session.Options{}, cfg.Options, "options left unset must not override config files")
	assert.Equal(t, []string{"crate.hcl"}, cfg.ConfigPaths)
}

func TestParse_ShouldExit(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{"-h"}, {}} {
		out := &bytes.Buffer{}
		cfg, shouldExit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"--not-a-flag", "a.crate"}, "unknown flag: --not-a-flag"},
		{"too many inputs", []string{"a.crate", "b.crate"}, "accepts at most 1 arg(s)"},
		{"bad emit", []string{"--emit", "wasm", "a.crate"}, `unknown output type "wasm"`},
		{"bad cfg", []string{"--cfg", "=x", "a.crate"}, "missing name"},
		{"bad log format", []string{"--log-format", "xml", "a.crate"}, "invalid log-format"},
		{"bad log level", []string{"--log-level", "trace", "a.crate"}, "invalid log-level"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := NewLogger("warn", "json", buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
