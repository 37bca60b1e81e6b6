package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/cratedrive/internal/session"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Unwrap returns the error that caused the exit, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// Config is everything the command line decided about one invocation.
type Config struct {
	// Options holds only the session options given as flags. They are
	// merged over the options read from ConfigPaths.
	Options     session.Options
	ConfigPaths []string
	SearchPaths []string
	LogFormat   string
	LogLevel    string
}

const longHelp = `cratedrive - drives a crate through parsing, analysis, codegen and linking.

INPUT is the path of the crate's root source file. Options may also be read
from .hcl configuration files; flags given on the command line win.`

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	slog.Debug("CLI parser started.")
	var (
		cfg         Config
		emit        []string
		cfgFlags    []string
		ran         bool
		crateName   string
		outDir      string
		outputFile  string
		incremental string
	)

	cmd := &cobra.Command{
		Use:           "cratec [flags] INPUT",
		Short:         "Compile a crate",
		Long:          longHelp,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ran = true
			if len(args) == 1 {
				cfg.Options.Input = args[0]
			}
			flags := cmd.Flags()
			if flags.Changed("crate-name") {
				cfg.Options.CrateName = crateName
			}
			if flags.Changed("out-dir") {
				cfg.Options.OutDir = outDir
			}
			if flags.Changed("output") {
				cfg.Options.OutputFile = outputFile
			}
			if flags.Changed("incremental") {
				cfg.Options.Incremental = incremental
			}
			return nil
		},
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	flags := cmd.Flags()
	flags.StringVar(&crateName, "crate-name", "", "Name of the crate being built.")
	flags.StringSliceVar(&emit, "emit", nil, "Comma separated output types: exe, metadata, obj, asm, dep-info.")
	flags.StringVar(&outDir, "out-dir", "", "Directory to write the output artifacts in.")
	flags.StringVarP(&outputFile, "output", "o", "", "Write the single requested artifact to this path.")
	flags.StringVar(&incremental, "incremental", "", "Directory for the incremental compilation cache.")
	flags.BoolVar(&cfg.Options.NoLink, "no-link", false, "Stop after codegen and save the results as an .rlink file.")
	flags.BoolVar(&cfg.Options.ParseOnly, "parse-only", false, "Stop after parsing the input.")
	flags.StringArrayVar(&cfg.Options.CrateAttrs, "crate-attr", nil, "Inject a crate attribute, e.g. 'feature(foo)'.")
	flags.StringArrayVar(&cfgFlags, "cfg", nil, "Activate a configuration predicate, 'name' or 'name=value'.")
	flags.IntVar(&cfg.Options.CodegenWorkers, "codegen-workers", 0, "Number of parallel codegen units. 0 uses every CPU.")
	flags.StringArrayVarP(&cfg.SearchPaths, "search-path", "L", nil, "Directory searched for extern crate metadata.")
	flags.StringArrayVar(&cfg.ConfigPaths, "config", nil, "Path to an .hcl configuration file or a directory of them.")
	flags.StringVar(&cfg.LogFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.StringVar(&cfg.LogLevel, "log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := cmd.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error(), Err: err}
	}
	if !ran {
		// --help was handled by cobra.
		return nil, true, nil
	}
	slog.Debug("Arguments parsed successfully.")

	if cfg.Options.Input == "" && len(cfg.ConfigPaths) == 0 {
		slog.Debug("No input provided, printing usage and exiting.")
		_ = cmd.Help()
		return nil, true, nil
	}

	for _, raw := range emit {
		t, err := session.ParseOutputType(raw)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: "invalid --emit: " + err.Error(), Err: err}
		}
		cfg.Options.OutputTypes = append(cfg.Options.OutputTypes, t)
	}

	for _, raw := range cfgFlags {
		key, value, _ := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid --cfg %q: missing name", raw)}
		}
		if cfg.Options.Cfg == nil {
			cfg.Options.Cfg = make(map[string]string)
		}
		cfg.Options.Cfg[key] = strings.Trim(strings.TrimSpace(value), `"`)
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	slog.Debug("CLI parser finished successfully.", "input", cfg.Options.Input)
	return &cfg, false, nil
}
