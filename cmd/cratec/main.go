package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/cratedrive/internal/cli"
	"github.com/vk/cratedrive/internal/codegen/textgen"
	"github.com/vk/cratedrive/internal/config"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/diag"
	"github.com/vk/cratedrive/internal/driver"
	"github.com/vk/cratedrive/internal/session"
)

// main is the entrypoint for the cratec compiler driver.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Usage goes to outW, logs and diagnostics to logW.
func run(ctx context.Context, outW, logW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := cli.NewLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	fileOpts, err := config.NewLoader().Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error(), Err: err}
	}
	opts := config.Merge(fileOpts, &cfg.Options)
	if err := config.Validate(opts); err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error(), Err: err}
	}

	sess := session.New(*opts, logger)
	compiler := driver.NewCompiler(sess, textgen.New(cfg.SearchPaths...))
	return exitError(driver.Run(ctx, compiler))
}

// exitError maps a compilation failure to the process exit code. Errors
// that were reported as diagnostics exit with 1; anything else escaped the
// diagnostic machinery and is treated as an internal error.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var fatal *diag.FatalError
	switch {
	case errors.As(err, &fatal):
		return &cli.ExitError{Code: 1, Message: "error: " + fatal.Summary, Err: err}
	case err == diag.ErrReported:
		return &cli.ExitError{Code: 1, Message: "error: aborting due to previous errors", Err: err}
	case errors.Is(err, diag.ErrReported):
		return &cli.ExitError{Code: 1, Message: "error: " + err.Error(), Err: err}
	default:
		return &cli.ExitError{Code: 101, Message: "internal compiler error: " + err.Error(), Err: err}
	}
}
