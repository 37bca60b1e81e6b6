package driver

import (
	"context"

	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/incremental"
)

// Run compiles the session's input with the default pipeline: parse, stop
// there if asked to, otherwise build the linker, leave the stage graph and
// link. Pending delayed bugs become a fatal error at the end. A failed run
// deletes its incremental session directory.
func Run(ctx context.Context, c *Compiler) error {
	logger := ctxlog.FromContext(ctx)
	var linker *Linker

	err := c.Enter(ctx, func(ctx context.Context, q *Queries) error {
		if _, err := q.Parse(ctx); err != nil {
			return err
		}
		if c.Sess.Opts.ParseOnly {
			logger.Debug("Stopping after parse.")
			return nil
		}
		l, err := q.Linker(ctx)
		if err != nil {
			return err
		}
		linker = l
		return nil
	})
	if err == nil && linker != nil {
		err = linker.Link(ctx)
	}

	if ferr := c.Sess.Diag.FlushDelayed(); err == nil {
		err = ferr
	}
	if err != nil {
		incremental.InvalidateSessionDir(ctx, c.Sess)
	}
	return err
}
