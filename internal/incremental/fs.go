package incremental

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/fsutil"
	"github.com/vk/cratedrive/internal/session"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DepGraphFile holds the serialized dependency graph.
	DepGraphFile = "dep-graph.bin"
	// WorkProductsFile holds the work-product index.
	WorkProductsFile = "work-products.bin"

	sessionPrefix = "s-"
	workingSuffix = "-working"

	// formatVersion invalidates caches written by an incompatible driver.
	formatVersion = "cratedrive-incr-1"
)

var errVersionMismatch = errors.New("incremental cache written by a different version")

// CrateDir returns the directory holding every session of the crate.
func CrateDir(sess *session.Session, crateName string) string {
	return filepath.Join(sess.Opts.Incremental, fmt.Sprintf("%s-%016x", crateName, sess.LocalStableCrateID()))
}

// PrepareSessionDir creates the working directory for this compilation
// and seeds it with the files of the newest finalized session. It does
// nothing when incremental compilation is disabled.
func PrepareSessionDir(ctx context.Context, sess *session.Session, crateName string) error {
	if !sess.Opts.BuildDepGraph() {
		return nil
	}
	logger := ctxlog.FromContext(ctx)
	crateDir := CrateDir(sess, crateName)
	if err := os.MkdirAll(crateDir, 0o755); err != nil {
		return sess.Diag.Error("Could not create incremental compilation crate directory", err.Error(), nil)
	}

	source, err := newestFinalized(crateDir)
	if err != nil {
		return sess.Diag.Error("Could not read incremental compilation crate directory", err.Error(), nil)
	}

	dir := filepath.Join(crateDir, sessionPrefix+uuid.Must(uuid.NewV7()).String()+workingSuffix)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return sess.Diag.Error("Could not create incremental compilation session directory", err.Error(), nil)
	}

	if source != "" {
		if err := fsutil.LinkOrCopyDir(source, dir); err != nil {
			// Start over from an empty session rather than a partial copy.
			logger.Warn("Could not seed incremental session from previous one.", "source", source, "error", err)
			if err := os.RemoveAll(dir); err != nil {
				return sess.Diag.Error("Could not reset incremental compilation session directory", err.Error(), nil)
			}
			if err := os.Mkdir(dir, 0o755); err != nil {
				return sess.Diag.Error("Could not create incremental compilation session directory", err.Error(), nil)
			}
		}
	}

	sess.SetIncrSession(dir)
	logger.Debug("Incremental session directory prepared.", "dir", dir, "source", source)
	return nil
}

// FinalizeSessionDir publishes the working directory for the next
// compilation. When errors were reported the directory is deleted instead.
func FinalizeSessionDir(ctx context.Context, sess *session.Session, svh *Svh) {
	dir, state := sess.IncrSession()
	if !sess.Opts.BuildDepGraph() || state != session.IncrActive {
		return
	}
	logger := ctxlog.FromContext(ctx)

	if sess.Diag.ErrorCount() > 0 || sess.Diag.DelayedCount() > 0 {
		InvalidateSessionDir(ctx, sess)
		return
	}

	tag := "0"
	if svh != nil {
		tag = svh.String()
	}
	final := strings.TrimSuffix(dir, workingSuffix) + "-" + tag
	if err := os.Rename(dir, final); err != nil {
		sess.Diag.Warn("Error finalizing incremental compilation session directory", err.Error(), nil)
		sess.MarkIncrSession(dir, session.IncrInvalid)
		return
	}
	sess.MarkIncrSession(final, session.IncrFinalized)
	logger.Debug("Incremental session finalized.", "dir", final)

	pruneFinalized(ctx, filepath.Dir(final), filepath.Base(final))
}

// InvalidateSessionDir deletes a session directory that is still being
// worked on, so a failed compilation leaves nothing behind for the next
// one. Finalized or missing sessions are left alone.
func InvalidateSessionDir(ctx context.Context, sess *session.Session) {
	dir, state := sess.IncrSession()
	if state != session.IncrActive {
		return
	}
	logger := ctxlog.FromContext(ctx)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("Could not delete invalid incremental session directory.", "dir", dir, "error", err)
	}
	sess.MarkIncrSession(dir, session.IncrInvalid)
	logger.Debug("Incremental session invalidated.", "dir", dir)
}

// finalizedSessions lists the finalized session directories in crateDir,
// oldest first. Session ids are time-ordered UUIDs, so name order is
// creation order.
func finalizedSessions(crateDir string) ([]string, error) {
	entries, err := os.ReadDir(crateDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, sessionPrefix) || strings.HasSuffix(name, workingSuffix) {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

func newestFinalized(crateDir string) (string, error) {
	names, err := finalizedSessions(crateDir)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return filepath.Join(crateDir, names[len(names)-1]), nil
}

func pruneFinalized(ctx context.Context, crateDir, keep string) {
	logger := ctxlog.FromContext(ctx)
	names, err := finalizedSessions(crateDir)
	if err != nil {
		logger.Warn("Could not list incremental sessions for pruning.", "dir", crateDir, "error", err)
		return
	}
	for _, name := range names {
		if name == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(crateDir, name)); err != nil {
			logger.Warn("Could not prune incremental session.", "session", name, "error", err)
			continue
		}
		logger.Debug("Pruned incremental session.", "session", name)
	}
}

type envelope struct {
	Version string             `msgpack:"version"`
	Data    msgpack.RawMessage `msgpack:"data"`
}

// writeEncoded writes v to path via a temporary file in the same
// directory, so readers never see a partial file.
func writeEncoded(path string, v any) error {
	buf, err := encodeEnvelope(formatVersion, v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeEnvelope(version string, v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&envelope{Version: version, Data: data})
}

func readEncoded(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var env envelope
	if err := msgpack.Unmarshal(buf, &env); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if env.Version != formatVersion {
		return fmt.Errorf("%s: %w (%q)", filepath.Base(path), errVersionMismatch, env.Version)
	}
	if err := msgpack.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
