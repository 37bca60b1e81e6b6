package incremental

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/vk/cratedrive/internal/ctxlog"
	"github.com/vk/cratedrive/internal/fsutil"
	"github.com/vk/cratedrive/internal/session"
)

// WorkProductID names a work product; it is the codegen unit name.
type WorkProductID string

// WorkProduct is a set of files a codegen unit left in the session
// directory, keyed by extension.
type WorkProduct struct {
	CguName    string            `msgpack:"cgu_name"`
	SavedFiles map[string]string `msgpack:"saved_files"`
}

// WorkProductMap indexes the work products of a session.
type WorkProductMap map[WorkProductID]WorkProduct

// WorkProductPath returns the absolute path of a file saved in the active
// session directory.
func WorkProductPath(sess *session.Session, filename string) string {
	dir, _ := sess.IncrSession()
	return filepath.Join(dir, filename)
}

// CopyCguWorkProduct saves the files of a freshly compiled codegen unit
// into the session directory. ok is false when incremental compilation is
// off or a copy failed; failures are reported as warnings.
func CopyCguWorkProduct(sess *session.Session, cguName string, files map[string]string) (id WorkProductID, wp WorkProduct, ok bool) {
	dir, state := sess.IncrSession()
	if state != session.IncrActive {
		return "", WorkProduct{}, false
	}
	wp = WorkProduct{CguName: cguName, SavedFiles: make(map[string]string, len(files))}
	for _, ext := range slices.Sorted(maps.Keys(files)) {
		name := cguName + "." + ext
		if err := fsutil.LinkOrCopy(files[ext], filepath.Join(dir, name)); err != nil {
			sess.Diag.Warn("Error copying object file to incremental directory", err.Error(), nil)
			return "", WorkProduct{}, false
		}
		wp.SavedFiles[ext] = name
	}
	return WorkProductID(cguName), wp, true
}

// SaveWorkProductIndex writes the index of this session's work products
// and deletes the files of previous work products that were not kept.
func SaveWorkProductIndex(ctx context.Context, sess *session.Session, g *DepGraph, products WorkProductMap) error {
	dir, state := sess.IncrSession()
	if !g.IsFullyEnabled() || state != session.IncrActive {
		return nil
	}
	logger := ctxlog.FromContext(ctx)

	for id, prev := range g.PreviousWorkProducts() {
		cur, kept := products[id]
		for ext, name := range prev.SavedFiles {
			if kept && cur.SavedFiles[ext] == name {
				continue
			}
			err := os.Remove(filepath.Join(dir, name))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("Could not delete stale work product file.", "file", name, "error", err)
			}
		}
	}

	if products == nil {
		products = WorkProductMap{}
	}
	if err := writeEncoded(filepath.Join(dir, WorkProductsFile), products); err != nil {
		return sess.Diag.Error("Could not save work-product index", err.Error(), nil)
	}
	logger.Debug("Work-product index saved.", "count", len(products))
	return nil
}
