// Package diag records the diagnostics emitted during a compilation session.
//
// Diagnostics are modelled as hcl.Diagnostic values so that source ranges
// produced by the frontend flow through unchanged. Rendering is out of
// scope: the Handler stores diagnostics and writes one structured log line
// per diagnostic.
package diag

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
)

// ErrReported marks an error whose diagnostic has already been emitted
// through a Handler. Callers surface it without reporting again.
var ErrReported = errors.New("error already reported")

// FatalError is returned by Handler.Fatal. It aborts the current stage.
type FatalError struct {
	Summary string
}

func (e *FatalError) Error() string { return "fatal: " + e.Summary }

// Unwrap lets errors.Is(err, ErrReported) match fatal errors.
func (e *FatalError) Unwrap() error { return ErrReported }

// CompileError reports that analysis emitted error diagnostics.
type CompileError struct {
	Errors int
}

func (e *CompileError) Error() string {
	if e.Errors == 1 {
		return "aborting due to 1 previous error"
	}
	return fmt.Sprintf("aborting due to %d previous errors", e.Errors)
}

func (e *CompileError) Unwrap() error { return ErrReported }

// Handler collects diagnostics for one session. It is safe for concurrent use.
type Handler struct {
	mu       sync.Mutex
	logger   *slog.Logger
	diags    hcl.Diagnostics
	errors   int
	warnings int
	delayed  []*hcl.Diagnostic
}

// NewHandler creates a handler that logs every diagnostic through logger.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// Emit records a diagnostic.
func (h *Handler) Emit(d *hcl.Diagnostic) {
	h.mu.Lock()
	h.diags = append(h.diags, d)
	switch d.Severity {
	case hcl.DiagError:
		h.errors++
	case hcl.DiagWarning:
		h.warnings++
	}
	h.mu.Unlock()

	attrs := []any{"summary", d.Summary}
	if d.Detail != "" {
		attrs = append(attrs, "detail", d.Detail)
	}
	if d.Subject != nil {
		attrs = append(attrs, "range", d.Subject.String())
	}
	if d.Severity == hcl.DiagError {
		h.logger.Error("Diagnostic emitted.", attrs...)
	} else {
		h.logger.Warn("Diagnostic emitted.", attrs...)
	}
}

// EmitAll records every diagnostic in diags. It returns ErrReported when at
// least one of them is an error.
func (h *Handler) EmitAll(diags hcl.Diagnostics) error {
	for _, d := range diags {
		h.Emit(d)
	}
	if diags.HasErrors() {
		return ErrReported
	}
	return nil
}

// Error emits an error diagnostic and returns ErrReported.
func (h *Handler) Error(summary, detail string, subject *hcl.Range) error {
	h.Emit(&hcl.Diagnostic{Severity: hcl.DiagError, Summary: summary, Detail: detail, Subject: subject})
	return ErrReported
}

// Warn emits a warning diagnostic.
func (h *Handler) Warn(summary, detail string, subject *hcl.Range) {
	h.Emit(&hcl.Diagnostic{Severity: hcl.DiagWarning, Summary: summary, Detail: detail, Subject: subject})
}

// Fatal emits an error diagnostic and returns a *FatalError for the caller
// to propagate.
func (h *Handler) Fatal(summary string, subject *hcl.Range) error {
	h.Emit(&hcl.Diagnostic{Severity: hcl.DiagError, Summary: summary, Subject: subject})
	return &FatalError{Summary: summary}
}

// DelayBug records an internal error that only becomes visible if no other
// error is reported before FlushDelayed.
func (h *Handler) DelayBug(summary string, subject *hcl.Range) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delayed = append(h.delayed, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "internal compiler error: " + summary,
		Subject:  subject,
	})
	h.logger.Debug("Delayed bug recorded.", "summary", summary)
}

// FlushDelayed turns pending delayed bugs into errors. When real errors
// were already reported the delayed bugs are discarded, since they are
// most likely a consequence of those errors.
func (h *Handler) FlushDelayed() error {
	h.mu.Lock()
	delayed := h.delayed
	h.delayed = nil
	hasErrors := h.errors > 0
	h.mu.Unlock()

	if len(delayed) == 0 || hasErrors {
		return nil
	}
	summaries := make([]string, 0, len(delayed))
	for _, d := range delayed {
		h.Emit(d)
		summaries = append(summaries, d.Summary)
	}
	return &FatalError{Summary: strings.Join(summaries, "; ")}
}

// ErrorCount returns the number of error diagnostics emitted so far.
func (h *Handler) ErrorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errors
}

// WarningCount returns the number of warnings emitted so far.
func (h *Handler) WarningCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.warnings
}

// DelayedCount returns the number of pending delayed bugs.
func (h *Handler) DelayedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.delayed)
}

// Diagnostics returns a snapshot of everything emitted so far.
func (h *Handler) Diagnostics() hcl.Diagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(hcl.Diagnostics, len(h.diags))
	copy(out, h.diags)
	return out
}
