// Package session holds the state shared by every stage of one compilation:
// its options, diagnostics, profiler and the small amount of mutable state
// stages publish for each other (features, stable crate id, incremental
// session directory).
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/vk/cratedrive/internal/diag"
	"github.com/vk/cratedrive/internal/profile"
)

// IncrState tracks the lifecycle of the incremental session directory.
type IncrState int

const (
	IncrNotInitialized IncrState = iota
	IncrActive
	IncrFinalized
	IncrInvalid
)

// Session is the per-compilation state handed to every stage.
type Session struct {
	Opts   Options
	Diag   *diag.Handler
	Prof   *profile.Profiler
	Logger *slog.Logger

	mu            sync.Mutex
	features      []string
	stableCrateID uint64
	hasStableID   bool
	incrDir       string
	incrState     IncrState
}

// New creates a session for opts that logs through logger.
func New(opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		Opts:   opts,
		Diag:   diag.NewHandler(logger),
		Prof:   profile.New(),
		Logger: logger,
	}
}

// CompileStatus returns a *diag.CompileError if any error diagnostic has
// been emitted.
func (s *Session) CompileStatus() error {
	if n := s.Diag.ErrorCount(); n > 0 {
		return &diag.CompileError{Errors: n}
	}
	return nil
}

// NeedsCrateHash reports whether the crate hash must be computed, which is
// only the case when incremental compilation is enabled.
func (s *Session) NeedsCrateHash() bool {
	return s.Opts.BuildDepGraph()
}

// Time runs fn as a profiled activity.
func (s *Session) Time(ctx context.Context, name string, fn func(ctx context.Context)) {
	s.Prof.Time(ctx, name, fn)
}

// InitFeatures records the enabled language features. It may only be called
// once per session.
func (s *Session) InitFeatures(features []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.features != nil {
		panic("session: features already initialized")
	}
	f := slices.Clone(features)
	slices.Sort(f)
	s.features = slices.Compact(f)
	if s.features == nil {
		s.features = []string{}
	}
}

// Features returns the enabled features, sorted.
func (s *Session) Features() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.features)
}

// SetLocalStableCrateID records the crate's stable id once the crate name
// is known.
func (s *Session) SetLocalStableCrateID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stableCrateID = id
	s.hasStableID = true
}

// LocalStableCrateID returns the id set by SetLocalStableCrateID.
func (s *Session) LocalStableCrateID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasStableID {
		panic("session: stable crate id requested before crate name was resolved")
	}
	return s.stableCrateID
}

// SetIncrSession records the active incremental session directory.
func (s *Session) SetIncrSession(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incrDir = dir
	s.incrState = IncrActive
}

// IncrSession returns the incremental session directory and its state.
func (s *Session) IncrSession() (string, IncrState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrDir, s.incrState
}

// MarkIncrSession moves the incremental session to state, optionally
// renaming its directory.
func (s *Session) MarkIncrSession(dir string, state IncrState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incrDir = dir
	s.incrState = state
}
