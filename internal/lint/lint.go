// Package lint holds the lint store: the set of lints and lint groups known
// to a compilation, populated once during plugin registration.
package lint

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Level is the default reporting level of a lint.
type Level int

const (
	Allow Level = iota
	Warn
	Deny
)

func (l Level) String() string {
	switch l {
	case Allow:
		return "allow"
	case Warn:
		return "warn"
	case Deny:
		return "deny"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel parses the name of a level attribute (`allow`, `warn`, `deny`).
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "allow":
		return Allow, true
	case "warn":
		return Warn, true
	case "deny":
		return Deny, true
	}
	return 0, false
}

// Lint describes one lint.
type Lint struct {
	Name    string
	Default Level
	Desc    string
}

// Builtin lints.
var (
	UnusedAttributes = &Lint{Name: "unused_attributes", Default: Warn, Desc: "detects attributes that were not used by the compiler"}
	UnknownLints     = &Lint{Name: "unknown_lints", Default: Warn, Desc: "unrecognized lint attribute"}
	DeadCode         = &Lint{Name: "dead_code", Default: Warn, Desc: "detect unused, unexported items"}
	UnusedExterns    = &Lint{Name: "unused_extern_crates", Default: Allow, Desc: "extern crates that are never used"}
)

// Store is the registry of lints and lint groups.
type Store struct {
	mu     sync.RWMutex
	lints  map[string]*Lint
	order  []string
	groups map[string][]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		lints:  make(map[string]*Lint),
		groups: make(map[string][]string),
	}
}

// RegisterBuiltins registers the lints every compilation knows about.
func (s *Store) RegisterBuiltins() {
	s.RegisterLints(UnusedAttributes, UnknownLints, DeadCode, UnusedExterns)
	s.RegisterGroup("unused", UnusedAttributes.Name, DeadCode.Name, UnusedExterns.Name)
}

// RegisterLints adds lints to the store. Registering a name twice panics.
func (s *Store) RegisterLints(lints ...*Lint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lints {
		if _, exists := s.lints[l.Name]; exists {
			panic(fmt.Sprintf("lint '%s' already registered", l.Name))
		}
		slog.Debug("Registering lint.", "name", l.Name, "default", l.Default)
		s.lints[l.Name] = l
		s.order = append(s.order, l.Name)
	}
}

// RegisterGroup registers a named group of lints. Members must already be
// registered and the group name must not clash with a lint.
func (s *Store) RegisterGroup(name string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[name]; exists {
		panic(fmt.Sprintf("lint group '%s' already registered", name))
	}
	if _, exists := s.lints[name]; exists {
		panic(fmt.Sprintf("lint group '%s' clashes with a lint", name))
	}
	for _, m := range members {
		if _, ok := s.lints[m]; !ok {
			panic(fmt.Sprintf("lint group '%s' references unknown lint '%s'", name, m))
		}
	}
	s.groups[name] = slices.Clone(members)
}

// Lookup returns the lint named name.
func (s *Store) Lookup(name string) (*Lint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lints[name]
	return l, ok
}

// Expand resolves name to the lints it designates: itself for a lint, its
// members for a group. ok is false for unknown names.
func (s *Store) Expand(name string) (names []string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, isLint := s.lints[name]; isLint {
		return []string{name}, true
	}
	members, isGroup := s.groups[name]
	return slices.Clone(members), isGroup
}

// Lints returns all registered lints in registration order.
func (s *Store) Lints() []*Lint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Lint, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.lints[name])
	}
	return out
}
