// Package gcx implements the global context of a compilation: the one
// long-lived object, created once per session, through which analysis and
// codegen reach every piece of crate-wide state.
//
// A Context is published exactly once by the pipeline driver and then
// entered any number of times with Enter. Inputs that only exist once it is
// built (crate name, resolver input, metadata loader, features) are fed to
// it right after creation; everything else is computed on demand by
// memoized queries.
package gcx
