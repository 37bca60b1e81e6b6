// Package incremental implements the on-disk side of incremental
// compilation: the session directory lifecycle, the dependency graph and
// work-product index persisted between sessions, and the background load
// of the previous session's data.
//
// A crate's cache lives under `<incremental>/<crate>-<stable id>/`. Each
// compilation works in a fresh `s-<uuid>-working` directory seeded with the
// files of the newest finalized session. On success the directory is
// renamed to `s-<uuid>-<svh>` and older finalized sessions are pruned; on
// failure it is deleted.
package incremental
