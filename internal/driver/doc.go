// Package driver sequences the stages of compiling one crate.
//
// Stages are computed on demand through Queries: requesting a stage
// computes its dependencies first, each stage runs at most once per
// Compiler.Enter, and a stage's output is moved into exactly one consumer.
// A failed stage caches its error, so every later request fails the same
// way without recomputing.
//
//	parse ─▶ pre_configure ─▶ crate_name ─▶ register_plugins ─┐
//	                                                          ▼
//	dep_graph_future ─▶ dep_graph ─────────────────────▶ global_ctxt ─▶ ongoing_codegen ─▶ linker
//
// Run drives the default pipeline used by the cratec command.
package driver
