// Package normalise rewrites guest Wasm bytecode before it reaches the
// engine: reduction-counter injection for preemption, externref plumbing for
// guests that pass resource handles as i32 slots, and optional heap-profiler
// hooks around the allocator exports. A module that has already been
// normalised with the same options is detected via a custom section marker
// and returned unchanged.
//
// # Reduction counting
//
// Every defined function gets a mutable i32 global and an injected sequence
// at its prologue, and at the top of every loop body, that increments the
// global and calls the imported lunatic::yield_ once it crosses
// Options.ReductionThreshold. Unlike the counting performed by walrus-based
// tooling, every loop carries its own injection independent of whether it
// contains local calls or nested loops — this trades a few redundant checks
// for a bound that is trivial to verify by inspection.
//
// # Ordering
//
// Normalise applies transformations in a fixed order: externref plumbing
// first, then heap profiler hooks, then reduction counting last, so the
// wrapper functions the first two passes append get the same reduction
// prologue as the guest's own functions. Each transformation that appends an imported function
// renumbers every existing function reference (call, ref.func, start,
// element segments, exports) that the new import shifts.
package normalise
