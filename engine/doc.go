// Package engine wraps wazero to compile and instantiate the guest core
// WebAssembly modules that back Lunatic processes.
//
// # Architecture
//
//	Engine - owns a wazero runtime and compiles/instantiates guest bytecode
//
// Engine performs no bytecode rewriting itself; callers pass bytecode that
// has already gone through package normalise (reduction-counter injection).
// It also performs no capability checks: a guest's imports resolve against
// the host modules already instantiated in the same wazero runtime, which
// package hostabi's Bind creates from the host function registry in
// package linker for the namespaces a process's capability set names. An
// import no instantiated host module satisfies surfaces as a normal wazero
// instantiation error, which the runtime reports as a ModuleError with
// Kind ModuleInstantiationFailed.
//
// # WASI
//
// InstantiateWASI wires wazero's built-in wasi_snapshot_preview1
// implementation into a runtime; Engine.EnsureWASI calls it once per Engine,
// when the first process whose capability set includes
// "wasi_snapshot_preview1" is spawned, and later processes share that
// instance. Lunatic does not implement WASI itself; it delegates entirely to
// wazero's implementation.
//
// # Threads
//
// Config.EnableThreads turns on the WebAssembly threads proposal (shared
// memory, atomics) for guest code. This is independent of the scheduler's
// own concurrency: a single guest instance still runs on one goroutine at a
// time, cooperatively yielding at reduction-counter checkpoints.
package engine
