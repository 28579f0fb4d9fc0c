// Package lunatic is a host runtime for executing WebAssembly modules as
// massively concurrent, preemptively scheduled, isolated processes that
// communicate exclusively by message passing, in the style of the
// Erlang/BEAM runtime.
//
// # Architecture Overview
//
// The runtime is organized into packages with distinct responsibilities:
//
//	lunatic/            Root package: shared Memory/Allocator interfaces
//	├── normalise/      Bytecode rewriting: reduction-counter injection,
//	│                   externref wrapping, heap-profiler hooks
//	├── linker/         Host Function Registry: namespaced function table
//	├── engine/         wazero integration: compile and instantiate guests
//	├── process/        Process lifecycle: spawn, link, monitor, kill
//	├── mailbox/        Signal queue and selective-receive mailbox
//	├── scheduler/      Slot-bounded, preemptive process scheduler (one
//	│                   shared semaphore; no per-worker queues or stealing)
//	├── environment/    Environment and semver-based name registry
//	├── node/           Distributed node transport (libp2p)
//	├── hostabi/        lunatic::* host function bindings wired to process
//	├── resource/       Per-process resource handle table
//	├── wasm/           Core WASM binary manipulation primitives
//	├── wat/            WAT text format to WASM binary compiler
//	├── errors/         Structured error types
//	└── cmd/lunatic/    Command-line entry point
//
// # Quick Start
//
//	rt := lunatic.New(ctx, lunatic.Config{Workers: runtime.NumCPU()})
//	defer rt.Close(ctx)
//	_, done, err := rt.RunModule(ctx, wasmBytes, "_start",
//	    []string{"lunatic", "wasi_snapshot_preview1"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := <-done; err != nil {
//	    log.Fatal(err)
//	}
//	rt.Shutdown()
//
// # Process Model
//
// Every process is a normalised WebAssembly instance running on its own
// goroutine, registered with a Scheduler that bounds how many processes run
// concurrently and preempts long-running loops at reduction-counter
// checkpoints injected by package normalise. Processes never share memory;
// all communication is by sending Signals (messages, links, monitors,
// kill) through a process's Mailbox.
//
// # Thread Safety
//
// Engine, Linker, Environment and Scheduler are safe for concurrent use.
// A Process's exported API is safe to call from other processes' goroutines;
// its own guest instance runs on exactly one goroutine at a time.
package lunatic
