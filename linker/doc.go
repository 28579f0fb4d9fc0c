// Package linker implements the host function registry described by the
// runtime's component design: a namespaced table of host functions that
// guest WASM instances import from.
//
// # Main Types
//
//   - Linker: owns a tree of Namespace nodes and binds them into wazero host
//     modules on demand
//   - Namespace: a versioned node holding function definitions and children,
//     resolved by path ("lunatic::message#send") with optional semver
//     compatibility matching
//   - FuncDef: a single host function's wazero signature and handler
//
// # Capability gating
//
// Linker itself holds every host function ever registered; it does not know
// about any one guest's permissions. A process's capability set (see
// package process) is applied by the caller before instantiation: only
// namespaces named in the capability set are bound into the instance's
// import list, so an attempt to import a function from a disallowed
// namespace surfaces as a normal wazero missing-import instantiation
// failure, which the runtime reports as a ModuleError of kind
// ModuleInstantiationFailed.
//
// # Example
//
//	l := linker.NewWithDefaults(runtime)
//	l.NewHostModule("lunatic::message").
//		Func("send", sendFn, params, results).
//		Build(ctx)
//	def := l.Resolve("lunatic::message#send")
package linker
