// Package hostabi binds the lunatic:: host-function namespace (spec 4.B
// and spec 6's Guest ABI) into a linker.Linker, and provides the calling
// convention a scheduler Task uses to make the running *process.Process
// and *scheduler.Yielder recoverable from within a host function: both
// are stashed on the context.Context passed into a guest export's Call,
// which wazero threads straight through to every api.GoModuleFunc it
// invokes.
//
// Functions defined here never panic on bad guest input; malformed
// arguments (an out-of-range memory offset, for example) are translated to
// syscall-style return codes via errors.Code: 0 for success, a positive
// per-category code for each error.
package hostabi
