// Package errors provides structured error types for the Lunatic runtime.
//
// The general-purpose Error type (Phase + Kind + rich context) covers
// encode/decode/validation failures inside the module normaliser and
// linker. Use the Builder for those:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Detail("cannot convert string to integer").
//		Build()
//
// The runtime's own error taxonomy (spec section 7) lives alongside it as
// distinct types, one per subsystem: ModuleError, ProcessError,
// MailboxError, RegistryError, TransportError. Each carries a Kind enum
// specific to its subsystem plus whatever detail that subsystem needs
// (a trap reason, a peer address, a version string). Code() maps any of
// them to the syscall-style integer return code handed back to guest
// code across the host function ABI.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
