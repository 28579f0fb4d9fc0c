// Package resource implements the per-process resource handle table
// described by the runtime's concurrency model: an integer-indexed table
// mapping opaque handles to host-side values a guest instance cannot
// address directly (sockets, files, compiled modules, TLS streams).
//
// # Handle Table
//
// UnifiedTable maps integer handles to Go values:
//
//	table := resource.NewTable()
//	handle := table.Insert(typeID, myValue)
//	value, ok := table.Get(handle)
//	value, ok := table.Remove(handle) // drops it, calling Drop on a Dropper
//
// # Process Tables
//
// ProcessTable wraps UnifiedTable with the Kind taxonomy a process actually
// stores: TCP/UDP/TLS sockets, files, DNS iterators, timers and spawned
// module handles. A Message carrying resources calls Take on the sender's
// table and Insert on the receiver's, so a handle is never valid on two
// processes' tables at once.
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	table.Subscribe(observerFunc)
//
// # Memory Management
//
// Resources are not garbage collected. The owning process's table is
// closed on termination, calling Drop on every value that implements
// Dropper; a handle that outlives its process without being transferred
// into a message leaks until then.
package resource
