package hostabi

import (
	"context"

	"github.com/lunatic-solutions/lunatic-go/linker"
	"github.com/lunatic-solutions/lunatic-go/process"
)

// WASINamespace is the capability string spec 6 names for WASI imports.
// Bind skips it: wasi_snapshot_preview1 is wazero's own built-in host
// module, instantiated once per Engine by engine.Engine.EnsureWASI rather
// than through the Linker's empty-builder path, since the real functions
// come from wazero's exporter, not from anything registered in l.
const WASINamespace = "wasi_snapshot_preview1"

// Bind instantiates, into l's wazero runtime, one host module per
// namespace in p's capability set. A guest module importing a function
// from a namespace p does not hold never finds that host module, and
// instantiation fails with a missing-import error from wazero itself —
// spec 4.B's capability gate falls out of this without the linker or
// engine needing to know about capabilities at all.
//
// Bind is idempotent per namespace: concurrent processes sharing l's
// runtime all resolve to the same host module instance the first Bind
// call for that namespace created. WASINamespace is skipped; callers
// wanting WASI bound call engine.Engine.EnsureWASI themselves.
func Bind(ctx context.Context, l *linker.Linker, p *process.Process) error {
	for _, ns := range p.Capabilities() {
		if ns == WASINamespace {
			continue
		}
		if _, err := l.NewHostModule(ns).Ensure(ctx); err != nil {
			return err
		}
	}
	return nil
}
