package node

import (
	"context"

	"github.com/lunatic-solutions/lunatic-go/mailbox"
)

// RemoteProcess is a process reference that lives on a peer node: sending
// to it serialises the signal and forwards it over the owning RemoteNode's
// stream instead of pushing directly into a local mailbox, per spec 4.G.
type RemoteProcess struct {
	remote *RemoteNode
	pid    uint64
}

// NewRemoteProcess wraps pid, a process id on the peer rn is connected to.
func NewRemoteProcess(rn *RemoteNode, pid uint64) *RemoteProcess {
	return &RemoteProcess{remote: rn, pid: pid}
}

// ID returns the remote process's id, scoped to its owning node.
func (rp *RemoteProcess) ID() uint64 { return rp.pid }

// Send forwards sig to the remote process. Errors are logged and
// swallowed rather than propagated to the caller: spec 3's send contract
// is "silent drop if target terminated", and a disconnected peer is
// observationally the same as a terminated target from the sender's
// point of view.
func (rp *RemoteProcess) Send(sig mailbox.Signal) {
	env := Envelope{TargetPID: rp.pid, Signal: sig}
	if err := rp.remote.Send(context.Background(), env); err != nil {
		Logger().Sugar().Debugw("node: best-effort send to remote process failed", "pid", rp.pid, "peer", rp.remote.PeerID(), "error", err)
	}
}

// LocalSink is the minimal surface a local process exposes to receive a
// signal forwarded from a remote node.
type LocalSink interface {
	Send(sig mailbox.Signal)
}

// LookupFunc resolves a local process id to its sink. A caller wires this
// to environment.Environment.Lookup with a small adapter closure, since
// node does not import environment (process.Environment already
// establishes that dependency points the other way).
type LookupFunc func(id uint64) (LocalSink, bool)

// Route delivers env to the local process it targets, looked up via
// lookup, and is the callback wired into New's onRecv parameter.
func Route(lookup LookupFunc, env Envelope) {
	p, ok := lookup(env.TargetPID)
	if !ok {
		Logger().Sugar().Debugw("node: dropping envelope for unknown local process", "pid", env.TargetPID)
		return
	}
	p.Send(env.Signal)
}
