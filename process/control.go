package process

import (
	"context"

	"github.com/lunatic-solutions/lunatic-go/mailbox"
)

// Link establishes a bidirectional link between p and other: each records
// the other's id and a Link signal is delivered to other's mailbox.
func (p *Process) Link(other *Process) {
	p.linksMu.Lock()
	p.links[other.id] = struct{}{}
	p.linksMu.Unlock()

	other.linksMu.Lock()
	other.links[p.id] = struct{}{}
	other.linksMu.Unlock()

	other.Send(mailbox.Link{From: p.id})
}

// Unlink removes a bidirectional link.
func (p *Process) Unlink(other *Process) {
	p.linksMu.Lock()
	delete(p.links, other.id)
	p.linksMu.Unlock()

	other.linksMu.Lock()
	delete(other.links, p.id)
	other.linksMu.Unlock()

	other.Send(mailbox.Unlink{From: p.id})
}

// AddMonitor registers watcher as a monitor of p; watcher receives
// MonitorDied when p terminates.
func (p *Process) AddMonitor(watcher *Process) {
	p.monitorsMu.Lock()
	p.monitors[watcher.id] = struct{}{}
	p.monitorsMu.Unlock()
	p.Send(mailbox.Monitor{From: watcher.id})
}

// Kill sends this process an un-maskable Kill signal.
func (p *Process) Kill() {
	p.Send(mailbox.Kill{})
}

// RunControlLoop consumes non-Message signals (Link, Unlink, Kill,
// LinkDied, Monitor, MonitorDied) for the lifetime of the process. It
// runs on its own goroutine, separate from the guest-execution goroutine
// that calls Receive for Messages: the two predicates are disjoint (one
// matches only Messages, this one matches everything else), so Mailbox's
// per-signal delivery to the first matching waiter never races between
// them, except for Kill, which either loop may observe first and both
// terminate the process identically.
func (p *Process) RunControlLoop(ctx context.Context) {
	match := func(s mailbox.Signal) bool {
		switch s.(type) {
		case mailbox.Message:
			return false
		default:
			return true
		}
	}

	for {
		if p.State() != StateRunning {
			return
		}
		sig, err := p.mbox.Pop(ctx, match, -1)
		if err != nil {
			return
		}
		if p.handleControlSignal(sig) {
			return
		}
	}
}

// handleControlSignal applies a single control signal and reports whether
// it terminated the process.
func (p *Process) handleControlSignal(sig mailbox.Signal) (terminated bool) {
	switch s := sig.(type) {
	case mailbox.Link:
		p.linksMu.Lock()
		p.links[s.From] = struct{}{}
		p.linksMu.Unlock()
		return false

	case mailbox.Unlink:
		p.linksMu.Lock()
		delete(p.links, s.From)
		p.linksMu.Unlock()
		return false

	case mailbox.Monitor:
		return false

	case mailbox.Kill:
		p.Terminate(mailbox.Reason{Kind: "killed"})
		return true

	case mailbox.LinkDied:
		if p.trapExit.Load() {
			p.mbox.Push(mailbox.Message{
				Tag:     TrapExitTag,
				Payload: encodeLinkDied(s),
			})
			return false
		}
		if s.Reason.Normal() {
			return false
		}
		p.Terminate(s.Reason)
		return true

	case mailbox.MonitorDied:
		p.mbox.Push(mailbox.Message{
			Tag:     TrapExitTag,
			Payload: encodeLinkDied(mailbox.LinkDied{From: s.From, Reason: s.Reason}),
		})
		return false
	}
	return false
}

// encodeLinkDied packs a LinkDied's fields into a Message payload for the
// trap-exit delivery path. Format: 8-byte little-endian sender id followed
// by the UTF-8 reason kind and message, colon-separated.
func encodeLinkDied(ld mailbox.LinkDied) []byte {
	idBytes := uint64ToLE(ld.From)
	body := ld.Reason.Kind + ":" + ld.Reason.Message
	return append(idBytes, body...)
}

func uint64ToLE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// Terminate transitions the process to a terminal state exactly once,
// dispatches LinkDied/MonitorDied to peers, releases its resource table,
// and removes it from its environment. Safe to call multiple times or
// concurrently; only the first call has effect.
func (p *Process) Terminate(reason mailbox.Reason) {
	var newState State
	switch {
	case reason.Kind == "killed":
		newState = StateKilled
	case reason.Kind == "cancelled":
		newState = StateCancelled
	case reason.Normal():
		newState = StateNormalExit
	default:
		newState = StateTrapped
	}

	if !p.state.CompareAndSwap(int32(StateRunning), int32(newState)) {
		return
	}
	p.reason.Store(&reason)

	p.linksMu.Lock()
	links := make([]uint64, 0, len(p.links))
	for id := range p.links {
		links = append(links, id)
	}
	p.linksMu.Unlock()

	for _, id := range links {
		if peer, ok := p.env.Lookup(id); ok {
			peer.Send(mailbox.LinkDied{From: p.id, Reason: reason})
		}
	}

	p.monitorsMu.Lock()
	watchers := make([]uint64, 0, len(p.monitors))
	for id := range p.monitors {
		watchers = append(watchers, id)
	}
	p.monitorsMu.Unlock()

	for _, id := range watchers {
		if peer, ok := p.env.Lookup(id); ok {
			peer.Send(mailbox.MonitorDied{From: p.id, Reason: reason})
		}
	}

	// Wake RunControlLoop out of its blocked Pop: Close does not wake
	// registered waiters, and this Terminate call may be reached by a path
	// other than a Kill signal (normal exit, trap), which the control loop
	// otherwise has no way to observe. Kill is delivered straight to any
	// waiter regardless of its match predicate (mailbox.go's Push), and
	// handleControlSignal's Kill case unconditionally reports termination,
	// so this is a safe, idempotent wakeup even when Terminate was already
	// reached through an explicit Kill.
	p.mbox.Push(mailbox.Kill{})

	p.table.Close()
	p.mbox.Close()
	p.env.Deregister(p.id)
	close(p.done)
}

// Reason returns the process's termination reason. Only meaningful once
// State() is no longer StateRunning.
func (p *Process) Reason() mailbox.Reason {
	if r := p.reason.Load(); r != nil {
		return *r
	}
	return mailbox.Reason{}
}
