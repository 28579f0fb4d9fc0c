// Package process implements the Process type: one guest Wasm instance,
// one mailbox, one resource table, one capability set, representing a
// single in-flight computation in the style of a BEAM process.
package process

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
	"github.com/lunatic-solutions/lunatic-go/mailbox"
	"github.com/lunatic-solutions/lunatic-go/resource"
)

// State is a process's lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateNormalExit
	StateTrapped
	StateKilled
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateNormalExit:
		return "normal"
	case StateTrapped:
		return "trapped"
	case StateKilled:
		return "killed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Environment is the subset of environment.Environment a Process needs to
// look up peers and remove itself on termination. Defined here rather than
// imported from package environment to keep the dependency one-directional
// (environment depends on process, not the reverse).
type Environment interface {
	Lookup(id uint64) (*Process, bool)
	Deregister(id uint64)
}

// Process owns one guest instance's mailbox, resource table and capability
// set. The guest instance itself (a wazero api.Module) is held by the
// runtime's scheduler task, not by Process; Process only holds the parts of
// spec 3's data model that outlive any one execution slice.
type Process struct {
	id    uint64
	env   Environment
	mbox  *mailbox.Mailbox
	table *resource.ProcessTable

	capabilities map[string]struct{}

	linksMu sync.Mutex
	links   map[uint64]struct{}

	monitorsMu sync.Mutex
	monitors   map[uint64]struct{} // processes monitoring this one

	trapExit atomic.Bool
	state    atomic.Int32
	reason   atomic.Pointer[mailbox.Reason]

	reductions atomic.Uint64

	done chan struct{}
}

// Options configures a new Process's capability set.
type Options struct {
	Capabilities []string
}

// New creates a Running process with the given id, owned by env.
func New(id uint64, env Environment, opts Options) *Process {
	caps := make(map[string]struct{}, len(opts.Capabilities))
	for _, c := range opts.Capabilities {
		caps[c] = struct{}{}
	}
	p := &Process{
		id:           id,
		env:          env,
		mbox:         mailbox.New(),
		table:        resource.NewProcessTable(),
		capabilities: caps,
		links:        make(map[uint64]struct{}),
		monitors:     make(map[uint64]struct{}),
		done:         make(chan struct{}),
	}
	p.state.Store(int32(StateRunning))
	return p
}

// ID returns the process's unique id.
func (p *Process) ID() uint64 { return p.id }

// Mailbox returns the process's signal queue.
func (p *Process) Mailbox() *mailbox.Mailbox { return p.mbox }

// Resources returns the process's resource handle table.
func (p *Process) Resources() *resource.ProcessTable { return p.table }

// HasCapability reports whether the process's capability set includes ns.
func (p *Process) HasCapability(ns string) bool {
	_, ok := p.capabilities[ns]
	return ok
}

// Capabilities returns the set of namespaces this process may import from,
// used when building its instantiation import list.
func (p *Process) Capabilities() []string {
	out := make([]string, 0, len(p.capabilities))
	for c := range p.capabilities {
		out = append(out, c)
	}
	return out
}

// State returns the process's current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// Reductions returns the number of yield_ checkpoints this process has
// crossed, exposed for the CLI monitor and fairness tests.
func (p *Process) Reductions() uint64 {
	return p.reductions.Load()
}

// RecordYield increments the reduction counter. Called by the yield_ host
// function (package hostabi) each time the guest's injected yield_ import
// fires.
func (p *Process) RecordYield() {
	p.reductions.Add(1)
}

// Done returns a channel closed once the process reaches a terminal state.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// TrapExit reports whether trap-exit is enabled.
func (p *Process) TrapExit() bool {
	return p.trapExit.Load()
}

// SetTrapExit enables or disables trap-exit: while enabled, incoming
// LinkDied signals are delivered as ordinary Messages on the reserved
// TrapExitTag instead of terminating this process.
func (p *Process) SetTrapExit(enabled bool) {
	p.trapExit.Store(enabled)
}

// TrapExitTag is the reserved Message tag LinkDied/MonitorDied notifications
// are converted to when trap-exit is enabled. It sits at the extreme end of
// the i64 tag space precisely so no application is likely to pick it for
// ordinary messages, and the send host function (hostabi.Host.send) refuses
// to deliver a guest-sent message carrying it, so a message observed with
// this tag is always a runtime notification, never forgeable by guest code.
const TrapExitTag int64 = math.MinInt64

// Send delivers a signal to this process's mailbox. Sending to a
// terminated process is a silent no-op, matching spec 3's weak-reference
// send semantics.
func (p *Process) Send(sig mailbox.Signal) {
	if p.State() != StateRunning {
		return
	}
	p.mbox.Push(sig)
}

// Receive is the guest-facing receive() primitive: it waits for a Message
// matching tag (nil = any tag) or for a Kill signal, which always
// preempts. A Kill observed here immediately terminates the process and
// is reported to the caller as ProcessError{Killed} rather than handed to
// guest code.
func (p *Process) Receive(ctx context.Context, tag *int64, timeout time.Duration) (mailbox.Message, error) {
	match := func(s mailbox.Signal) bool {
		m, ok := s.(mailbox.Message)
		if !ok {
			return false
		}
		return tag == nil || m.Tag == *tag
	}

	sig, err := p.mbox.Pop(ctx, match, timeout)
	if err != nil {
		return mailbox.Message{}, err
	}

	if _, killed := sig.(mailbox.Kill); killed {
		p.Terminate(mailbox.Reason{Kind: "killed"})
		return mailbox.Message{}, lunaticerrors.NewProcessError(lunaticerrors.ProcessKilled, "", nil)
	}

	return sig.(mailbox.Message), nil
}

// ReceiveSkipSearch is the RPC fast path: see mailbox.PopSkipSearch.
func (p *Process) ReceiveSkipSearch(ctx context.Context, tag int64, timeout time.Duration) (mailbox.Message, error) {
	match := func(s mailbox.Signal) bool {
		m, ok := s.(mailbox.Message)
		return ok && m.Tag == tag
	}
	sig, err := p.mbox.PopSkipSearch(ctx, match, timeout)
	if err != nil {
		return mailbox.Message{}, err
	}
	if _, killed := sig.(mailbox.Kill); killed {
		p.Terminate(mailbox.Reason{Kind: "killed"})
		return mailbox.Message{}, lunaticerrors.NewProcessError(lunaticerrors.ProcessKilled, "", nil)
	}
	return sig.(mailbox.Message), nil
}
