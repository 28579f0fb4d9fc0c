package hostabi

import (
	"context"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/lunatic-solutions/lunatic-go/environment"
	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
	"github.com/lunatic-solutions/lunatic-go/linker"
	"github.com/lunatic-solutions/lunatic-go/mailbox"
	"github.com/lunatic-solutions/lunatic-go/process"
	"github.com/lunatic-solutions/lunatic-go/resource"
)

// NamespaceCore is the wazero import module name guest code uses for the
// process/signal/mailbox/registry primitives, spec 4.C's Process Ops
// table and spec 6's "lunatic:: namespace" guest ABI.
const NamespaceCore = "lunatic"

// Spawner creates a new process from a module resource already held in
// the calling process's table, returning its id. Implemented by the
// orchestration layer that ties normalise+engine+scheduler together
// (spec's compiler-backend non-goal keeps that layer out of this
// package); Host.spawn is a no-op returning a LimitExceeded error when no
// Spawner is configured.
type Spawner interface {
	Spawn(ctx context.Context, caller *process.Process, module resource.Handle, entry string, bootstrap []byte, capabilities []string) (uint64, error)
}

// RemoteSink is the minimal surface a resolved remote target exposes to
// send, satisfied structurally by *node.RemoteProcess without hostabi
// importing node (node already sits above hostabi/environment in the
// dependency graph; see runtime.go's Host method).
type RemoteSink interface {
	Send(sig mailbox.Signal)
}

// RemoteResolver is the distributed half of spec 4.G's Node Transport:
// send's fallback path for a target this Environment doesn't own, and
// lookup's fallback for a name no local Registry entry satisfies. Host.Remote
// is nil until the CLI starts a node (spec 6's --node flag), so a
// single-node Runtime never pays for or depends on the node package.
type RemoteResolver interface {
	// ResolveRemote maps a node-qualified pid (one produced by a prior
	// LookupRemote call) to the peer sink it addresses.
	ResolveRemote(id uint64) (RemoteSink, bool)
	// LookupRemote asks every connected peer's registry for name+requirement,
	// returning a node-qualified pid on the first hit.
	LookupRemote(ctx context.Context, name, requirement string) (uint64, bool)
}

// Host binds the core lunatic:: namespace against one Environment. One
// Host is shared by every process in that environment.
type Host struct {
	Linker  *linker.Linker
	Env     *environment.Environment
	Spawner Spawner
	Remote  RemoteResolver

	pendingMu sync.Mutex
	pending   map[uint64]mailbox.Message
}

// NewHost creates a Host. Spawner may be nil; spawn then always fails
// with LimitExceeded.
func NewHost(l *linker.Linker, env *environment.Environment, spawner Spawner) *Host {
	return &Host{
		Linker:  l,
		Env:     env,
		Spawner: spawner,
		pending: make(map[uint64]mailbox.Message),
	}
}

// Register defines every lunatic:: function on the Host's linker. Call
// once at startup, before any process with the "lunatic" capability is
// spawned.
func (h *Host) Register() {
	b := h.Linker.NewHostModule(NamespaceCore)
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64

	b.Func("yield_", h.yield_, nil, nil).
		Func("send", h.send, []api.ValueType{i64, i64, i32, i32, i32, i32}, []api.ValueType{i32}).
		Func("receive_prepare", h.receivePrepare, []api.ValueType{i32, i64, i64}, []api.ValueType{i32, i32, i64, i64, i32}).
		Func("receive", h.receive, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32, i32}).
		Func("link", h.link, []api.ValueType{i64}, nil).
		Func("unlink", h.unlink, []api.ValueType{i64}, nil).
		Func("kill", h.kill, []api.ValueType{i64}, nil).
		Func("set_trap_exit", h.setTrapExit, []api.ValueType{i32}, nil).
		Func("register", h.register, []api.ValueType{i32, i32, i32, i32, i64}, []api.ValueType{i32}).
		Func("lookup", h.lookup, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32, i64}).
		Func("spawn", h.spawn, []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i32, i64})
}

func (h *Host) stagePending(pid uint64, msg mailbox.Message) {
	h.pendingMu.Lock()
	h.pending[pid] = msg
	h.pendingMu.Unlock()
}

func (h *Host) takePending(pid uint64) (mailbox.Message, bool) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	msg, ok := h.pending[pid]
	if ok {
		delete(h.pending, pid)
	}
	return msg, ok
}

// yield_ unconditionally suspends the calling process and re-submits it
// to the back of its scheduler slot queue, spec 4.E's fairness guarantee.
func (h *Host) yield_(ctx context.Context, mod api.Module, stack []uint64) {
	if y, ok := YielderFromContext(ctx); ok {
		_ = y.Yield(ctx)
	}
	if p, ok := ProcessFromContext(ctx); ok {
		p.RecordYield()
	}
}

// send delivers a Message to target, optionally moving resources out of
// the caller's table onto the message (spec 3's "transfer via Message
// atomically moves ownership from sender's table to receiver's table").
// Per spec 3's weak-reference send semantics, sending to a terminated or
// unknown target is a silent no-op; the caller still loses any resources
// named in the handle list, matching "sender's table loses the handle the
// instant the message is enqueued" regardless of whether it is ever read.
func (h *Host) send(ctx context.Context, mod api.Module, stack []uint64) {
	target := stack[0]
	tag := int64(stack[1])
	ptr, ln := uint32(stack[2]), uint32(stack[3])
	resPtr, resCount := uint32(stack[4]), uint32(stack[5])

	if tag == process.TrapExitTag {
		stack[0] = moduleErrStack(lunaticerrors.ModuleInvalidBytes)
		return
	}

	payload, ok := readBytes(mod, ptr, ln)
	if !ok {
		stack[0] = moduleErrStack(lunaticerrors.ModuleInvalidBytes)
		return
	}

	var from uint64
	caller, hasCaller := ProcessFromContext(ctx)
	if hasCaller {
		from = caller.ID()
	}

	var resources []mailbox.TransferredResource
	if resCount > 0 {
		if !hasCaller {
			stack[0] = processErrStack(lunaticerrors.ProcessCancelled)
			return
		}
		handles, ok := readHandles(mod, resPtr, resCount)
		if !ok {
			stack[0] = moduleErrStack(lunaticerrors.ModuleInvalidBytes)
			return
		}
		resources = make([]mailbox.TransferredResource, 0, len(handles))
		for _, h := range handles {
			kind, value, ok := caller.Resources().Take(resource.Handle(h))
			if !ok {
				continue
			}
			resources = append(resources, mailbox.TransferredResource{Kind: kind, Value: value})
		}
	}

	msg := mailbox.Message{Tag: tag, Payload: payload, Resources: resources, From: from}
	if target_, ok := h.Env.Lookup(target); ok {
		target_.Send(msg)
	} else if remote, ok := h.remoteSink(target); ok {
		remote.Send(msg)
	} else {
		dropResources(resources)
	}
	stack[0] = 0
}

// remoteSink consults Host.Remote for a target this Environment doesn't
// own, letting a node-qualified pid returned by an earlier lookup call
// reach node.RemoteProcess instead of falling into send's silent-drop
// path. Returns ok=false immediately (no allocation, no lock) when no
// node is attached, so single-node Runtimes pay nothing for this check.
func (h *Host) remoteSink(target uint64) (RemoteSink, bool) {
	if h.Remote == nil {
		return nil, false
	}
	return h.Remote.ResolveRemote(target)
}

// receivePrepare blocks for a matching Message (or Kill, which always
// preempts) and stages it for the subsequent receive call, mirroring the
// prepare/write split the teacher corpus's own channel ABI uses so the
// guest can learn the payload size before allocating a buffer.
//
// Spec section 5 lists the receive primitive as a suspension point on par
// with yield_ and blocking I/O: a process waiting here must not keep
// holding its scheduler slot, or a supervisor blocked in receive can
// starve a linked child it just spawned out of ever acquiring one. So the
// blocking wait itself runs with the slot released via the same Yielder
// the yield_ import uses, reacquiring it once a signal actually arrives
// (or the wait is cancelled/times out) before resuming guest execution.
func (h *Host) receivePrepare(ctx context.Context, mod api.Module, stack []uint64) {
	hasTag := uint32(stack[0]) != 0
	tagVal := int64(stack[1])
	timeoutMs := int64(stack[2])

	p, ok := ProcessFromContext(ctx)
	if !ok {
		stack[0], stack[1], stack[2], stack[3], stack[4] = processErrStack(lunaticerrors.ProcessCancelled), 0, 0, 0, 0
		return
	}

	var tagPtr *int64
	if hasTag {
		tagPtr = &tagVal
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeoutMs < 0 {
		timeout = -1
	}

	y, hasYielder := YielderFromContext(ctx)
	if hasYielder {
		y.Suspend()
	}
	msg, err := p.Receive(ctx, tagPtr, timeout)
	if hasYielder {
		if rerr := y.Resume(ctx); rerr != nil && err == nil {
			stack[0], stack[1], stack[2], stack[3], stack[4] = processErrStack(lunaticerrors.ProcessCancelled), 0, 0, 0, 0
			return
		}
	}
	if err != nil {
		stack[0] = uint64(uint32(lunaticerrors.Code(err)))
		stack[1], stack[2], stack[3], stack[4] = 0, 0, 0, 0
		return
	}

	h.stagePending(p.ID(), msg)
	stack[0] = 0
	stack[1] = uint64(len(msg.Payload))
	stack[2] = msg.From
	stack[3] = uint64(msg.Tag)
	stack[4] = uint64(len(msg.Resources))
}

// receive writes the message staged by the prior receivePrepare call into
// guest memory at ptr, failing if the guest's buffer is too small. Any
// transferred resources are adopted into the receiving process's table
// and their new handles written to resPtr, up to resCap entries; per
// spec 3's transfer atomicity property, a resource is adopted (or, if
// resCap is smaller than the resource count, dropped) exactly once here
// rather than at receivePrepare time, so a receiver that never calls
// receive never takes ownership.
func (h *Host) receive(ctx context.Context, mod api.Module, stack []uint64) {
	p, ok := ProcessFromContext(ctx)
	if !ok {
		stack[0] = processErrStack(lunaticerrors.ProcessCancelled)
		return
	}
	msg, ok := h.takePending(p.ID())
	if !ok {
		stack[0] = mailboxErrStack(lunaticerrors.MailboxTimeout)
		return
	}

	ptr, ln := uint32(stack[0]), uint32(stack[1])
	if uint32(len(msg.Payload)) > ln || !writeBytes(mod, ptr, msg.Payload) {
		dropResources(msg.Resources)
		stack[0] = moduleErrStack(lunaticerrors.ModuleInvalidBytes)
		return
	}

	resPtr, resCap := uint32(stack[2]), uint32(stack[3])
	adopted := uint32(0)
	for _, r := range msg.Resources {
		if adopted >= resCap {
			if d, ok := r.Value.(resource.Dropper); ok {
				d.Drop()
			}
			continue
		}
		handle := p.Resources().Adopt(r.Kind, r.Value)
		if !writeU32(mod, resPtr+adopted*4, uint32(handle)) {
			stack[0] = moduleErrStack(lunaticerrors.ModuleInvalidBytes)
			return
		}
		adopted++
	}

	stack[0] = 0
	stack[1] = uint64(adopted)
}

func dropResources(resources []mailbox.TransferredResource) {
	for _, r := range resources {
		if d, ok := r.Value.(resource.Dropper); ok {
			d.Drop()
		}
	}
}

func (h *Host) link(ctx context.Context, mod api.Module, stack []uint64) {
	p, ok := ProcessFromContext(ctx)
	if !ok {
		return
	}
	if other, ok := h.Env.Lookup(stack[0]); ok {
		p.Link(other)
	}
}

func (h *Host) unlink(ctx context.Context, mod api.Module, stack []uint64) {
	p, ok := ProcessFromContext(ctx)
	if !ok {
		return
	}
	if other, ok := h.Env.Lookup(stack[0]); ok {
		p.Unlink(other)
	}
}

func (h *Host) kill(ctx context.Context, mod api.Module, stack []uint64) {
	if other, ok := h.Env.Lookup(stack[0]); ok {
		other.Kill()
	}
}

func (h *Host) setTrapExit(ctx context.Context, mod api.Module, stack []uint64) {
	if p, ok := ProcessFromContext(ctx); ok {
		p.SetTrapExit(uint32(stack[0]) != 0)
	}
}

func (h *Host) register(ctx context.Context, mod api.Module, stack []uint64) {
	namePtr, nameLen := uint32(stack[0]), uint32(stack[1])
	verPtr, verLen := uint32(stack[2]), uint32(stack[3])
	pid := stack[4]

	name, ok1 := readBytes(mod, namePtr, nameLen)
	version, ok2 := readBytes(mod, verPtr, verLen)
	if !ok1 || !ok2 {
		stack[0] = moduleErrStack(lunaticerrors.ModuleInvalidBytes)
		return
	}
	if err := h.Env.Register(string(name), string(version), pid); err != nil {
		stack[0] = uint64(uint32(lunaticerrors.Code(err)))
		return
	}
	stack[0] = 0
}

func (h *Host) lookup(ctx context.Context, mod api.Module, stack []uint64) {
	namePtr, nameLen := uint32(stack[0]), uint32(stack[1])
	reqPtr, reqLen := uint32(stack[2]), uint32(stack[3])

	name, ok1 := readBytes(mod, namePtr, nameLen)
	req, ok2 := readBytes(mod, reqPtr, reqLen)
	if !ok1 || !ok2 {
		stack[0], stack[1] = moduleErrStack(lunaticerrors.ModuleInvalidBytes), 0
		return
	}

	pid, err := h.Env.LookupService(string(name), string(req))
	if err == nil {
		stack[0] = 0
		stack[1] = pid
		return
	}
	if h.Remote != nil {
		if remotePID, ok := h.Remote.LookupRemote(ctx, string(name), string(req)); ok {
			stack[0] = 0
			stack[1] = remotePID
			return
		}
	}
	stack[0] = uint64(uint32(lunaticerrors.Code(err)))
	stack[1] = 0
}

func (h *Host) spawn(ctx context.Context, mod api.Module, stack []uint64) {
	p, ok := ProcessFromContext(ctx)
	if !ok || h.Spawner == nil {
		stack[0], stack[1] = processErrStack(lunaticerrors.ProcessLimitExceeded), 0
		return
	}

	handle := resource.Handle(stack[0])
	entryPtr, entryLen := uint32(stack[1]), uint32(stack[2])
	bsPtr, bsLen := uint32(stack[3]), uint32(stack[4])

	entry, ok1 := readBytes(mod, entryPtr, entryLen)
	bootstrap, ok2 := readBytes(mod, bsPtr, bsLen)
	if !ok1 || !ok2 {
		stack[0], stack[1] = moduleErrStack(lunaticerrors.ModuleInvalidBytes), 0
		return
	}

	pid, err := h.Spawner.Spawn(ctx, p, handle, string(entry), bootstrap, p.Capabilities())
	if err != nil {
		stack[0] = uint64(uint32(lunaticerrors.Code(err)))
		stack[1] = 0
		return
	}
	stack[0] = 0
	stack[1] = pid
}

// moduleErrStack packs a ModuleErrorKind's integer code as the uint64
// stack slot wazero reads back as an i32.
func moduleErrStack(kind lunaticerrors.ModuleErrorKind) uint64 {
	return uint64(uint32(lunaticerrors.Code(lunaticerrors.NewModuleError(kind, "", nil))))
}

// processErrStack packs a ProcessErrorKind's integer code the same way.
func processErrStack(kind lunaticerrors.ProcessErrorKind) uint64 {
	return uint64(uint32(lunaticerrors.Code(lunaticerrors.NewProcessError(kind, "", nil))))
}

// mailboxErrStack packs a MailboxErrorKind's integer code the same way.
func mailboxErrStack(kind lunaticerrors.MailboxErrorKind) uint64 {
	return uint64(uint32(lunaticerrors.Code(lunaticerrors.NewMailboxError(kind))))
}
