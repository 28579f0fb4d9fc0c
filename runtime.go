package lunatic

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lunatic-solutions/lunatic-go/engine"
	"github.com/lunatic-solutions/lunatic-go/environment"
	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
	"github.com/lunatic-solutions/lunatic-go/hostabi"
	"github.com/lunatic-solutions/lunatic-go/linker"
	"github.com/lunatic-solutions/lunatic-go/mailbox"
	"github.com/lunatic-solutions/lunatic-go/normalise"
	"github.com/lunatic-solutions/lunatic-go/process"
	"github.com/lunatic-solutions/lunatic-go/resource"
	"github.com/lunatic-solutions/lunatic-go/scheduler"
)

// Config configures a Runtime.
type Config struct {
	// Workers bounds how many processes execute concurrently. <= 0
	// defaults to 1 (see scheduler.New).
	Workers int

	// Capabilities is the environment's capability envelope: no spawned
	// process may import a namespace outside this set. Empty means
	// unrestricted.
	Capabilities []string

	// Dirs preopens host directories for the wasi_snapshot_preview1
	// namespace, as "hostpath:guestpath" pairs (see --dir / lunatic.toml's
	// dirs).
	Dirs []string

	Engine    engine.Config
	Normalise normalise.Options
}

// moduleResource is the lunatic::spawn ABI's "module handle" as stored in
// a process's own resource table: the normalised bytecode it was itself
// instantiated from, so guest code can spawn fresh instances of its own
// module under a different entry function, the pattern
// original_source/src/api/process/api.rs's spawn_with_module_and_config
// exists to serve.
type moduleResource struct {
	bytecode []byte
}

func (moduleResource) ResourceKind() resource.Kind { return resource.KindModule }

// Runtime wires the Module Normaliser, Host Function Registry, Engine,
// Scheduler and Environment into one running system: the concrete
// realisation of spec section 2's data flow, "a module binary enters the
// Normaliser, the Engine compiles and instantiates it, and the Scheduler
// spawns a Process running it." One Runtime owns one wazero runtime and
// one Environment; every process it spawns shares both.
type Runtime struct {
	env    *environment.Environment
	eng    *engine.Engine
	sched  *scheduler.Scheduler
	linker *linker.Linker
	host   *hostabi.Host

	normaliseOpts normalise.Options
	dirs          []string
	nextID        atomic.Uint64
}

// New creates a Runtime and registers the lunatic:: host function
// namespace against it. hostabi.Bind binds, per process, every namespace
// its capability set names except wasi_snapshot_preview1, which
// Engine.EnsureWASI instantiates once, when the first process holding that
// capability is spawned.
func New(ctx context.Context, cfg Config) *Runtime {
	eng := engine.New(ctx, cfg.Engine)
	l := linker.NewWithDefaults(eng.Runtime())
	env := environment.New(environment.Config{Capabilities: cfg.Capabilities})

	rt := &Runtime{
		env:           env,
		eng:           eng,
		sched:         scheduler.New(cfg.Workers),
		linker:        l,
		normaliseOpts: cfg.Normalise,
		dirs:          cfg.Dirs,
	}
	rt.host = hostabi.NewHost(l, env, rt)
	rt.host.Register()
	return rt
}

// Environment returns the Runtime's process environment.
func (rt *Runtime) Environment() *environment.Environment { return rt.env }

// Host returns the Runtime's lunatic:: host function registry, letting the
// CLI wire a node.Node in as its RemoteResolver once distributed mode
// starts (spec 4.G).
func (rt *Runtime) Host() *hostabi.Host { return rt.host }

// Scheduler returns the Runtime's process scheduler.
func (rt *Runtime) Scheduler() *scheduler.Scheduler { return rt.sched }

// Engine returns the Runtime's wazero engine.
func (rt *Runtime) Engine() *engine.Engine { return rt.eng }

// Linker returns the Runtime's host function registry.
func (rt *Runtime) Linker() *linker.Linker { return rt.linker }

// RunModule is the CLI's top-level entry point: it normalises, compiles,
// instantiates and schedules bytecode with no caller process, the way the
// very first process in a Lunatic node is started. entry is the exported
// function to call ("_start" unless --no-entry suppresses it). The
// returned channel receives the process's exit error exactly once.
func (rt *Runtime) RunModule(ctx context.Context, bytecode []byte, entry string, capabilities []string) (uint64, <-chan error, error) {
	return rt.spawnProcess(ctx, bytecode, entry, nil, capabilities)
}

// Spawn implements hostabi.Spawner: a guest's lunatic::spawn call looks
// up the module resource caller already holds (see moduleResource) and
// starts a new process from the same bytecode.
func (rt *Runtime) Spawn(ctx context.Context, caller *process.Process, module resource.Handle, entry string, bootstrap []byte, capabilities []string) (uint64, error) {
	res, ok := caller.Resources().GetTyped(module, resource.KindModule)
	if !ok {
		return 0, lunaticerrors.NewProcessError(lunaticerrors.ProcessLimitExceeded, "module handle not found", nil)
	}
	mr, ok := res.(moduleResource)
	if !ok {
		return 0, lunaticerrors.NewProcessError(lunaticerrors.ProcessCapabilityEscalation, "handle does not reference a module", nil)
	}

	id, _, err := rt.spawnProcess(ctx, mr.bytecode, entry, bootstrap, capabilities)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// spawnProcess is the shared path behind both RunModule and Spawn:
// normalise, compile, instantiate under a capability-gated import set,
// register a self-referencing module resource, and schedule the guest
// entry call on its own goroutine alongside a control-signal loop.
func (rt *Runtime) spawnProcess(ctx context.Context, bytecode []byte, entry string, bootstrap []byte, capabilities []string) (uint64, <-chan error, error) {
	normalised, err := normalise.Normalise(bytecode, rt.normaliseOpts)
	if err != nil {
		return 0, nil, err
	}

	compiled, err := rt.eng.Compile(ctx, normalised)
	if err != nil {
		return 0, nil, lunaticerrors.NewModuleError(lunaticerrors.ModuleInstantiationFailed, err.Error(), err)
	}

	id := rt.nextID.Add(1)
	p := rt.env.Spawn(id, process.Options{Capabilities: capabilities})

	if err := hostabi.Bind(ctx, rt.linker, p); err != nil {
		rt.env.Deregister(id)
		return 0, nil, lunaticerrors.NewModuleError(lunaticerrors.ModuleMissingImport, err.Error(), err)
	}
	if p.HasCapability(hostabi.WASINamespace) {
		if _, err := rt.eng.EnsureWASI(ctx); err != nil {
			rt.env.Deregister(id)
			return 0, nil, lunaticerrors.NewModuleError(lunaticerrors.ModuleMissingImport, err.Error(), err)
		}
	}

	inst, err := rt.eng.InstantiateWithDirs(ctx, compiled, fmt.Sprintf("process-%d", id), rt.dirs)
	if err != nil {
		rt.env.Deregister(id)
		return 0, nil, lunaticerrors.NewModuleError(lunaticerrors.ModuleInstantiationFailed, err.Error(), err)
	}

	p.Resources().Insert(resource.KindModule, moduleResource{bytecode: normalised})

	if len(bootstrap) > 0 {
		p.Send(mailbox.Message{Tag: 0, Payload: bootstrap})
	}

	done := rt.sched.Go(ctx, func(taskCtx context.Context, y *scheduler.Yielder) error {
		go p.RunControlLoop(taskCtx)

		fn := inst.ExportedFunction(entry)
		if fn == nil {
			msg := fmt.Sprintf("export %q not found", entry)
			p.Terminate(mailbox.Reason{Kind: "trap", Message: msg})
			return lunaticerrors.NewModuleError(lunaticerrors.ModuleMissingImport, msg, nil)
		}

		callCtx := hostabi.WithProcess(hostabi.WithYielder(taskCtx, y), p)
		if _, err := fn.Call(callCtx); err != nil {
			p.Terminate(mailbox.Reason{Kind: "trap", Message: err.Error()})
			return lunaticerrors.NewProcessError(lunaticerrors.ProcessTrap, err.Error(), err)
		}

		p.Terminate(mailbox.Reason{})
		return nil
	})

	return id, done, nil
}

// Shutdown terminates every process the Runtime owns and waits for their
// scheduler slots to drain.
func (rt *Runtime) Shutdown() {
	rt.env.Teardown()
	rt.sched.Wait()
}

// Close releases the underlying wazero runtime. Call after Shutdown.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.eng.Close(ctx)
}
