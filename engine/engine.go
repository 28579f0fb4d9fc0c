package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Config configures a wazero runtime instance.
type Config struct {
	// MemoryLimitPages caps every guest instance's linear memory, in 64KiB
	// pages. Zero means wazero's default (4GiB worth of address space,
	// growth still bounded by the module's own memory limits).
	MemoryLimitPages uint32

	// EnableThreads turns on the WebAssembly threads proposal (shared
	// memory, atomic instructions). Guest atomics are unaffected by the
	// scheduler's cooperative yields; host functions never see them.
	EnableThreads bool
}

// Engine owns one wazero runtime and the compiled module cache backing it.
// A single Engine is shared by every process spawned from the same
// environment so that repeated spawns of the same module reuse its
// compiled code.
type Engine struct {
	runtime wazero.Runtime
	config  Config

	wasiOnce   sync.Once
	wasiModule api.Module
	wasiErr    error
}

// New creates an Engine with the given configuration.
func New(ctx context.Context, cfg Config) *Engine {
	rc := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		rc = rc.WithCoreFeatures(api.CoreFeaturesV2 | experimentalThreads)
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, rc),
		config:  cfg,
	}
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Compile validates and lowers bytecode into a wazero CompiledModule.
// Callers pass the already-normalised bytecode (see package normalise); the
// engine itself performs no bytecode rewriting.
func (e *Engine) Compile(ctx context.Context, bytecode []byte) (wazero.CompiledModule, error) {
	mod, err := e.runtime.CompileModule(ctx, bytecode)
	if err != nil {
		return nil, fmt.Errorf("engine: compile module: %w", err)
	}
	return mod, nil
}

// Instantiate instantiates a compiled module under the given name. Its
// imports resolve against the host modules already instantiated in the
// Engine's runtime (see hostabi.Bind and EnsureWASI); Engine does not
// consult any capability set itself.
func (e *Engine) Instantiate(ctx context.Context, mod wazero.CompiledModule, name string) (api.Module, error) {
	cfg := wazero.NewModuleConfig().WithName(name)
	inst, err := e.runtime.InstantiateModule(ctx, mod, cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: instantiate module %q: %w", name, err)
	}
	return inst, nil
}

// EnsureWASI instantiates the wasi_snapshot_preview1 host module exactly
// once for this Engine's runtime, regardless of how many processes request
// the "wasi_snapshot_preview1" capability; wazero rejects instantiating two
// modules under the same name, so every process capable of WASI shares this
// one instance.
func (e *Engine) EnsureWASI(ctx context.Context) (api.Module, error) {
	e.wasiOnce.Do(func() {
		e.wasiModule, e.wasiErr = InstantiateWASI(ctx, e.runtime)
	})
	return e.wasiModule, e.wasiErr
}

// InstantiateWithDirs behaves like Instantiate but preopens each entry of
// dirs, given as "hostpath:guestpath" pairs (a bare path preopens itself at
// the same guest path), for the wasi_snapshot_preview1 namespace's path
// functions to resolve against. Callers pass dirs from --dir/lunatic.toml;
// an empty dirs behaves exactly like Instantiate.
func (e *Engine) InstantiateWithDirs(ctx context.Context, mod wazero.CompiledModule, name string, dirs []string) (api.Module, error) {
	cfg := wazero.NewModuleConfig().WithName(name)
	if len(dirs) > 0 {
		fsCfg := wazero.NewFSConfig()
		for _, d := range dirs {
			host, guest := d, d
			if i := strings.IndexByte(d, ':'); i >= 0 {
				host, guest = d[:i], d[i+1:]
			}
			fsCfg = fsCfg.WithDirMount(host, guest)
		}
		cfg = cfg.WithFSConfig(fsCfg)
	}
	inst, err := e.runtime.InstantiateModule(ctx, mod, cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: instantiate module %q: %w", name, err)
	}
	return inst, nil
}

// Close tears down the runtime and every module instantiated from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// experimentalThreads mirrors wazero's threads-proposal feature flag. wazero
// gates it behind api.CoreFeatureThreads in current releases; kept as a
// named constant here so EnableThreads reads as a single flag rather than a
// magic bitmask at the call site.
const experimentalThreads = api.CoreFeatureThreads
