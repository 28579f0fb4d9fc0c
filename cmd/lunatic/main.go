// Command lunatic is the runtime's CLI entrypoint (spec section 6): it
// loads a Wasm entry module, normalises and schedules it as the node's
// first process, and optionally joins a distributed node mesh.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/lunatic-solutions/lunatic-go/config"
	"github.com/lunatic-solutions/lunatic-go/engine"
	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
	"github.com/lunatic-solutions/lunatic-go/node"
	"github.com/lunatic-solutions/lunatic-go/normalise"

	lunatic "github.com/lunatic-solutions/lunatic-go"
)

// Exit codes, per spec 6.
const (
	exitOK        = 0
	exitRuntime   = 1
	exitUsage     = 2
	exitKilled    = 137
	shutdownGrace = 5 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs, opts := newFlagSet()
	if err := fs.Parse(argv); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: lunatic [flags] <module.wasm>")
		fs.PrintDefaults()
		return exitUsage
	}
	modulePath := fs.Arg(0)

	cfg, err := loadConfig(modulePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lunatic: reading lunatic.toml: %v\n", err)
		return exitUsage
	}
	merged := mergeConfig(cfg, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := lunatic.New(ctx, lunatic.Config{
		Workers:      goruntime.NumCPU(),
		Capabilities: merged.capabilities,
		Dirs:         merged.dirs,
		Engine:       engine.Config{MemoryLimitPages: merged.env.MemoryLimitPages},
		Normalise:    normaliseOptionsFrom(merged),
	})
	defer rt.Close(ctx)

	if err := loadPlugins(rt.Linker(), merged.plugins); err != nil {
		fmt.Fprintf(os.Stderr, "lunatic: loading plugins: %v\n", err)
		return exitRuntime
	}

	var n *node.Node
	if opts.nodeAddr != "" {
		n, err = startNode(rt, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lunatic: starting node: %v\n", err)
			return exitRuntime
		}
		defer n.Close()
		fmt.Fprintf(os.Stderr, "lunatic: node %q listening on %v\n", opts.nodeName, n.Addrs())

		if opts.peerAddr != "" {
			if _, err := n.Connect(ctx, opts.peerAddr); err != nil {
				fmt.Fprintf(os.Stderr, "lunatic: connecting to peer %s: %v\n", opts.peerAddr, err)
				return exitRuntime
			}
		}
	}

	if opts.noEntry {
		<-ctx.Done()
		rt.Shutdown()
		return exitOK
	}

	bytecode, err := os.ReadFile(modulePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lunatic: reading %s: %v\n", modulePath, err)
		return exitUsage
	}

	_, done, err := rt.RunModule(ctx, bytecode, "_start", merged.capabilities)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lunatic: %v\n", err)
		return exitRuntime
	}

	if opts.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "lunatic: --interactive requires a terminal on stdout; ignoring")
		} else {
			// The monitor polls rt.Environment().Processes() rather than
			// consuming done, so done is still there for the select below
			// exactly once, however the monitor exits.
			runMonitor(rt)
		}
	}

	select {
	case err := <-done:
		rt.Shutdown()
		return exitCodeFor(err)
	case <-ctx.Done():
		rt.Shutdown()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
		}
		return exitKilled
	}
}

// exitCodeFor maps a process's exit error to spec 6's exit-code contract,
// printing a trap's reason to stderr before returning.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var perr *lunaticerrors.ProcessError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case lunaticerrors.ProcessKilled:
			return exitKilled
		case lunaticerrors.ProcessTrap:
			fmt.Fprintf(os.Stderr, "lunatic: trapped: %s\n", perr.Reason)
			return exitRuntime
		}
	}
	fmt.Fprintf(os.Stderr, "lunatic: %v\n", err)
	return exitRuntime
}

// startNode joins the distributed node mesh, wiring both directions of
// spec 4.G's Node Transport against rt: inbound envelopes are routed into
// rt's local process table, and rt's Host gains n as its RemoteResolver so
// a guest's lunatic::lookup/send pair can address processes on a
// connected peer, not just its own node.
func startNode(rt *lunatic.Runtime, opts *cliOptions) (*node.Node, error) {
	lookup := func(id uint64) (node.LocalSink, bool) {
		return rt.Environment().Lookup(id)
	}
	lookupSvc := func(name, requirement string) (uint64, bool) {
		pid, err := rt.Environment().LookupService(name, requirement)
		return pid, err == nil
	}
	n, err := node.New(node.Config{Name: opts.nodeName, ListenAddr: opts.nodeAddr}, func(env node.Envelope) {
		node.Route(lookup, env)
	}, lookupSvc)
	if err != nil {
		return nil, err
	}
	rt.Host().Remote = n
	return n, nil
}

// loadConfig reads lunatic.toml from the entry module's own directory;
// spec 6 says only that the CLI reads it, not where it must live, so this
// mirrors how Go tools conventionally colocate manifests with their
// target.
func loadConfig(modulePath string) (config.Config, error) {
	return config.Load(filepath.Join(filepath.Dir(modulePath), "lunatic.toml"))
}

type mergedConfig struct {
	capabilities []string
	dirs         []string
	plugins      []string
	env          config.EnvironmentConfig
}

func mergeConfig(cfg config.Config, opts *cliOptions) mergedConfig {
	caps := cfg.Environment.Capabilities
	if len(caps) == 0 {
		caps = []string{"lunatic", "wasi_snapshot_preview1"}
	}
	return mergedConfig{
		capabilities: caps,
		dirs:         append(append([]string{}, cfg.Dirs...), opts.dirs...),
		plugins:      append(append([]string{}, cfg.Plugins...), opts.plugins...),
		env:          cfg.Environment,
	}
}

func normaliseOptionsFrom(m mergedConfig) normalise.Options {
	opts := normalise.Options{ReductionThreshold: m.env.ReductionThreshold}
	if opts.ReductionThreshold == 0 {
		opts.ReductionThreshold = normalise.DefaultReductionThreshold
	}
	return opts
}
