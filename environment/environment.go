// Package environment groups Process instances under a shared capability
// envelope and a name+semver registry, implementing spec 4.F.
package environment

import (
	"sync"

	"github.com/lunatic-solutions/lunatic-go/mailbox"
	"github.com/lunatic-solutions/lunatic-go/process"
)

// Environment owns a process table, a capability envelope every spawned
// process's capability set is intersected against, and a Registry for
// name-based service discovery. It satisfies process.Environment so a
// Process can look up and deregister its peers without importing this
// package back.
type Environment struct {
	mu           sync.RWMutex
	processes    map[uint64]*process.Process
	capabilities map[string]struct{}

	Registry *Registry
}

// Config seeds an Environment's capability envelope: no process spawned
// into this environment may import a namespace outside this set, however
// permissive its own Options.Capabilities are. An empty Capabilities leaves
// the envelope unrestricted: every capability a process asks for is kept.
type Config struct {
	Capabilities []string
}

// New creates an empty Environment.
func New(cfg Config) *Environment {
	caps := make(map[string]struct{}, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		caps[c] = struct{}{}
	}
	return &Environment{
		processes:    make(map[uint64]*process.Process),
		capabilities: caps,
		Registry:     NewRegistry(),
	}
}

// Spawn creates a new Process owned by this environment. opts.Capabilities
// is intersected with the environment's own envelope; a process can never
// escalate beyond what its environment allows.
func (e *Environment) Spawn(id uint64, opts process.Options) *process.Process {
	allowed := make([]string, 0, len(opts.Capabilities))
	for _, c := range opts.Capabilities {
		if _, ok := e.capabilities[c]; ok || len(e.capabilities) == 0 {
			allowed = append(allowed, c)
		}
	}
	p := process.New(id, e, process.Options{Capabilities: allowed})

	e.mu.Lock()
	e.processes[id] = p
	e.mu.Unlock()
	return p
}

// Lookup implements process.Environment.
func (e *Environment) Lookup(id uint64) (*process.Process, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.processes[id]
	return p, ok
}

// Deregister implements process.Environment.
func (e *Environment) Deregister(id uint64) {
	e.mu.Lock()
	delete(e.processes, id)
	e.mu.Unlock()
	e.Registry.Unregister(id)
}

// Register publishes pid under name at version in this environment's
// registry.
func (e *Environment) Register(name, version string, pid uint64) error {
	return e.Registry.Register(name, version, pid)
}

// LookupService resolves a name+requirement pair to the process it
// currently identifies, per spec 4.F.
func (e *Environment) LookupService(name, requirement string) (uint64, error) {
	return e.Registry.Lookup(name, requirement)
}

// Processes returns a snapshot of every process id currently owned by this
// environment, used by teardown and the CLI monitor.
func (e *Environment) Processes() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]uint64, 0, len(e.processes))
	for id := range e.processes {
		ids = append(ids, id)
	}
	return ids
}

// Teardown kills every process owned by this environment, matching spec
// 5's "cancellation... by environment teardown (same effect)" as Kill.
func (e *Environment) Teardown() {
	for _, id := range e.Processes() {
		if p, ok := e.Lookup(id); ok {
			p.Send(mailbox.Kill{})
		}
	}
}
