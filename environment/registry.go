package environment

import (
	"sync"

	"github.com/coreos/go-semver/semver"
	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
)

type registryEntry struct {
	version *semver.Version
	pid     uint64
	seq     uint64
}

// Registry is a name+semver multimap from registered service names to
// process ids, guarded by a read-mostly lock: lookups (the hot path, hit on
// every remote call and every registry-based spawn) take the read lock;
// register/unregister take the write lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]registryEntry
	seq     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string][]registryEntry)}
}

// Register inserts pid under name at the given semver version string.
func (r *Registry) Register(name, version string, pid uint64) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return lunaticerrors.NewRegistryError(lunaticerrors.RegistryVersionParseError, version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.entries[name] = append(r.entries[name], registryEntry{version: v, pid: pid, seq: r.seq})
	return nil
}

// Lookup returns the pid of the highest version registered under name that
// satisfies req (e.g. "^1.2", "=1.2.3", or a bare version treated as
// caret). Among entries with an equal highest-satisfying version, the most
// recently registered wins.
func (r *Registry) Lookup(name, req string) (uint64, error) {
	parsed, err := parseRequirement(req)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates, ok := r.entries[name]
	if !ok || len(candidates) == 0 {
		return 0, lunaticerrors.NewRegistryError(lunaticerrors.RegistryNotFound, name, nil)
	}

	var best *registryEntry
	for i := range candidates {
		c := &candidates[i]
		if !parsed.matches(c.version) {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		cmp := c.version.Compare(*best.version)
		if cmp > 0 || (cmp == 0 && c.seq > best.seq) {
			best = c
		}
	}
	if best == nil {
		return 0, lunaticerrors.NewRegistryError(lunaticerrors.RegistryNotFound, name, nil)
	}
	return best.pid, nil
}

// Unregister removes every entry registered by pid, across all names.
func (r *Registry) Unregister(pid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, entries := range r.entries {
		kept := entries[:0]
		for _, e := range entries {
			if e.pid != pid {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(r.entries, name)
		} else {
			r.entries[name] = kept
		}
	}
}
