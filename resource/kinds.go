package resource

// Kind identifies the concrete resource type stored behind a Handle.
// A process's resource table holds a mix of these at once: sockets opened
// by networking host calls, file descriptors from the filesystem namespace,
// compiled module handles produced by spawn_link, and in-flight TLS streams.
type Kind uint32

const (
	KindTCPStream Kind = iota
	KindTCPListener
	KindUDPSocket
	KindTLSStream
	KindDNSIterator
	KindFile
	KindModule
	KindTimer
)

// Resource is implemented by values stored in a process's table that need
// a type tag beyond the Go type switch, e.g. for diagnostics.
type Resource interface {
	ResourceKind() Kind
}

// ProcessTable is the per-process resource handle table. It is a thin, named
// wrapper over UnifiedTable so that process code reads as "the process's
// resources" rather than a generic component table.
type ProcessTable struct {
	table *UnifiedTable
}

// NewProcessTable creates an empty resource table for a process.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{table: NewTable()}
}

// Insert adds a resource and returns its handle, unique within the process.
func (t *ProcessTable) Insert(kind Kind, value any) Handle {
	return t.table.Insert(uint32(kind), value)
}

// Get retrieves a resource by handle without removing it.
func (t *ProcessTable) Get(handle Handle) (any, bool) {
	return t.table.Get(handle)
}

// GetTyped retrieves a resource only if it matches the expected kind.
func (t *ProcessTable) GetTyped(handle Handle, kind Kind) (any, bool) {
	return t.table.GetTyped(handle, uint32(kind))
}

// Take detaches a resource from the table without invoking its Dropper,
// transferring ownership to the caller. Used when a resource is attached
// to an outgoing Message: the sending process loses the handle the
// instant the message is enqueued, but the resource itself must survive
// the trip intact rather than being released.
func (t *ProcessTable) Take(handle Handle) (Kind, any, bool) {
	typeID, ok := t.table.Backend().TypeID(handle)
	if !ok {
		return 0, nil, false
	}
	value, ok := t.table.Backend().Drop(handle)
	if !ok {
		return 0, nil, false
	}
	return Kind(typeID), value, true
}

// Adopt inserts a value transferred from another process's table under
// its original kind, returning the new handle it holds in this table.
func (t *ProcessTable) Adopt(kind Kind, value any) Handle {
	return t.Insert(kind, value)
}

// Close drops every resource still owned by the process, calling Drop on
// any value implementing Dropper. Called when a process terminates.
func (t *ProcessTable) Close() error {
	return t.table.Close()
}

// Len returns the number of resources currently held.
func (t *ProcessTable) Len() int {
	return t.table.Len()
}
