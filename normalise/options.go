package normalise

// DefaultReductionThreshold is the number of reduction-counter increments
// permitted between yield_ calls when Options.ReductionThreshold is zero.
const DefaultReductionThreshold = 10_000

// Options configures a single Normalise pass.
type Options struct {
	// ReductionThreshold is the reduction count a function or loop may reach
	// before it yields back to the scheduler. Zero selects
	// DefaultReductionThreshold.
	ReductionThreshold uint32

	// HeapProfiler wraps malloc/calloc/realloc/aligned_alloc/free exports
	// with calls into the heap_profiler namespace.
	HeapProfiler bool

	// ExternrefWrap rewrites i32-slot externref call sites into wrapper
	// functions backed by a module-level table, for guests whose toolchain
	// does not emit externref directly.
	ExternrefWrap bool
}

func (o Options) threshold() uint32 {
	if o.ReductionThreshold == 0 {
		return DefaultReductionThreshold
	}
	return o.ReductionThreshold
}
