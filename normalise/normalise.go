package normalise

import (
	"github.com/lunatic-solutions/lunatic-go/errors"
	"github.com/lunatic-solutions/lunatic-go/wasm"
)

// Normalise rewrites a guest module's bytecode per opts and returns the
// re-encoded bytes. If bytecode already carries a marker from a prior pass
// with identical options, it is returned unchanged. A marker from a
// different set of options is treated as stale and the module is
// renormalised from scratch against the raw sections already present.
func Normalise(bytecode []byte, opts Options) ([]byte, error) {
	m, err := wasm.ParseModule(bytecode)
	if err != nil {
		return nil, errors.NewModuleError(errors.ModuleInvalidBytes, err.Error(), err)
	}

	if prior, ok := findMarker(m); ok && sameOptions(prior, opts) {
		Logger().Sugar().Debugw("normalise: already normalised with identical options, skipping")
		return bytecode, nil
	}

	// Wrapper-generating passes run before reduction-counter injection so
	// the trampolines they append to m.Code (externref-mismatch wrappers,
	// heap-profiler hooks) are still "defined functions" injectReductionCounting
	// hasn't visited yet: it patches every entry present in m.Code at the
	// time it runs, so running it last gives every generated function the
	// same yield prologue as a function the guest module itself defined.
	if opts.ExternrefWrap {
		injectExternrefPlumbing(m)
	}

	if opts.HeapProfiler {
		injectHeapProfilerHooks(m)
	}

	injectReductionCounting(m, opts.threshold())

	stampMarker(m, opts)

	if err := m.Validate(); err != nil {
		return nil, errors.NewModuleError(errors.ModuleNormalisationFailed, err.Error(), err)
	}

	out := m.Encode()
	Logger().Sugar().Debugw("normalise: rewrote module", "bytes_in", len(bytecode), "bytes_out", len(out))
	return out, nil
}
