package normalise

import (
	"encoding/binary"

	"github.com/lunatic-solutions/lunatic-go/wasm"
)

// markerSectionName is the custom section normalise stamps on every module
// it rewrites, recording which options were applied so a second pass with
// identical options is a no-op.
const markerSectionName = "lunatic-normalise"

// markerVersion bumps whenever the injected sequences themselves change
// shape, invalidating markers left by an older version of this package.
const markerVersion = 1

func encodeMarker(opts Options) []byte {
	data := make([]byte, 6)
	data[0] = markerVersion
	binary.LittleEndian.PutUint32(data[1:5], opts.threshold())
	var flags byte
	if opts.HeapProfiler {
		flags |= 1
	}
	if opts.ExternrefWrap {
		flags |= 2
	}
	data[5] = flags
	return data
}

// findMarker reports the options a prior Normalise pass stamped on m, if
// any.
func findMarker(m *wasm.Module) (Options, bool) {
	for _, cs := range m.CustomSections {
		if cs.Name != markerSectionName || len(cs.Data) < 6 {
			continue
		}
		if cs.Data[0] != markerVersion {
			continue
		}
		opts := Options{
			ReductionThreshold: binary.LittleEndian.Uint32(cs.Data[1:5]),
			HeapProfiler:       cs.Data[5]&1 != 0,
			ExternrefWrap:      cs.Data[5]&2 != 0,
		}
		return opts, true
	}
	return Options{}, false
}

func sameOptions(a, b Options) bool {
	return a.threshold() == b.threshold() &&
		a.HeapProfiler == b.HeapProfiler &&
		a.ExternrefWrap == b.ExternrefWrap
}

func stampMarker(m *wasm.Module, opts Options) {
	m.CustomSections = append(m.CustomSections, wasm.CustomSection{
		Name: markerSectionName,
		Data: encodeMarker(opts),
	})
}
