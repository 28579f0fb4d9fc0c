package hostabi

import "github.com/tetratelabs/wazero/api"

// readBytes copies length bytes out of mod's linear memory at ptr. ok is
// false on an out-of-bounds range, which the caller must translate into a
// guest-visible error code rather than trap the instance.
func readBytes(mod api.Module, ptr, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	b, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

// writeBytes copies data into mod's linear memory starting at ptr.
func writeBytes(mod api.Module, ptr uint32, data []byte) bool {
	if len(data) == 0 {
		return true
	}
	return mod.Memory().Write(ptr, data)
}

// writeU32 writes a little-endian u32 into guest memory, used to report
// an out-parameter (e.g. the number of bytes actually written).
func writeU32(mod api.Module, ptr, value uint32) bool {
	return mod.Memory().WriteUint32Le(ptr, value)
}

// readHandles reads count consecutive little-endian u32 resource handles
// starting at ptr, the wire layout `send`'s resources array uses.
func readHandles(mod api.Module, ptr, count uint32) ([]uint32, bool) {
	if count == 0 {
		return nil, true
	}
	out := make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		v, ok := mod.Memory().ReadUint32Le(ptr + i*4)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
