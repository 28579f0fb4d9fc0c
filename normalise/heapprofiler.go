package normalise

import "github.com/lunatic-solutions/lunatic-go/wasm"

// profiledAllocators lists the allocator entry points that get a profiler
// wrapper when Options.HeapProfiler is set and the module exports or
// imports them.
var profiledAllocators = []string{"malloc", "calloc", "realloc", "aligned_alloc", "free"}

// injectHeapProfilerHooks finds each allocator function the module defines
// or imports, generates a wrapper that forwards to the original and then
// reports the call (and its returned pointer, if any) to
// heap_profiler::<fn>_profiler, and redirects every internal call site and
// matching export to the wrapper. The wrapper is a drop-in: same signature,
// same behaviour, plus the profiler side call.
func injectHeapProfilerHooks(m *wasm.Module) {
	for _, name := range profiledAllocators {
		origIdx, ft, ok := findAllocator(m, name)
		if !ok {
			continue
		}
		wrapperIdx, adjustedOrigIdx := buildProfilerWrapper(m, name, origIdx, ft)
		redirectCallSites(m, adjustedOrigIdx, wrapperIdx)
		for i := range m.Exports {
			if m.Exports[i].Kind == wasm.KindFunc && m.Exports[i].Idx == adjustedOrigIdx {
				m.Exports[i].Idx = wrapperIdx
			}
		}
	}
}

// findAllocator returns the function index and signature of name, whether
// it comes from an export of a defined function or from an import.
func findAllocator(m *wasm.Module, name string) (idx uint32, ft wasm.FuncType, ok bool) {
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc && exp.Name == name {
			if t := m.GetFuncType(exp.Idx); t != nil {
				return exp.Idx, *t, true
			}
		}
	}
	funcIdx := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		if imp.Name == name {
			if t := m.GetFuncType(funcIdx); t != nil {
				return funcIdx, *t, true
			}
		}
		funcIdx++
	}
	return 0, wasm.FuncType{}, false
}

// buildProfilerWrapper adds an imported heap_profiler::<name>_profiler
// taking the original params plus its results, a new local function that
// calls origIdx and forwards args+result to the profiler import, and
// returns the new wrapper's function index.
func buildProfilerWrapper(m *wasm.Module, name string, origIdx uint32, ft wasm.FuncType) (wrapperIdx, adjustedOrigIdx uint32) {
	oldImportedFuncs := uint32(m.NumImportedFuncs())
	wasLocal := origIdx >= oldImportedFuncs

	profilerType := wasm.FuncType{
		Params: append(append([]wasm.ValType{}, ft.Params...), ft.Results...),
	}
	profilerTypeIdx := m.AddType(profilerType)
	profilerFuncIdx := appendFuncImport(m, "heap_profiler", name+"_profiler", profilerTypeIdx)
	// appendFuncImport shifts every existing local-function reference by one;
	// origIdx needs the same shift if it pointed at a local function. An
	// import origIdx is untouched since new imports append after it.
	if wasLocal {
		origIdx++
	}

	wrapperType := ft
	wrapperTypeIdx := m.AddType(wrapperType)
	wrapperFuncIdx := uint32(m.NumImportedFuncs() + len(m.Funcs))
	locals := make([]wasm.LocalEntry, len(ft.Results))
	for i, t := range ft.Results {
		locals[i] = wasm.LocalEntry{Count: 1, ValType: t}
	}

	m.Funcs = append(m.Funcs, wrapperTypeIdx)
	m.Code = append(m.Code, wasm.FuncBody{
		Locals: locals,
		Code:   wasm.EncodeInstructions(profilerWrapperBody(origIdx, profilerFuncIdx, ft)),
	})
	return wrapperFuncIdx, origIdx
}

// profilerWrapperBody: call the original with the incoming params, stash
// each result in a fresh local, call the profiler import with params then
// results, then push the results back out as the wrapper's own return.
func profilerWrapperBody(origIdx, profilerFuncIdx uint32, ft wasm.FuncType) []wasm.Instruction {
	nParams := uint32(len(ft.Params))
	var out []wasm.Instruction

	for i := uint32(0); i < nParams; i++ {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: i}})
	}
	out = append(out, wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: origIdx}})

	nResults := uint32(len(ft.Results))
	for i := nResults; i > 0; i-- {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: nParams + i - 1}})
	}

	for i := uint32(0); i < nParams; i++ {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: i}})
	}
	for i := uint32(0); i < nResults; i++ {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: nParams + i}})
	}
	out = append(out, wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: profilerFuncIdx}})

	for i := uint32(0); i < nResults; i++ {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: nParams + i}})
	}
	out = append(out, wasm.Instruction{Opcode: wasm.OpEnd})
	return out
}

// redirectCallSites rewrites every call instruction targeting from into a
// call targeting to, across every function body in the module except the
// wrapper itself (identified by to's local-code index), which legitimately
// calls the original.
func redirectCallSites(m *wasm.Module, from, to uint32) {
	wrapperCodeIdx := int(to) - m.NumImportedFuncs()
	for i := range m.Code {
		if i == wrapperCodeIdx {
			continue
		}
		instrs, err := wasm.DecodeInstructions(m.Code[i].Code)
		if err != nil {
			continue
		}
		changed := false
		for j := range instrs {
			if instrs[j].Opcode != wasm.OpCall && instrs[j].Opcode != wasm.OpReturnCall {
				continue
			}
			imm := instrs[j].Imm.(wasm.CallImm)
			if imm.FuncIdx == from {
				instrs[j].Imm = wasm.CallImm{FuncIdx: to}
				changed = true
			}
		}
		if changed {
			m.Code[i].Code = wasm.EncodeInstructions(instrs)
		}
	}
}
