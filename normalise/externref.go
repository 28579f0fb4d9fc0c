package normalise

import "github.com/lunatic-solutions/lunatic-go/wasm"

// externrefSlot describes, for one Lunatic host import, which parameter and
// result positions Lunatic's ABI declares as externref. Grounded on
// original_source's src/networking/api.rs (tcp_bind_str, tcp_accept) and
// the spawn signature in extern_func_ref.rs; every other lunatic:: import in the corpus passes
// only i32/i64 handles and needs no entry here.
type externrefSlot struct {
	paramExtern  []bool
	resultExtern []bool
}

// externrefImportABI is the fixed subset of Lunatic's own host functions
// whose canonical signature carries externref in one or more slots. A
// guest import matching one of these by (module, name) that instead
// declares i32 in an externref slot is the "guest uses i32 handles" case
// spec 4.A item 2 describes.
var externrefImportABI = map[string]map[string]externrefSlot{
	"lunatic": {
		// (param i32 i32) (result i32 externref) — tcp_bind_str(ptr, len).
		"tcp_bind_str": {
			paramExtern:  []bool{false, false},
			resultExtern: []bool{false, true},
		},
		// (param externref) (result i32 externref externref) — tcp_accept(listener).
		"tcp_accept": {
			paramExtern:  []bool{true},
			resultExtern: []bool{false, true, true},
		},
		// (param i32 i64) (result externref) — spawn(module, entry).
		"spawn": {
			paramExtern:  []bool{false, false},
			resultExtern: []bool{true},
		},
	},
}

// injectExternrefPlumbing adds a module-level externref table and two
// exported helpers, _lunatic_externref_save and _lunatic_externref_drop,
// for guests whose toolchain represents Lunatic resource handles as raw i32
// slots instead of native externref. Slot allocation is monotonic: drop
// clears a slot's table entry but does not recycle the index, since Wasm
// tables have no free-list primitive. A guest that saves and drops
// externrefs in a tight loop will grow the table without bound; callers who
// need recycling should keep slot reuse in the host-side wrapper that calls
// these exports rather than here.
//
// It then walks every import matching externrefImportABI, retypes the ones
// whose declared signature substitutes i32 for an ABI-mandated externref
// slot, and generates a per-import wrapper (spec 4.A item 2) that converts
// between the guest's i32 handles and real externref values at the call
// boundary, redirecting every guest call site from the import to its
// wrapper. lunatic::drop_externref, singled out by spec 4.A as "replaced by
// an in-place drop", is handled separately: its call sites are redirected
// straight to the local drop helper instead of through a wrapped host call.
func injectExternrefPlumbing(m *wasm.Module) {
	tableIdx := uint32(len(m.Tables) + m.NumImportedTables())
	m.Tables = append(m.Tables, wasm.TableType{
		ElemType: byte(wasm.ValExtern),
		Limits:   wasm.Limits{Min: 0},
	})

	saveTypeIdx := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValExtern},
		Results: []wasm.ValType{wasm.ValI32},
	})
	dropTypeIdx := m.AddType(wasm.FuncType{
		Params: []wasm.ValType{wasm.ValI32},
	})

	saveFuncIdx := uint32(m.NumImportedFuncs() + len(m.Funcs))
	m.Funcs = append(m.Funcs, saveTypeIdx)
	m.Code = append(m.Code, wasm.FuncBody{Code: wasm.EncodeInstructions(saveBody(tableIdx))})

	dropFuncIdx := uint32(m.NumImportedFuncs() + len(m.Funcs))
	m.Funcs = append(m.Funcs, dropTypeIdx)
	m.Code = append(m.Code, wasm.FuncBody{Code: wasm.EncodeInstructions(dropBody(tableIdx))})

	m.Exports = append(m.Exports,
		wasm.Export{Name: "_lunatic_externref_save", Kind: wasm.KindFunc, Idx: saveFuncIdx},
		wasm.Export{Name: "_lunatic_externref_drop", Kind: wasm.KindFunc, Idx: dropFuncIdx},
	)

	redirectDropExternrefImport(m, dropFuncIdx)
	wrapMismatchedExternrefImports(m, tableIdx, saveFuncIdx)
}

// redirectDropExternrefImport finds a lunatic::drop_externref import, if
// present, and points every call site at dropFuncIdx directly rather than
// generating a host-call wrapper: spec 4.A item 2's last sentence treats
// this one import as a pure in-place replacement, not a save/lookup
// boundary.
func redirectDropExternrefImport(m *wasm.Module, dropFuncIdx uint32) {
	funcIdx := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		if imp.Module == "lunatic" && imp.Name == "drop_externref" {
			redirectCallSites(m, funcIdx, dropFuncIdx)
			return
		}
		funcIdx++
	}
}

// wrapMismatchedExternrefImports walks m.Imports against
// externrefImportABI and wraps every import whose declared type uses i32
// in a slot the ABI defines as externref.
func wrapMismatchedExternrefImports(m *wasm.Module, tableIdx, saveFuncIdx uint32) {
	type mismatch struct {
		importIdx uint32
		guestType wasm.FuncType
		slot      externrefSlot
	}

	var mismatches []mismatch
	funcIdx := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		byName, ok := externrefImportABI[imp.Module]
		if !ok {
			funcIdx++
			continue
		}
		slot, ok := byName[imp.Name]
		if !ok {
			funcIdx++
			continue
		}
		if ft := m.GetFuncType(funcIdx); ft != nil && slotMismatchesI32(*ft, slot) {
			mismatches = append(mismatches, mismatch{importIdx: funcIdx, guestType: *ft, slot: slot})
		}
		funcIdx++
	}

	for _, mm := range mismatches {
		wrapperIdx := buildExternrefWrapper(m, mm.importIdx, mm.guestType, mm.slot, tableIdx, saveFuncIdx)
		redirectCallSites(m, mm.importIdx, wrapperIdx)
	}
}

// slotMismatchesI32 reports whether ft declares i32 at any position slot
// marks as externref.
func slotMismatchesI32(ft wasm.FuncType, slot externrefSlot) bool {
	for i, extern := range slot.paramExtern {
		if extern && i < len(ft.Params) && ft.Params[i] == wasm.ValI32 {
			return true
		}
	}
	for i, extern := range slot.resultExtern {
		if extern && i < len(ft.Results) && ft.Results[i] == wasm.ValI32 {
			return true
		}
	}
	return false
}

// buildExternrefWrapper retypes origIdx's import to Lunatic's real
// externref-bearing signature and appends a local function, of origIdx's
// original (guest-declared, i32-slotted) type, that bridges the two: it
// loads each externref parameter out of the shared table via table.get
// before calling origIdx, and saves each externref result back into the
// table via saveFuncIdx, so the wrapper's own signature is exactly what
// the guest already expects to call. Once redirectCallSites runs, the
// wrapper is the only caller of origIdx left in the module.
func buildExternrefWrapper(m *wasm.Module, origIdx uint32, guestType wasm.FuncType, slot externrefSlot, tableIdx, saveFuncIdx uint32) uint32 {
	realType := wasm.FuncType{
		Params:  append([]wasm.ValType{}, guestType.Params...),
		Results: append([]wasm.ValType{}, guestType.Results...),
	}
	for i, extern := range slot.paramExtern {
		if extern && i < len(realType.Params) {
			realType.Params[i] = wasm.ValExtern
		}
	}
	for i, extern := range slot.resultExtern {
		if extern && i < len(realType.Results) {
			realType.Results[i] = wasm.ValExtern
		}
	}
	retypeImport(m, origIdx, m.AddType(realType))

	wrapperTypeIdx := m.AddType(guestType)
	wrapperFuncIdx := uint32(m.NumImportedFuncs() + len(m.Funcs))

	locals := make([]wasm.LocalEntry, len(realType.Results))
	for i, t := range realType.Results {
		locals[i] = wasm.LocalEntry{Count: 1, ValType: t}
	}

	m.Funcs = append(m.Funcs, wrapperTypeIdx)
	m.Code = append(m.Code, wasm.FuncBody{
		Locals: locals,
		Code:   wasm.EncodeInstructions(externrefWrapperBody(origIdx, guestType, realType, slot, tableIdx, saveFuncIdx)),
	})
	return wrapperFuncIdx
}

// retypeImport points funcIdx's import descriptor at newTypeIdx. funcIdx
// is a position in the flat function-index space; only import entries
// contribute to that space ahead of any locally defined function.
func retypeImport(m *wasm.Module, funcIdx, newTypeIdx uint32) {
	seen := uint32(0)
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != wasm.KindFunc {
			continue
		}
		if seen == funcIdx {
			m.Imports[i].Desc.TypeIdx = newTypeIdx
			return
		}
		seen++
	}
}

// externrefWrapperBody: push each guest param, converting an
// externref-designated one from its i32 table slot via table.get; call
// the (now real-typed) import; stash its results into locals since a
// multi-value return leaves the last result on top of the stack; then
// push the results back out in order, converting an externref-designated
// one back to an i32 slot via saveFuncIdx.
func externrefWrapperBody(origIdx uint32, guestType, realType wasm.FuncType, slot externrefSlot, tableIdx, saveFuncIdx uint32) []wasm.Instruction {
	var out []wasm.Instruction

	for i := range guestType.Params {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: uint32(i)}})
		if i < len(slot.paramExtern) && slot.paramExtern[i] {
			out = append(out, wasm.Instruction{Opcode: wasm.OpTableGet, Imm: wasm.TableImm{TableIdx: tableIdx}})
		}
	}
	out = append(out, wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: origIdx}})

	nParams := uint32(len(guestType.Params))
	nResults := uint32(len(realType.Results))
	for i := nResults; i > 0; i-- {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: nParams + i - 1}})
	}
	for i := uint32(0); i < nResults; i++ {
		out = append(out, wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: nParams + i}})
		if i < uint32(len(slot.resultExtern)) && slot.resultExtern[i] {
			out = append(out, wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: saveFuncIdx}})
		}
	}
	out = append(out, wasm.Instruction{Opcode: wasm.OpEnd})
	return out
}
