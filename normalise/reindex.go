package normalise

import "github.com/lunatic-solutions/lunatic-go/wasm"

// appendFuncImport adds a new imported function to m, returning the
// function index the import receives. The import is appended after every
// existing import, so it receives the function index immediately following
// the last existing imported function; every function-index reference at or
// above that threshold (local functions, by definition) must be shifted by
// one to stay valid, which shiftFuncIndices does.
func appendFuncImport(m *wasm.Module, module, name string, typeIdx uint32) uint32 {
	oldImportedFuncs := uint32(m.NumImportedFuncs())
	m.Imports = append(m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx},
	})
	shiftFuncIndices(m, oldImportedFuncs, 1)
	return oldImportedFuncs
}

// shiftFuncIndices adds delta to every function-index reference in m that is
// >= threshold: call/return_call targets, ref.func immediates, function
// exports, the start function, and element-segment function indices.
// Element segments using expression form (ref.func inside an init expr) are
// also walked.
func shiftFuncIndices(m *wasm.Module, threshold uint32, delta int64) {
	for i := range m.Code {
		m.Code[i].Code = shiftCodeFuncIndices(m.Code[i].Code, threshold, delta)
	}

	if m.Start != nil && *m.Start >= threshold {
		shifted := shiftIdx(*m.Start, threshold, delta)
		m.Start = &shifted
	}

	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.KindFunc && m.Exports[i].Idx >= threshold {
			m.Exports[i].Idx = shiftIdx(m.Exports[i].Idx, threshold, delta)
		}
	}

	for i := range m.Elements {
		for j, fi := range m.Elements[i].FuncIdxs {
			if fi >= threshold {
				m.Elements[i].FuncIdxs[j] = shiftIdx(fi, threshold, delta)
			}
		}
		for j := range m.Elements[i].Exprs {
			m.Elements[i].Exprs[j] = shiftCodeFuncIndices(m.Elements[i].Exprs[j], threshold, delta)
		}
	}
}

func shiftIdx(idx, threshold uint32, delta int64) uint32 {
	if idx < threshold {
		return idx
	}
	return uint32(int64(idx) + delta)
}

// shiftCodeFuncIndices decodes code, rewrites call and ref.func immediates
// whose target is >= threshold, and re-encodes. Any other instruction
// stream (element-segment init exprs) uses the same representation so this
// also serves those callers.
func shiftCodeFuncIndices(code []byte, threshold uint32, delta int64) []byte {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		// Bytecode the decoder can't parse is left untouched; callers that
		// need a hard failure run Module.Validate after the full pass.
		return code
	}

	changed := false
	for i := range instrs {
		switch instrs[i].Opcode {
		case wasm.OpCall, wasm.OpReturnCall:
			imm := instrs[i].Imm.(wasm.CallImm)
			if imm.FuncIdx >= threshold {
				instrs[i].Imm = wasm.CallImm{FuncIdx: shiftIdx(imm.FuncIdx, threshold, delta)}
				changed = true
			}
		case wasm.OpRefFunc:
			imm := instrs[i].Imm.(wasm.RefFuncImm)
			if imm.FuncIdx >= threshold {
				instrs[i].Imm = wasm.RefFuncImm{FuncIdx: shiftIdx(imm.FuncIdx, threshold, delta)}
				changed = true
			}
		}
	}
	if !changed {
		return code
	}
	return wasm.EncodeInstructions(instrs)
}
