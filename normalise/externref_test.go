package normalise

import (
	"testing"

	"github.com/lunatic-solutions/lunatic-go/wasm"
)

func TestInjectExternrefPlumbingAddsTableAndExports(t *testing.T) {
	m := simpleModule()
	injectExternrefPlumbing(m)

	if len(m.Tables) != 1 || m.Tables[0].ElemType != wasm.ValExtern {
		t.Fatalf("expected one externref table, got %+v", m.Tables)
	}

	var sawSave, sawDrop bool
	for _, exp := range m.Exports {
		switch exp.Name {
		case "_lunatic_externref_save":
			sawSave = true
			ft := m.GetFuncType(exp.Idx)
			if ft == nil || len(ft.Params) != 1 || ft.Params[0] != wasm.ValExtern {
				t.Fatalf("save export has wrong signature: %+v", ft)
			}
		case "_lunatic_externref_drop":
			sawDrop = true
			ft := m.GetFuncType(exp.Idx)
			if ft == nil || len(ft.Params) != 1 || ft.Params[0] != wasm.ValI32 {
				t.Fatalf("drop export has wrong signature: %+v", ft)
			}
		}
	}
	if !sawSave || !sawDrop {
		t.Fatalf("expected both externref helper exports, save=%v drop=%v", sawSave, sawDrop)
	}
}

// spawnImportModule imports lunatic::spawn with the mismatched
// i32-in-place-of-externref signature a Rust/C toolchain would emit
// ((param i32 i64) (result i32) instead of (result externref)), plus a
// local function that calls it.
func spawnImportModule() *wasm.Module {
	callerBody := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
		{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: 2}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}},
		{Opcode: wasm.OpDrop},
		{Opcode: wasm.OpEnd},
	})
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Results: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "lunatic", Name: "spawn", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs: []uint32{1},
		Code:  []wasm.FuncBody{{Code: callerBody}},
	}
}

func TestInjectExternrefPlumbingWrapsMismatchedSpawnImport(t *testing.T) {
	m := spawnImportModule()
	injectExternrefPlumbing(m)

	realType := m.GetFuncType(0)
	if realType == nil || len(realType.Results) != 1 || realType.Results[0] != wasm.ValExtern {
		t.Fatalf("expected spawn import retyped to return externref, got %+v", realType)
	}

	// caller (func index 1, originally the only local function) must now
	// call the wrapper instead of the raw import.
	callerInstrs, err := wasm.DecodeInstructions(m.Code[0].Code)
	if err != nil {
		t.Fatal(err)
	}
	var callerTarget uint32
	var sawCall bool
	for _, ins := range callerInstrs {
		if ins.Opcode == wasm.OpCall {
			callerTarget = ins.Imm.(wasm.CallImm).FuncIdx
			sawCall = true
		}
	}
	if !sawCall {
		t.Fatal("expected caller to still contain a call instruction")
	}
	if callerTarget == 0 {
		t.Fatal("expected caller's call site redirected away from the raw import")
	}

	wrapperFt := m.GetFuncType(callerTarget)
	if wrapperFt == nil || len(wrapperFt.Results) != 1 || wrapperFt.Results[0] != wasm.ValI32 {
		t.Fatalf("expected wrapper to keep the guest-facing i32 signature, got %+v", wrapperFt)
	}

	// The wrapper's own body must call the (now retyped) import and then
	// the save helper to convert its externref result back to an i32 slot.
	wrapperCodeIdx := int(callerTarget) - m.NumImportedFuncs()
	wrapperInstrs, err := wasm.DecodeInstructions(m.Code[wrapperCodeIdx].Code)
	if err != nil {
		t.Fatal(err)
	}
	var calledOrig bool
	var callCount int
	for _, ins := range wrapperInstrs {
		if ins.Opcode == wasm.OpCall {
			callCount++
			if ins.Imm.(wasm.CallImm).FuncIdx == 0 {
				calledOrig = true
			}
		}
	}
	if !calledOrig {
		t.Fatal("expected wrapper to call the retyped import")
	}
	if callCount != 2 {
		t.Fatalf("expected wrapper to call the import and the save helper, got %d calls", callCount)
	}
}

// dropExternrefImportModule imports lunatic::drop_externref (param i32)
// and a caller that invokes it.
func dropExternrefImportModule() *wasm.Module {
	callerBody := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 3}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}},
		{Opcode: wasm.OpEnd},
	})
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "lunatic", Name: "drop_externref", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs: []uint32{1},
		Code:  []wasm.FuncBody{{Code: callerBody}},
	}
}

func TestInjectExternrefPlumbingRedirectsDropExternrefCallSites(t *testing.T) {
	m := dropExternrefImportModule()
	injectExternrefPlumbing(m)

	var dropFuncIdx uint32
	for _, exp := range m.Exports {
		if exp.Name == "_lunatic_externref_drop" {
			dropFuncIdx = exp.Idx
		}
	}

	instrs, err := wasm.DecodeInstructions(m.Code[0].Code)
	if err != nil {
		t.Fatal(err)
	}
	var target uint32
	for _, ins := range instrs {
		if ins.Opcode == wasm.OpCall {
			target = ins.Imm.(wasm.CallImm).FuncIdx
		}
	}
	if target != dropFuncIdx {
		t.Fatalf("expected drop_externref call site redirected to local drop helper %d, got %d", dropFuncIdx, target)
	}
}
