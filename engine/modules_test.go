package engine

import (
	"github.com/wippyai/gcroot/internal/wasmenc"
)

// hiWasm imports env.bar (i32) -> i32 and exports foo, which returns
// bar(42).
var hiWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x0a, 0x02, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x60, 0x00, 0x01, 0x7f, 0x02, 0x0b, 0x01, 0x03, 0x65, 0x6e, 0x76, 0x03, 0x62, 0x61, 0x72, 0x00,
	0x00, 0x03, 0x02, 0x01, 0x01, 0x07, 0x07, 0x01, 0x03, 0x66, 0x6f, 0x6f, 0x00, 0x01, 0x0a, 0x08,
	0x01, 0x06, 0x00, 0x41, 0x2a, 0x10, 0x00, 0x0b,
}

func hiModule() *wasmenc.Module {
	return &wasmenc.Module{
		Types: []wasmenc.FuncType{
			{Params: []wasmenc.ValType{wasmenc.I32}, Results: []wasmenc.ValType{wasmenc.I32}},
			{Results: []wasmenc.ValType{wasmenc.I32}},
		},
		Imports: []wasmenc.Import{{Module: "env", Name: "bar", TypeIdx: 0}},
		Funcs:   []uint32{1},
		Exports: []wasmenc.Export{{Name: "foo", Kind: wasmenc.KindFunc, Idx: 1}},
		Code:    []wasmenc.Body{{Code: wasmenc.Code(wasmenc.I32Const(42), wasmenc.Op(wasmenc.OpCall, 0))}},
	}
}

// addModule exports add (i32, i32) -> i32 and a memory whose bytes at
// offset 8 are "hello".
func addModule() []byte {
	one := uint32(1)
	return (&wasmenc.Module{
		Types: []wasmenc.FuncType{{
			Params:  []wasmenc.ValType{wasmenc.I32, wasmenc.I32},
			Results: []wasmenc.ValType{wasmenc.I32},
		}},
		Funcs:    []uint32{0},
		Memories: []wasmenc.Memory{{Min: 1, Max: &one}},
		Exports: []wasmenc.Export{
			{Name: "add", Kind: wasmenc.KindFunc, Idx: 0},
			{Name: "memory", Kind: wasmenc.KindMemory, Idx: 0},
		},
		Code: []wasmenc.Body{{Code: wasmenc.Code(
			wasmenc.Op(wasmenc.OpLocalGet, 0),
			wasmenc.Op(wasmenc.OpLocalGet, 1),
			wasmenc.Op(wasmenc.OpI32Add),
		)}},
		Data: []wasmenc.Data{{Offset: 8, Init: []byte("hello")}},
	}).Encode()
}

// pairModule imports env.bar (i32) -> (i32, i32), which a host function
// cannot serve.
func pairModule() []byte {
	return (&wasmenc.Module{
		Types: []wasmenc.FuncType{{
			Params:  []wasmenc.ValType{wasmenc.I32},
			Results: []wasmenc.ValType{wasmenc.I32, wasmenc.I32},
		}},
		Imports: []wasmenc.Import{{Module: "env", Name: "bar", TypeIdx: 0}},
	}).Encode()
}

// trapModule exports boom, which executes unreachable.
func trapModule() []byte {
	return (&wasmenc.Module{
		Types:   []wasmenc.FuncType{{}},
		Funcs:   []uint32{0},
		Exports: []wasmenc.Export{{Name: "boom", Kind: wasmenc.KindFunc, Idx: 0}},
		Code:    []wasmenc.Body{{Code: wasmenc.Code(wasmenc.Op(wasmenc.OpUnreachable))}},
	}).Encode()
}

// exitModule exports _start, which calls WASI proc_exit(code).
func exitModule(code int32) []byte {
	return (&wasmenc.Module{
		Types: []wasmenc.FuncType{
			{Params: []wasmenc.ValType{wasmenc.I32}},
			{},
		},
		Imports: []wasmenc.Import{{Module: "wasi_snapshot_preview1", Name: "proc_exit", TypeIdx: 0}},
		Funcs:   []uint32{1},
		Exports: []wasmenc.Export{{Name: "_start", Kind: wasmenc.KindFunc, Idx: 1}},
		Code:    []wasmenc.Body{{Code: wasmenc.Code(wasmenc.I32Const(code), wasmenc.Op(wasmenc.OpCall, 0))}},
	}).Encode()
}
