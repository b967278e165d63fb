// Package wasmenc encodes small core WebAssembly modules. It covers the
// sections needed to build test and example modules by hand: types,
// function imports, functions, memories, exports, code and active data.
package wasmenc

const (
	magic   = 0x6d736100 // "\0asm"
	version = 1
)

// Section IDs.
const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11
)

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

// Export kinds.
const (
	KindFunc   byte = 0x00
	KindMemory byte = 0x02
)

// Opcodes used by hand-written bodies.
const (
	OpUnreachable = 0x00
	OpEnd         = 0x0b
	OpCall        = 0x10
	OpDrop        = 0x1a
	OpLocalGet    = 0x20
	OpI32Load     = 0x28
	OpI32Store    = 0x36
	OpI32Const    = 0x41
	OpI32Add      = 0x6a
	OpI32Mul      = 0x6c
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is a function import.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
}

// Export names a function or memory.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Memory is a memory with a minimum and optional maximum page count.
type Memory struct {
	Max *uint32
	Min uint32
}

// Body is a function body. Code must end with OpEnd.
type Body struct {
	Locals []ValType
	Code   []byte
}

// Data is an active data segment for memory 0 at a constant offset.
type Data struct {
	Init   []byte
	Offset int32
}

// Module is a core module. Function indices count imports first.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32
	Memories []Memory
	Exports  []Export
	Code     []Body
	Data     []Data
}

// Encode encodes the module to the binary format.
func (m *Module) Encode() []byte {
	var w writer
	w.u32le(magic)
	w.u32le(version)

	if len(m.Types) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Types)))
		for _, t := range m.Types {
			sec.byte(0x60)
			writeValTypes(&sec, t.Params)
			writeValTypes(&sec, t.Results)
		}
		w.section(sectionType, &sec)
	}

	if len(m.Imports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.name(imp.Module)
			sec.name(imp.Name)
			sec.byte(KindFunc)
			sec.u32(imp.TypeIdx)
		}
		w.section(sectionImport, &sec)
	}

	if len(m.Funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Funcs)))
		for _, idx := range m.Funcs {
			sec.u32(idx)
		}
		w.section(sectionFunction, &sec)
	}

	if len(m.Memories) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			if mem.Max != nil {
				sec.byte(0x01)
				sec.u32(mem.Min)
				sec.u32(*mem.Max)
			} else {
				sec.byte(0x00)
				sec.u32(mem.Min)
			}
		}
		w.section(sectionMemory, &sec)
	}

	if len(m.Exports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.name(exp.Name)
			sec.byte(exp.Kind)
			sec.u32(exp.Idx)
		}
		w.section(sectionExport, &sec)
	}

	if len(m.Code) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Code)))
		for _, body := range m.Code {
			var b writer
			b.u32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				b.u32(1)
				b.byte(byte(l))
			}
			b.write(body.Code)
			sec.u32(uint32(b.buf.Len()))
			sec.write(b.bytes())
		}
		w.section(sectionCode, &sec)
	}

	if len(m.Data) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.u32(0)
			sec.byte(OpI32Const)
			sec.s64(int64(d.Offset))
			sec.byte(OpEnd)
			sec.u32(uint32(len(d.Init)))
			sec.write(d.Init)
		}
		w.section(sectionData, &sec)
	}

	return w.bytes()
}

func writeValTypes(w *writer, types []ValType) {
	w.u32(uint32(len(types)))
	for _, t := range types {
		w.byte(byte(t))
	}
}

// I32Const returns the instruction pushing v.
func I32Const(v int32) []byte {
	var w writer
	w.byte(OpI32Const)
	w.s64(int64(v))
	return w.bytes()
}

// Code concatenates instruction fragments and appends OpEnd.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return append(out, OpEnd)
}

// Op returns single-byte instructions with their immediates as given.
func Op(b ...byte) []byte { return b }
