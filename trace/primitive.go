package trace

import "time"

// The types below hold no heap references. Each has an explicit empty Trace
// so that using them in a traced structure is an audited decision.

// NoHandles can be embedded in a struct that holds no heap references.
type NoHandles struct{}

func (NoHandles) Trace(Tracer)        {}
func (NoHandles) AssertTransferable() {}

type (
	Bool     bool
	Int      int
	Int32    int32
	Int64    int64
	Uint32   uint32
	Uint64   uint64
	Float64  float64
	Str      string
	Bytes    []byte
	Duration time.Duration
)

func (Bool) Trace(Tracer)     {}
func (Int) Trace(Tracer)      {}
func (Int32) Trace(Tracer)    {}
func (Int64) Trace(Tracer)    {}
func (Uint32) Trace(Tracer)   {}
func (Uint64) Trace(Tracer)   {}
func (Float64) Trace(Tracer)  {}
func (Str) Trace(Tracer)      {}
func (Bytes) Trace(Tracer)    {}
func (Duration) Trace(Tracer) {}

func (Bool) AssertTransferable()     {}
func (Int) AssertTransferable()      {}
func (Int32) AssertTransferable()    {}
func (Int64) AssertTransferable()    {}
func (Uint32) AssertTransferable()   {}
func (Uint64) AssertTransferable()   {}
func (Float64) AssertTransferable()  {}
func (Str) AssertTransferable()      {}
func (Duration) AssertTransferable() {}

// Untraced wraps an arbitrary Go value audited to hold no heap references,
// such as a host closure, a file or a wazero object.
type Untraced[T any] struct {
	V T
}

// Trace does nothing.
func (Untraced[T]) Trace(Tracer) {}
