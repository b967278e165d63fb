package trace

import "fmt"

// Ref is a raw reference into the external heap. The zero Ref is null.
// A Ref is only meaningful until the next collection, which may move the
// referenced cell; hold it through a heap handle reachable from a root.
type Ref uint64

// IsNull reports whether the reference is null (zero).
func (r Ref) IsNull() bool { return r == 0 }

func (r Ref) String() string { return fmt.Sprintf("Ref(0x%x)", uint64(r)) }

// Kind identifies the type of cell a reference points at.
type Kind uint8

const (
	KindNone Kind = iota
	KindObject
	KindString
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindString:
		return "string"
	case KindScript:
		return "script"
	default:
		return "none"
	}
}

// Tracer is the visitor handed down by the collector during its mark phase.
// Implementations receive a pointer to each edge so that a moving collector
// can rewrite the reference in place. Trace implementations forward the
// tracer untouched.
type Tracer interface {
	TraceEdge(kind Kind, edge *Ref, name string)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(kind Kind, edge *Ref, name string)

// TraceEdge calls f.
func (f TracerFunc) TraceEdge(kind Kind, edge *Ref, name string) {
	f(kind, edge, name)
}

// Traceable is implemented by every value that can hold heap references.
// Trace must visit every reference exactly once per pass. It must not fail,
// allocate in the external heap, or skip references under any condition.
type Traceable interface {
	Trace(trc Tracer)
}

// Transferable marks values audited as safe to hand to another runtime
// goroutine. The method has no behavior; implementing it is a statement that
// the value's internal synchronization is sound for cross-goroutine use.
// Heap handles never implement it: a reference is only meaningful to the
// heap that issued it.
type Transferable interface {
	Traceable
	AssertTransferable()
}
