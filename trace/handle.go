package trace

// handleKind fixes the cell kind of a Heap handle at the type level.
type handleKind interface {
	kind() Kind
	label() string
}

type objectKind struct{}

func (objectKind) kind() Kind    { return KindObject }
func (objectKind) label() string { return "heap object" }

type stringKind struct{}

func (stringKind) kind() Kind    { return KindString }
func (stringKind) label() string { return "heap string" }

type scriptKind struct{}

func (scriptKind) kind() Kind    { return KindScript }
func (scriptKind) label() string { return "heap script" }

// Heap is a native handle to a cell of a fixed kind in the external heap.
// The zero Heap is unbound and traces nothing; use the New* constructors.
type Heap[K handleKind] struct {
	cell *Ref
}

type (
	// HeapObject holds a reference to an object cell.
	HeapObject = Heap[objectKind]
	// HeapString holds a reference to a string cell.
	HeapString = Heap[stringKind]
	// HeapScript holds a reference to a compiled script cell.
	HeapScript = Heap[scriptKind]
)

// NewHeapObject binds a new object handle to ref.
func NewHeapObject(ref Ref) HeapObject { return HeapObject{cell: &ref} }

// NewHeapString binds a new string handle to ref.
func NewHeapString(ref Ref) HeapString { return HeapString{cell: &ref} }

// NewHeapScript binds a new script handle to ref.
func NewHeapScript(ref Ref) HeapScript { return HeapScript{cell: &ref} }

// Get returns the current location of the referenced cell.
func (h Heap[K]) Get() Ref {
	if h.cell == nil {
		return 0
	}
	return *h.cell
}

// Set points the handle at ref. All copies of the handle observe the change.
func (h Heap[K]) Set(ref Ref) {
	if h.cell == nil {
		panic("trace: Set on unbound heap handle")
	}
	*h.cell = ref
}

// IsNull reports whether the handle is unbound or holds a null reference.
func (h Heap[K]) IsNull() bool { return h.Get() == 0 }

// IsBound reports whether the handle was created by a constructor.
func (h Heap[K]) IsBound() bool { return h.cell != nil }

// Kind returns the cell kind the handle refers to.
func (h Heap[K]) Kind() Kind {
	var k K
	return k.kind()
}

// Trace reports the reference to the collector. Null handles are skipped.
func (h Heap[K]) Trace(trc Tracer) {
	if h.cell == nil || *h.cell == 0 {
		return
	}
	var k K
	trc.TraceEdge(k.kind(), h.cell, k.label())
}

// HeapValue is a native handle to a tagged value that may reference a cell.
type HeapValue struct {
	cell *Value
}

// NewHeapValue binds a new value handle to v.
func NewHeapValue(v Value) HeapValue { return HeapValue{cell: &v} }

// Get returns the current value.
func (h HeapValue) Get() Value {
	if h.cell == nil {
		return UndefinedValue()
	}
	return *h.cell
}

// Set replaces the value. All copies of the handle observe the change.
func (h HeapValue) Set(v Value) {
	if h.cell == nil {
		panic("trace: Set on unbound heap value")
	}
	*h.cell = v
}

// IsBound reports whether the handle was created by NewHeapValue.
func (h HeapValue) IsBound() bool { return h.cell != nil }

// Trace reports the referenced cell when the value is markable.
func (h HeapValue) Trace(trc Tracer) {
	if h.cell == nil || !h.cell.IsMarkable() {
		return
	}
	trc.TraceEdge(h.cell.TraceKind(), &h.cell.ref, "heap value")
}
