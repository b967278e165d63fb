package root

import (
	"github.com/wippyai/gcroot/trace"
)

// Root keeps a traceable value reachable while it is registered.
// The value lives behind the Root pointer, so the collector can rewrite the
// references it holds; read it back with Get after any collection.
type Root[T trace.Traceable] struct {
	reg *Registry
	val T
}

// New stores v in a fresh root and registers it with reg.
// The caller must call Release, usually with defer.
func New[T trace.Traceable](reg *Registry, v T) (*Root[T], error) {
	r := &Root[T]{reg: reg, val: v}
	if err := reg.Add(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the rooted value.
func (r *Root[T]) Get() T { return r.val }

// Ptr returns a pointer to the rooted value, valid until Release.
func (r *Root[T]) Ptr() *T { return &r.val }

// Set replaces the rooted value.
func (r *Root[T]) Set(v T) { r.val = v }

func (r *Root[T]) Trace(trc trace.Tracer) { r.val.Trace(trc) }

// Release deregisters the root and then clears the value.
// Releasing twice terminates the process.
func (r *Root[T]) Release() {
	r.reg.Remove(r)
	var zero T
	r.val = zero
}

// Scope roots v for the duration of fn. The root is released on every exit
// from fn, including a panic.
func Scope[T trace.Traceable](reg *Registry, v T, fn func(r *Root[T]) error) error {
	r, err := New(reg, v)
	if err != nil {
		return err
	}
	defer r.Release()
	return fn(r)
}

type (
	// Object is a rooted object handle.
	Object = Root[trace.HeapObject]
	// String is a rooted string handle.
	String = Root[trace.HeapString]
	// Script is a rooted compiled script handle.
	Script = Root[trace.HeapScript]
	// Value is a rooted tagged value.
	Value = Root[trace.HeapValue]
)

// NewObject roots an object reference.
func NewObject(reg *Registry, ref trace.Ref) (*Object, error) {
	return New(reg, trace.NewHeapObject(ref))
}

// NewString roots a string reference.
func NewString(reg *Registry, ref trace.Ref) (*String, error) {
	return New(reg, trace.NewHeapString(ref))
}

// NewScript roots a script reference.
func NewScript(reg *Registry, ref trace.Ref) (*Script, error) {
	return New(reg, trace.NewHeapScript(ref))
}

// NewValue roots a tagged value.
func NewValue(reg *Registry, v trace.Value) (*Value, error) {
	return New(reg, trace.NewHeapValue(v))
}
