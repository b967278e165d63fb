package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/heap"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

// Object classes.
const (
	classObject   = "Object"
	classGlobal   = "Global"
	classFunction = "Function"
	classError    = "Error"
	classInstance = "Instance"
	classMemory   = "Memory"
)

// object is the payload of an object cell.
type object struct {
	props  *trace.OrderedMap[trace.Str, trace.HeapValue]
	native any
	class  string
}

func newObject(class string, native any) *object {
	return &object{
		class:  class,
		native: native,
		props:  trace.NewOrderedMap[trace.Str, trace.HeapValue](),
	}
}

func (o *object) Trace(trc trace.Tracer) {
	o.props.Trace(trc)
	if t, ok := o.native.(trace.Traceable); ok {
		t.Trace(trc)
	}
}

func (o *object) Finalize() {
	if f, ok := o.native.(heap.Finalizer); ok {
		f.Finalize()
	}
}

func (o *object) get(name string) trace.Value {
	v, ok := o.props.Get(trace.Str(name))
	if !ok {
		return trace.UndefinedValue()
	}
	return v.Get()
}

func (o *object) set(name string, v trace.Value) {
	if cur, ok := o.props.Get(trace.Str(name)); ok {
		cur.Set(v)
		return
	}
	o.props.Set(trace.Str(name), trace.NewHeapValue(v))
}

// objectAt returns the object payload behind ref.
func (r *Runtime) objectAt(ref trace.Ref) (*object, bool) {
	p, ok := r.heap.Get(ref)
	if !ok {
		return nil, false
	}
	o, ok := p.(*object)
	return o, ok
}

// mustObject returns the payload of a rooted object handle. A rooted handle
// that does not resolve means a missed root.
func (r *Runtime) mustObject(ref trace.Ref) *object {
	o, ok := r.heap.MustGet(ref).(*object)
	if !ok {
		r.log.Fatal("object handle does not point at an object", zap.Stringer("ref", ref))
	}
	return o
}

// allocObject allocates an object cell and roots it.
func allocObject(cx *gcsafe.Context, o *object) (*root.Object, error) {
	ref, err := cx.Alloc(trace.KindObject, o)
	if err != nil {
		return nil, err
	}
	return root.NewObject(cx.Roots(), ref)
}

// NewPlainObject allocates an empty object.
func NewPlainObject(cx *gcsafe.Context) (*root.Object, error) {
	return allocObject(cx, newObject(classObject, nil))
}

// NewString allocates a string.
func NewString(cx *gcsafe.Context, s string) (*root.String, error) {
	ref, err := cx.Alloc(trace.KindString, s)
	if err != nil {
		return nil, err
	}
	return root.NewString(cx.Roots(), ref)
}

// NewStringValue allocates a string and roots it as a value.
func NewStringValue(cx *gcsafe.Context, s string) (*root.Value, error) {
	ref, err := cx.Alloc(trace.KindString, s)
	if err != nil {
		return nil, err
	}
	return root.NewValue(cx.Roots(), trace.StringValue(ref))
}

// NewValue roots an immediate or referencing value.
func NewValue(cx *gcsafe.Context, v trace.Value) (*root.Value, error) {
	return root.NewValue(cx.Roots(), v)
}

// ObjectValue returns the value referencing a rooted object.
func ObjectValue(obj *root.Object) trace.Value {
	return trace.ObjectValue(obj.Get().Get())
}

// StringChars returns the contents of a string. The result does not need
// the token to stay valid, but the string cell may only be read under one.
func StringChars(nogc *gcsafe.NoGC, s *root.String) (string, bool) {
	p, ok := nogc.Get(s.Get().Get())
	if !ok {
		return "", false
	}
	str, ok := p.(string)
	return str, ok
}

// ValueString returns the contents of a string value.
func ValueString(nogc *gcsafe.NoGC, v trace.Value) (string, bool) {
	if !v.IsString() {
		return "", false
	}
	p, ok := nogc.Get(v.AsString())
	if !ok {
		return "", false
	}
	str, ok := p.(string)
	return str, ok
}

// ObjectClass returns the class name of an object.
func ObjectClass(nogc *gcsafe.NoGC, obj *root.Object) string {
	p, ok := nogc.Get(obj.Get().Get())
	if !ok {
		return ""
	}
	if o, ok := p.(*object); ok {
		return o.class
	}
	return ""
}

// PropertyNames returns the property names of an object in order.
func PropertyNames(nogc *gcsafe.NoGC, obj *root.Object) []string {
	p, ok := nogc.Get(obj.Get().Get())
	if !ok {
		return nil
	}
	o, ok := p.(*object)
	if !ok {
		return nil
	}
	keys := o.props.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return names
}

// SetProperty sets obj[name] to the value of v.
func SetProperty(cx *gcsafe.Context, obj *root.Object, name string, v *root.Value) error {
	cx.MayGC()
	r := runtimeOf(cx)
	r.mustObject(obj.Get().Get()).set(name, v.Get().Get())
	return nil
}

// SetPropertyValue sets obj[name] to v. v must not reference a cell that
// is only kept alive by the caller's local variables.
func SetPropertyValue(cx *gcsafe.Context, obj *root.Object, name string, v trace.Value) error {
	cx.MayGC()
	r := runtimeOf(cx)
	r.mustObject(obj.Get().Get()).set(name, v)
	return nil
}

// GetProperty stores obj[name] in rval. A missing property is undefined.
func GetProperty(cx *gcsafe.Context, obj *root.Object, name string, rval *root.Value) error {
	cx.MayGC()
	r := runtimeOf(cx)
	rval.Get().Set(r.mustObject(obj.Get().Get()).get(name))
	return nil
}

// GetObjectProperty stores obj[name] in rval and reports a type mismatch
// when the property is not an object.
func GetObjectProperty(cx *gcsafe.Context, obj *root.Object, name string, rval *root.Object) error {
	cx.MayGC()
	r := runtimeOf(cx)
	v := r.mustObject(obj.Get().Get()).get(name)
	if v.IsUndefined() {
		return errors.NotFound(errors.PhaseEngine, "property", name)
	}
	if !v.IsObject() {
		return errors.TypeMismatch(errors.PhaseEngine, []string{name}, "object", v.Tag().String())
	}
	rval.Get().Set(v.AsObject())
	return nil
}

// GC runs a full collection of the runtime heap.
func GC(cx *gcsafe.Context) heap.Stats {
	return cx.GC("api")
}
