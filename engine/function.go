package engine

import (
	stderrors "errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

// NativeFunc implements a function object in Go. Arguments and the return
// value are rooted for the duration of the call. Returning an error leaves
// a pending exception: the one the function threw, or one built from the
// error message.
type NativeFunc func(cx *gcsafe.Context, args *CallArgs) error

// CallArgs are the rooted arguments of a native call.
type CallArgs struct {
	args *root.Vec[trace.HeapValue]
	rval *root.Value
}

// Len returns the number of arguments passed.
func (a *CallArgs) Len() int { return a.args.Len() }

// Get returns argument i, or undefined when fewer were passed.
func (a *CallArgs) Get(i int) trace.Value {
	if i < 0 || i >= a.args.Len() {
		return trace.UndefinedValue()
	}
	return a.args.At(i).Get()
}

// Rval returns the rooted return value slot.
func (a *CallArgs) Rval() *root.Value { return a.rval }

// SetReturn sets the return value.
func (a *CallArgs) SetReturn(v trace.Value) { a.rval.Get().Set(v) }

// function is the native part of a function object.
type function struct {
	native NativeFunc
	wasm   api.Function
	// owner keeps the exporting instance alive.
	owner trace.HeapObject
	name  string
	arity int
}

func (f *function) Trace(trc trace.Tracer) { f.owner.Trace(trc) }

// ExitError reports that a WASI program called proc_exit with a non-zero
// code.
type ExitError struct {
	Code uint32
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// NewFunction allocates a function object backed by fn.
func NewFunction(cx *gcsafe.Context, name string, arity int, fn NativeFunc) (*root.Object, error) {
	o := newObject(classFunction, &function{native: fn, name: name, arity: arity})
	obj, err := allocObject(cx, o)
	if err != nil {
		return nil, err
	}
	o.set("length", trace.Int32Value(int32(arity)))
	nameRef, err := cx.Alloc(trace.KindString, name)
	if err != nil {
		obj.Release()
		return nil, err
	}
	o.set("name", trace.StringValue(nameRef))
	return obj, nil
}

// DefineFunction creates a function object and stores it as obj[name].
func DefineFunction(cx *gcsafe.Context, obj *root.Object, name string, arity int, fn NativeFunc) (*root.Object, error) {
	f, err := NewFunction(cx, name, arity, fn)
	if err != nil {
		return nil, err
	}
	if err := SetPropertyValue(cx, obj, name, ObjectValue(f)); err != nil {
		f.Release()
		return nil, err
	}
	return f, nil
}

// IsCallable reports whether v is a function object.
func IsCallable(nogc *gcsafe.NoGC, v trace.Value) bool {
	if !v.IsObject() {
		return false
	}
	p, ok := nogc.Get(v.AsObject())
	if !ok {
		return false
	}
	o, ok := p.(*object)
	if !ok {
		return false
	}
	_, ok = o.native.(*function)
	return ok
}

// Call invokes the function value fn with args and stores the result in
// rval. args may be nil.
func Call(cx *gcsafe.Context, fn *root.Value, args *root.Vec[trace.HeapValue], rval *root.Value) error {
	cx.MayGC()
	r := runtimeOf(cx)

	v := fn.Get().Get()
	if !v.IsObject() {
		return r.throwTypeError(cx, fmt.Sprintf("%s is not a function", v.Tag()))
	}
	o, ok := r.objectAt(v.AsObject())
	if !ok {
		r.log.Fatal("call through dangling function value")
	}
	f, ok := o.native.(*function)
	if !ok {
		return r.throwTypeError(cx, o.class+" is not a function")
	}

	if args == nil {
		var err error
		if args, err = root.NewVec[trace.HeapValue](cx.Roots(), 0); err != nil {
			return err
		}
		defer args.Release()
	}
	return r.call(cx, f, args, rval)
}

func (r *Runtime) call(cx *gcsafe.Context, f *function, args *root.Vec[trace.HeapValue], rval *root.Value) error {
	if f.native != nil {
		err := f.native(cx, &CallArgs{args: args, rval: rval})
		if err == nil {
			return nil
		}
		if !r.pending {
			if tErr := r.throw(cx, classError, err.Error()); tErr != nil {
				return tErr
			}
		}
		return errors.Exception(errors.PhaseCall, "native function "+f.name, err)
	}

	def := f.wasm.Definition()
	params := def.ParamTypes()
	in := make([]uint64, len(params))
	for i, t := range params {
		arg := trace.UndefinedValue()
		if i < args.Len() {
			arg = args.At(i).Get()
		}
		in[i] = toWasm(t, arg)
	}

	out, err := f.wasm.Call(r.context(), in...)
	if err != nil {
		return r.callError(cx, f, err)
	}
	if results := def.ResultTypes(); len(results) > 0 {
		rval.Get().Set(fromWasm(results[0], out[0]))
	} else {
		rval.Get().Set(trace.UndefinedValue())
	}
	return nil
}

func (r *Runtime) callError(cx *gcsafe.Context, f *function, err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		if exit.ExitCode() == 0 {
			return nil
		}
		return &ExitError{Code: exit.ExitCode()}
	}
	if r.pending {
		// thrown by a host function while the export was running
		return errors.Exception(errors.PhaseCall, "exception in "+f.name, err)
	}
	if tErr := r.throw(cx, "RuntimeError", err.Error()); tErr != nil {
		return tErr
	}
	return errors.Exception(errors.PhaseCall, "trap in "+f.name, err)
}

// toWasm converts a value to a wasm parameter of type t.
func toWasm(t api.ValueType, v trace.Value) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(v.AsInt32())
	case api.ValueTypeI64:
		return api.EncodeI64(int64(v.AsDouble()))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.AsDouble()))
	case api.ValueTypeF64:
		return api.EncodeF64(v.AsDouble())
	default:
		return 0
	}
}

// fromWasm converts a wasm result of type t to a value.
func fromWasm(t api.ValueType, x uint64) trace.Value {
	switch t {
	case api.ValueTypeI32:
		return trace.Int32Value(api.DecodeI32(x))
	case api.ValueTypeI64:
		return trace.DoubleValue(float64(int64(x)))
	case api.ValueTypeF32:
		return trace.DoubleValue(float64(api.DecodeF32(x)))
	case api.ValueTypeF64:
		return trace.DoubleValue(api.DecodeF64(x))
	default:
		return trace.UndefinedValue()
	}
}
