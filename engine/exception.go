package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

// ErrorInfo describes a reported exception.
type ErrorInfo struct {
	Message  string
	Filename string
	Line     uint32
	Column   uint32
}

func (e ErrorInfo) String() string {
	return fmt.Sprintf("Error at %s:%d:%d %s", e.Filename, e.Line, e.Column, e.Message)
}

// ThrowError makes a new Error object with msg the pending exception and
// returns the matching exception error, so native functions can write
// return engine.ThrowError(cx, "...").
func ThrowError(cx *gcsafe.Context, msg string) error {
	cx.MayGC()
	r := runtimeOf(cx)
	if err := r.throw(cx, classError, msg); err != nil {
		return err
	}
	return errors.Exception(errors.PhaseCall, msg, nil)
}

// ThrowValue makes v the pending exception.
func ThrowValue(cx *gcsafe.Context, v trace.Value) error {
	cx.MayGC()
	r := runtimeOf(cx)
	r.setPending(v)
	return errors.Exception(errors.PhaseCall, "uncaught "+v.Tag().String(), nil)
}

func (r *Runtime) throwTypeError(cx *gcsafe.Context, msg string) error {
	if err := r.throw(cx, "TypeError", msg); err != nil {
		return err
	}
	return errors.Exception(errors.PhaseCall, msg, nil)
}

// throw builds an error object and makes it the pending exception. The
// returned error is non-nil only when the object could not be allocated.
func (r *Runtime) throw(cx *gcsafe.Context, name, msg string) error {
	o := newObject(classError, nil)
	obj, err := allocObject(cx, o)
	if err != nil {
		return err
	}
	defer obj.Release()

	nameRef, err := cx.Alloc(trace.KindString, name)
	if err != nil {
		return err
	}
	o.set("name", trace.StringValue(nameRef))

	msgRef, err := cx.Alloc(trace.KindString, msg)
	if err != nil {
		return err
	}
	o.set("message", trace.StringValue(msgRef))

	fileRef, err := cx.Alloc(trace.KindString, r.name)
	if err != nil {
		return err
	}
	o.set("fileName", trace.StringValue(fileRef))
	o.set("lineNumber", trace.Int32Value(0))
	o.set("columnNumber", trace.Int32Value(0))

	r.setPending(ObjectValue(obj))
	r.log.Debug("exception thrown", zap.String("name", name), zap.String("message", msg))
	return nil
}

func (r *Runtime) setPending(v trace.Value) {
	r.exception.Get().Set(v)
	r.pending = true
}

// IsExceptionPending reports whether an exception is pending.
func IsExceptionPending(cx *gcsafe.Context) bool {
	return runtimeOf(cx).pending
}

// GetPendingException stores the pending exception in rval. It reports
// false when none is pending.
func GetPendingException(cx *gcsafe.Context, rval *root.Value) bool {
	r := runtimeOf(cx)
	if !r.pending {
		return false
	}
	rval.Get().Set(r.exception.Get().Get())
	return true
}

// ClearPendingException drops the pending exception.
func ClearPendingException(cx *gcsafe.Context) {
	r := runtimeOf(cx)
	r.exception.Get().Set(trace.UndefinedValue())
	r.pending = false
}

// ReportException takes the pending exception, clears it and describes it.
// It reports false when no exception is pending.
func ReportException(cx *gcsafe.Context) (ErrorInfo, bool) {
	r := runtimeOf(cx)
	if !r.pending {
		return ErrorInfo{}, false
	}
	exc, err := root.NewValue(cx.Roots(), r.exception.Get().Get())
	if err != nil {
		r.log.Error("report exception", zap.Error(err))
		ClearPendingException(cx)
		return ErrorInfo{Message: "uncaught exception"}, true
	}
	defer exc.Release()
	ClearPendingException(cx)

	return gcsafe.WithNoGC(cx, func(nogc *gcsafe.NoGC) ErrorInfo {
		return errorInfo(nogc, exc.Get().Get())
	}), true
}

func errorInfo(nogc *gcsafe.NoGC, v trace.Value) ErrorInfo {
	if v.IsObject() {
		if p, ok := nogc.Get(v.AsObject()); ok {
			if o, ok := p.(*object); ok && o.class == classError {
				info := ErrorInfo{Filename: "none"}
				if s, ok := ValueString(nogc, o.get("message")); ok {
					info.Message = s
				}
				if name, ok := ValueString(nogc, o.get("name")); ok && name != "Error" {
					info.Message = name + ": " + info.Message
				}
				if s, ok := ValueString(nogc, o.get("fileName")); ok {
					info.Filename = s
				}
				info.Line = uint32(o.get("lineNumber").AsInt32())
				info.Column = uint32(o.get("columnNumber").AsInt32())
				return info
			}
		}
	}
	if s, ok := ValueString(nogc, v); ok {
		return ErrorInfo{Message: "uncaught exception: " + s}
	}
	return ErrorInfo{Message: "uncaught exception: " + v.String()}
}
