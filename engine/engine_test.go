package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// baseRoots is the number of roots a runtime holds for itself: the global
// object and the pending exception slot.
const baseRoots = 2

func newTestRuntime(t *testing.T, cfg Config, opts ...Option) *Runtime {
	t.Helper()
	log := zaptest.NewLogger(t,
		zaptest.Level(zapcore.InfoLevel),
		zaptest.WrapOptions(zap.WithFatalHook(zapcore.WriteThenPanic)))
	rt, err := New(context.Background(), cfg, append([]Option{WithLogger(log), WithName("test.wasm")}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Close(context.Background()); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return rt
}

func echo(_ *gcsafe.Context, args *CallArgs) error {
	args.SetReturn(args.Get(0))
	return nil
}

// envImports builds {env: {bar: bar}}.
func envImports(cx *gcsafe.Context, bar NativeFunc) (*root.Object, error) {
	imports, err := NewPlainObject(cx)
	if err != nil {
		return nil, err
	}
	env, err := NewPlainObject(cx)
	if err != nil {
		imports.Release()
		return nil, err
	}
	defer env.Release()

	fn, err := DefineFunction(cx, env, "bar", 1, bar)
	if err != nil {
		imports.Release()
		return nil, err
	}
	fn.Release()

	if err := SetPropertyValue(cx, imports, "env", ObjectValue(env)); err != nil {
		imports.Release()
		return nil, err
	}
	return imports, nil
}

// loadExports compiles and instantiates wasm and returns its exports.
func loadExports(cx *gcsafe.Context, wasm []byte, imports *root.Object) (*root.Object, error) {
	script, err := CompileModule(cx, wasm)
	if err != nil {
		return nil, err
	}
	defer script.Release()

	inst, err := Instantiate(cx, script, imports)
	if err != nil {
		return nil, err
	}
	defer inst.Release()

	exports, err := root.NewObject(cx.Roots(), 0)
	if err != nil {
		return nil, err
	}
	if err := GetObjectProperty(cx, inst, "exports", exports); err != nil {
		exports.Release()
		return nil, err
	}
	return exports, nil
}

func callExport(cx *gcsafe.Context, exports *root.Object, name string, args ...trace.Value) (trace.Value, error) {
	fn, err := NewValue(cx, trace.UndefinedValue())
	if err != nil {
		return trace.Value{}, err
	}
	defer fn.Release()
	if err := GetProperty(cx, exports, name, fn); err != nil {
		return trace.Value{}, err
	}

	vec, err := root.NewVec[trace.HeapValue](cx.Roots(), len(args))
	if err != nil {
		return trace.Value{}, err
	}
	defer vec.Release()
	for _, a := range args {
		vec.Push(trace.NewHeapValue(a))
	}

	rval, err := NewValue(cx, trace.UndefinedValue())
	if err != nil {
		return trace.Value{}, err
	}
	defer rval.Release()

	err = Call(cx, fn, vec, rval)
	return rval.Get().Get(), err
}

func assertRootsBalanced(t *testing.T, rt *Runtime) {
	t.Helper()
	st, err := rt.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Roots != baseRoots {
		t.Fatalf("expected %d roots after the operation, got %d", baseRoots, st.Roots)
	}
}

func TestEncodedHiModuleMatchesBytes(t *testing.T) {
	if got := hiModule().Encode(); !bytes.Equal(got, hiWasm) {
		t.Fatalf("encoded module differs:\n got % x\nwant % x", got, hiWasm)
	}
}

func TestRuntime_HiWasm(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		imports, err := envImports(cx, echo)
		if err != nil {
			return err
		}
		defer imports.Release()

		exports, err := loadExports(cx, hiWasm, imports)
		if err != nil {
			return err
		}
		defer exports.Release()

		got, err := callExport(cx, exports, "foo")
		if err != nil {
			return err
		}
		if !got.IsInt32() || got.AsInt32() != 42 {
			t.Errorf("expected 42, got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assertRootsBalanced(t, rt)
}

func TestRuntime_CollectionInsideHostCall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GCThreshold = 1
	rt := newTestRuntime(t, cfg)

	collections := 0
	bar := func(cx *gcsafe.Context, args *CallArgs) error {
		// allocate garbage and collect while the export is on the stack
		for i := 0; i < 8; i++ {
			s, err := NewString(cx, "garbage")
			if err != nil {
				return err
			}
			s.Release()
		}
		GC(cx)
		collections++
		args.SetReturn(args.Get(0))
		return nil
	}

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		imports, err := envImports(cx, bar)
		if err != nil {
			return err
		}
		defer imports.Release()

		exports, err := loadExports(cx, hiWasm, imports)
		if err != nil {
			return err
		}
		defer exports.Release()

		for i := 0; i < 3; i++ {
			got, err := callExport(cx, exports, "foo")
			if err != nil {
				return err
			}
			if got.AsInt32() != 42 {
				t.Errorf("call %d: expected 42, got %v", i, got)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if collections != 3 {
		t.Fatalf("expected 3 host calls, got %d", collections)
	}
	assertRootsBalanced(t, rt)

	st, _ := rt.Stats(context.Background())
	if st.Heap.Collections < 3 {
		t.Fatalf("expected at least 3 collections, got %d", st.Heap.Collections)
	}
}

func TestRuntime_MissingImport(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		_, err := loadExports(cx, hiWasm, nil)
		var missing *errors.MissingImportsError
		if !stderrors.As(err, &missing) {
			t.Fatalf("expected MissingImportsError, got %v", err)
		}
		if len(missing.Imports) != 1 || missing.Imports[0].Module != "env" || missing.Imports[0].Name != "bar" {
			t.Errorf("unexpected missing imports %+v", missing.Imports)
		}

		if !IsExceptionPending(cx) {
			t.Fatal("expected a pending LinkError")
		}
		info, ok := ReportException(cx)
		if !ok {
			t.Fatal("ReportException found nothing")
		}
		if !strings.HasPrefix(info.Message, "LinkError: ") {
			t.Errorf("unexpected message %q", info.Message)
		}
		if IsExceptionPending(cx) {
			t.Error("ReportException did not clear the exception")
		}

		// The half-built instance is garbage now.
		before := GC(cx).Finalized
		if st := GC(cx); st.Finalized != before {
			t.Errorf("second collection finalized %d more cells", st.Finalized-before)
		}
		if before == 0 {
			t.Error("failed instance was not finalized")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assertRootsBalanced(t, rt)
}

func TestRuntime_InstantiateRejects(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		if _, err := Instantiate(cx, nil, nil); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindNilPointer}) {
			t.Errorf("expected nil pointer, got %v", err)
		}

		imports, err := envImports(cx, echo)
		if err != nil {
			return err
		}
		defer imports.Release()
		_, err = loadExports(cx, pairModule(), imports)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindUnsupported}) {
			t.Errorf("expected unsupported import, got %v", err)
		}
		info, ok := ReportException(cx)
		if !ok || !strings.HasPrefix(info.Message, "LinkError: ") {
			t.Errorf("expected a pending LinkError, got %+v", info)
		}
		GC(cx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assertRootsBalanced(t, rt)
}

func TestRuntime_NativeThrow(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	bar := func(cx *gcsafe.Context, _ *CallArgs) error {
		return ThrowError(cx, "bar failed")
	}
	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		imports, err := envImports(cx, bar)
		if err != nil {
			return err
		}
		defer imports.Release()
		exports, err := loadExports(cx, hiWasm, imports)
		if err != nil {
			return err
		}
		defer exports.Release()

		_, err = callExport(cx, exports, "foo")
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindException}) {
			t.Fatalf("expected call exception, got %v", err)
		}
		info, ok := ReportException(cx)
		if !ok {
			t.Fatal("no pending exception")
		}
		want := ErrorInfo{Message: "bar failed", Filename: "test.wasm"}
		if info != want {
			t.Errorf("expected %+v, got %+v", want, info)
		}
		if info.String() != "Error at test.wasm:0:0 bar failed" {
			t.Errorf("unexpected report %q", info.String())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assertRootsBalanced(t, rt)
}

func TestRuntime_NativeGoError(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		fn, err := NewFunction(cx, "fail", 0, func(*gcsafe.Context, *CallArgs) error {
			return stderrors.New("plain go error")
		})
		if err != nil {
			return err
		}
		defer fn.Release()

		fv, _ := NewValue(cx, ObjectValue(fn))
		defer fv.Release()
		rval, _ := NewValue(cx, trace.UndefinedValue())
		defer rval.Release()

		if err := Call(cx, fv, nil, rval); err == nil {
			t.Fatal("expected error")
		}
		info, _ := ReportException(cx)
		if info.Message != "plain go error" {
			t.Errorf("unexpected message %q", info.Message)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_Trap(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		exports, err := loadExports(cx, trapModule(), nil)
		if err != nil {
			return err
		}
		defer exports.Release()

		_, err = callExport(cx, exports, "boom")
		if err == nil {
			t.Fatal("expected trap")
		}
		info, ok := ReportException(cx)
		if !ok || !strings.HasPrefix(info.Message, "RuntimeError: ") {
			t.Errorf("expected RuntimeError, got %+v", info)
		}
		if !strings.Contains(info.Message, "unreachable") {
			t.Errorf("expected trap reason in %q", info.Message)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assertRootsBalanced(t, rt)
}

func TestRuntime_CompileError(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		_, err := CompileModule(cx, []byte("not wasm"))
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindException}) {
			t.Fatalf("expected compile exception, got %v", err)
		}
		info, ok := ReportException(cx)
		if !ok || !strings.HasPrefix(info.Message, "CompileError: ") {
			t.Errorf("expected CompileError, got %+v", info)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assertRootsBalanced(t, rt)
}

func TestRuntime_CallNonFunction(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		fv, _ := NewValue(cx, trace.Int32Value(3))
		defer fv.Release()
		rval, _ := NewValue(cx, trace.UndefinedValue())
		defer rval.Release()

		if err := Call(cx, fv, nil, rval); err == nil {
			t.Fatal("expected TypeError")
		}
		info, _ := ReportException(cx)
		if info.Message != "TypeError: int32 is not a function" {
			t.Errorf("unexpected message %q", info.Message)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_InstanceFinalized(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		exports, err := loadExports(cx, addModule(), nil)
		if err != nil {
			return err
		}
		if len(runtimeOf(cx).instances) != 1 {
			t.Fatalf("expected 1 instance, got %d", len(runtimeOf(cx).instances))
		}

		// the exports keep the instance alive
		GC(cx)
		if len(runtimeOf(cx).instances) != 1 {
			t.Fatal("instance collected while its exports are rooted")
		}
		got, err := callExport(cx, exports, "add", trace.Int32Value(2), trace.Int32Value(3))
		if err != nil {
			return err
		}
		if got.AsInt32() != 5 {
			t.Errorf("expected 5, got %v", got)
		}

		exports.Release()
		GC(cx)
		if len(runtimeOf(cx).instances) != 0 {
			t.Fatal("unreachable instance was not finalized")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_ReadMemory(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		exports, err := loadExports(cx, addModule(), nil)
		if err != nil {
			return err
		}
		defer exports.Release()

		mem, err := root.NewObject(cx.Roots(), 0)
		if err != nil {
			return err
		}
		defer mem.Release()
		if err := GetObjectProperty(cx, exports, "memory", mem); err != nil {
			return err
		}

		nogc := cx.NoGC()
		defer nogc.Release()
		if ObjectClass(nogc, mem) != classMemory {
			t.Fatalf("expected memory object, got %q", ObjectClass(nogc, mem))
		}
		data, err := ReadMemory(nogc, mem, 8, 5)
		if err != nil || string(data) != "hello" {
			t.Fatalf("expected hello, got %q (%v)", data, err)
		}
		if size, _ := MemorySize(nogc, mem); size != 65536 {
			t.Errorf("expected one page, got %d bytes", size)
		}
		_, err = ReadMemory(nogc, mem, 65535, 2)
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindOutOfBounds || e.Value != 65537 {
			t.Errorf("expected out of bounds at 65537, got %v", err)
		}
		if _, err := ReadMemory(nogc, exports, 0, 1); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEngine, Kind: errors.KindTypeMismatch}) {
			t.Errorf("expected type mismatch reading a non-memory, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_Properties(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		obj, err := NewPlainObject(cx)
		if err != nil {
			return err
		}
		defer obj.Release()

		s, err := NewStringValue(cx, "value")
		if err != nil {
			return err
		}
		defer s.Release()
		if err := SetProperty(cx, obj, "b", s); err != nil {
			return err
		}
		if err := SetPropertyValue(cx, obj, "a", trace.Int32Value(1)); err != nil {
			return err
		}

		// the property keeps the string alive on its own
		s.Get().Set(trace.UndefinedValue())
		GC(cx)

		got, _ := NewValue(cx, trace.UndefinedValue())
		defer got.Release()
		if err := GetProperty(cx, obj, "b", got); err != nil {
			return err
		}
		missing, _ := NewValue(cx, trace.NullValue())
		defer missing.Release()
		_ = GetProperty(cx, obj, "missing", missing)

		gcsafe.WithNoGC(cx, func(nogc *gcsafe.NoGC) struct{} {
			if str, ok := ValueString(nogc, got.Get().Get()); !ok || str != "value" {
				t.Errorf("expected value, got %q", str)
			}
			if names := PropertyNames(nogc, obj); strings.Join(names, ",") != "a,b" {
				t.Errorf("expected ordered names a,b, got %v", names)
			}
			return struct{}{}
		})
		if !missing.Get().Get().IsUndefined() {
			t.Error("missing property should be undefined")
		}

		target, _ := root.NewObject(cx.Roots(), 0)
		defer target.Release()
		err = GetObjectProperty(cx, obj, "missing", target)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEngine, Kind: errors.KindNotFound}) {
			t.Errorf("expected not found, got %v", err)
		}
		err = GetObjectProperty(cx, obj, "a", target)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEngine, Kind: errors.KindTypeMismatch}) {
			t.Errorf("expected type mismatch, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assertRootsBalanced(t, rt)
}

func TestRuntime_StringChars(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		s, err := NewString(cx, "héllo")
		if err != nil {
			return err
		}
		defer s.Release()
		GC(cx)
		got := gcsafe.WithNoGC(cx, func(nogc *gcsafe.NoGC) string {
			str, _ := StringChars(nogc, s)
			return str
		})
		if got != "héllo" {
			t.Errorf("expected héllo, got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_WASIExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WASI = true
	rt := newTestRuntime(t, cfg)

	tests := []struct {
		code int32
		want uint32
	}{
		{0, 0},
		{3, 3},
	}
	for _, tt := range tests {
		err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
			exports, err := loadExports(cx, exitModule(tt.code), nil)
			if err != nil {
				return err
			}
			defer exports.Release()
			_, err = callExport(cx, exports, "_start")
			return err
		})
		if tt.want == 0 {
			if err != nil {
				t.Errorf("exit 0: unexpected error %v", err)
			}
			continue
		}
		var exit *ExitError
		if !stderrors.As(err, &exit) || exit.Code != tt.want {
			t.Errorf("expected exit status %d, got %v", tt.want, err)
		}
	}
}

func TestRuntime_WASIDisabled(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		_, err := loadExports(cx, exitModule(0), nil)
		ClearPendingException(cx)
		return err
	})
	var missing *errors.MissingImportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("expected missing wasi import, got %v", err)
	}
}

func TestRuntime_ModuleInfo(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		script, err := CompileModule(cx, hiWasm)
		if err != nil {
			return err
		}
		defer script.Release()

		nogc := cx.NoGC()
		defer nogc.Release()
		imps := ModuleImports(nogc, script)
		if len(imps) != 1 || imps[0].Module != "env" || imps[0].Name != "bar" {
			t.Errorf("unexpected imports %+v", imps)
		}
		exps := ModuleExports(nogc, script)
		if len(exps) != 1 || exps[0].Name != "foo" || exps[0].Kind != "func" {
			t.Errorf("unexpected exports %+v", exps)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_Send(t *testing.T) {
	src := newTestRuntime(t, DefaultConfig())
	dst := newTestRuntime(t, DefaultConfig(), WithName("dst"))

	// strings cannot cross runtimes as handles; copy the chars out first
	var payload trace.Str
	err := src.Do(context.Background(), func(cx *gcsafe.Context) error {
		s, err := NewString(cx, "payload")
		if err != nil {
			return err
		}
		defer s.Release()
		payload = gcsafe.WithNoGC(cx, func(nogc *gcsafe.NoGC) trace.Str {
			str, _ := StringChars(nogc, s)
			return trace.Str(str)
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var got string
	err = Send(context.Background(), dst, payload, func(cx *gcsafe.Context, r *root.Root[trace.Str]) error {
		if cx.Roots().Len() != baseRoots+1 {
			t.Errorf("expected value rooted on the destination, got %d roots", cx.Roots().Len())
		}
		got = string(r.Get())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "payload" {
		t.Fatalf("expected payload, got %q", got)
	}

	shared := trace.NewSyncArc(payload)
	err = Send(context.Background(), dst, shared.Clone(), func(cx *gcsafe.Context, r *root.Root[trace.SyncArc[trace.Str]]) error {
		GC(cx)
		if v := *r.Get().Get(); v != "payload" {
			t.Errorf("expected payload through SyncArc, got %q", v)
		}
		if r.Get().Drop() {
			t.Error("destination held the last owner")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if shared.Count() != 1 {
		t.Errorf("expected one owner left, got %d", shared.Count())
	}
	assertRootsBalanced(t, dst)
}

func TestRuntime_DoAfterClose(t *testing.T) {
	rt, err := New(context.Background(), DefaultConfig(), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	err = rt.Do(context.Background(), func(*gcsafe.Context) error { return nil })
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEngine, Kind: errors.KindClosed}) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestRuntime_PanicReraised(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("expected panic boom, got %v", r)
		}
	}()
	_ = rt.Do(context.Background(), func(*gcsafe.Context) error {
		panic("boom")
	})
}

func TestRuntime_RootLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRoots = baseRoots + 1
	rt := newTestRuntime(t, cfg)

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		a, err := NewPlainObject(cx)
		if err != nil {
			return err
		}
		defer a.Release()
		_, err = NewPlainObject(cx)
		return err
	})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRoot, Kind: errors.KindAllocation}) {
		t.Fatalf("expected root allocation error, got %v", err)
	}
}

func TestRuntime_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	rt := newTestRuntime(t, DefaultConfig(), WithMetrics(m))

	err := rt.Do(context.Background(), func(cx *gcsafe.Context) error {
		s, err := NewString(cx, "x")
		if err != nil {
			return err
		}
		s.Release()
		GC(cx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.collections); got != 1 {
		t.Errorf("expected 1 collection, got %v", got)
	}
	// global object and the string
	if got := testutil.ToFloat64(m.allocations); got != 2 {
		t.Errorf("expected 2 allocations, got %v", got)
	}
	if got := testutil.ToFloat64(m.finalized); got != 1 {
		t.Errorf("expected 1 finalized cell, got %v", got)
	}
	if got := testutil.ToFloat64(m.roots); got != baseRoots {
		t.Errorf("expected %d roots, got %v", baseRoots, got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	t.Run("valid", func(t *testing.T) {
		cfg, err := LoadConfig(write("ok.toml", `
gc_threshold = 16
max_roots = 100
wasi = true
args = ["a", "b"]
log_level = "debug"

[env]
HOME = "/tmp"
`))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.GCThreshold != 16 || cfg.MaxRoots != 100 || !cfg.WASI {
			t.Errorf("unexpected config %+v", cfg)
		}
		if len(cfg.Args) != 2 || cfg.Env["HOME"] != "/tmp" {
			t.Errorf("unexpected args or env %+v", cfg)
		}
	})

	t.Run("defaults kept", func(t *testing.T) {
		cfg, err := LoadConfig(write("empty.toml", ""))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.GCThreshold != DefaultConfig().GCThreshold {
			t.Errorf("expected default threshold, got %d", cfg.GCThreshold)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := LoadConfig(write("unknown.toml", "gc_treshold = 3\n"))
		if err == nil || !strings.Contains(err.Error(), "gc_treshold") {
			t.Fatalf("expected unknown key error, got %v", err)
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := LoadConfig(write("neg.toml", "max_heap_cells = -1\n"))
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := LoadConfig(write("level.toml", `log_level = "loud"`))
		if err == nil {
			t.Fatal("expected error for unknown log level")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.toml"))
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData}) {
			t.Fatalf("expected load error, got %v", err)
		}
		if !stderrors.Is(err, os.ErrNotExist) {
			t.Error("load error should wrap the file error")
		}
	})
}

func TestSetLogger(t *testing.T) {
	nop := zap.NewNop()
	SetLogger(nop)
	defer SetLogger(nil)
	if Logger() != nop {
		t.Fatal("Logger should return the logger set with SetLogger")
	}
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger should fall back to the default logger")
	}
}
