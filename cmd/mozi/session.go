package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/gcroot/engine"
	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

// entryPoints are tried in order when no function is named.
var entryPoints = []string{"_start", "main", "run"}

// hostImports builds the imports object for a module. Every function the
// module imports from env is served by a host function that logs the call
// and returns its first argument.
func hostImports(cx *gcsafe.Context, script *root.Script, log *zap.Logger) (*root.Object, error) {
	imports, err := engine.NewPlainObject(cx)
	if err != nil {
		return nil, err
	}

	var env []engine.Import
	gcsafe.WithNoGC(cx, func(nogc *gcsafe.NoGC) struct{} {
		for _, imp := range engine.ModuleImports(nogc, script) {
			if imp.Module == "env" {
				env = append(env, imp)
			}
		}
		return struct{}{}
	})
	if len(env) == 0 {
		return imports, nil
	}

	envObj, err := engine.NewPlainObject(cx)
	if err != nil {
		imports.Release()
		return nil, err
	}
	defer envObj.Release()

	for _, imp := range env {
		name := imp.Name
		fn, err := engine.DefineFunction(cx, envObj, name, len(imp.Params), func(_ *gcsafe.Context, args *engine.CallArgs) error {
			log.Info("host import called", zap.String("name", "env."+name), zap.Stringer("arg", args.Get(0)))
			args.SetReturn(args.Get(0))
			return nil
		})
		if err != nil {
			imports.Release()
			return nil, err
		}
		fn.Release()
	}
	if err := engine.SetPropertyValue(cx, imports, "env", engine.ObjectValue(envObj)); err != nil {
		imports.Release()
		return nil, err
	}
	return imports, nil
}

// load compiles and instantiates wasm and returns the rooted exports
// object with the exported functions. Failures that left an exception
// pending are returned as scriptError.
func load(cx *gcsafe.Context, wasm []byte, log *zap.Logger) (*root.Object, []engine.Export, error) {
	script, err := engine.CompileModule(cx, wasm)
	if err != nil {
		return nil, nil, pendingError(cx, err)
	}
	defer script.Release()

	funcs := gcsafe.WithNoGC(cx, func(nogc *gcsafe.NoGC) []engine.Export {
		var out []engine.Export
		for _, e := range engine.ModuleExports(nogc, script) {
			if e.Kind == "func" {
				out = append(out, e)
			}
		}
		return out
	})

	imports, err := hostImports(cx, script, log)
	if err != nil {
		return nil, nil, err
	}
	defer imports.Release()

	inst, err := engine.Instantiate(cx, script, imports)
	if err != nil {
		return nil, nil, pendingError(cx, err)
	}
	defer inst.Release()

	exports, err := root.NewObject(cx.Roots(), 0)
	if err != nil {
		return nil, nil, err
	}
	if err := engine.GetObjectProperty(cx, inst, "exports", exports); err != nil {
		exports.Release()
		return nil, nil, err
	}
	return exports, funcs, nil
}

// call invokes exports[name] with args.
func call(cx *gcsafe.Context, exports *root.Object, name string, args []trace.Value) (trace.Value, error) {
	fn, err := engine.NewValue(cx, trace.UndefinedValue())
	if err != nil {
		return trace.Value{}, err
	}
	defer fn.Release()
	if err := engine.GetProperty(cx, exports, name, fn); err != nil {
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

	rval, err := engine.NewValue(cx, trace.UndefinedValue())
	if err != nil {
		return trace.Value{}, err
	}
	defer rval.Release()

	if err := engine.Call(cx, fn, vec, rval); err != nil {
		return trace.Value{}, pendingError(cx, err)
	}
	return rval.Get().Get(), nil
}

// pendingError turns a pending exception into a scriptError.
func pendingError(cx *gcsafe.Context, err error) error {
	if info, ok := engine.ReportException(cx); ok {
		return &scriptError{info: info}
	}
	return err
}

// pickEntry returns the function to call when none was named.
func pickEntry(funcs []engine.Export) (string, bool) {
	for _, name := range entryPoints {
		for _, f := range funcs {
			if f.Name == name {
				return name, true
			}
		}
	}
	if len(funcs) == 1 {
		return funcs[0].Name, true
	}
	return "", false
}

// readModule reads module bytes from path.
func readModule(path string) ([]byte, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read module "+path, err)
	}
	return wasm, nil
}

// parseArg reads an integer as int32 and anything else as a double.
func parseArg(s string) (trace.Value, error) {
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return trace.Int32Value(int32(i)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return trace.Value{}, errors.InvalidData(errors.PhaseCall, []string{"arg"}, fmt.Sprintf("%q is not a number", s))
	}
	return trace.DoubleValue(f), nil
}

func parseArgs(in []string) ([]trace.Value, error) {
	out := make([]trace.Value, 0, len(in))
	for _, s := range in {
		v, err := parseArg(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
