// Package engine embeds a WebAssembly engine behind a collected object heap.
//
// A Runtime owns one heap, its root registry and its gcsafe.Context, and
// runs every operation on a dedicated goroutine locked to an OS thread.
// Operations are submitted with Do:
//
//	err := rt.Do(ctx, func(cx *gcsafe.Context) error {
//		script, err := engine.CompileModule(cx, wasmBytes)
//		if err != nil {
//			return err
//		}
//		defer script.Release()
//		...
//	})
//
// # Objects
//
// The heap holds plain objects with ordered properties, strings, function
// objects and compiled scripts. Every constructor returns a rooted handle
// that the caller releases. Functions that may collect take the
// *gcsafe.Context; functions that only read take a *gcsafe.NoGC token.
//
// # WebAssembly
//
// CompileModule compiles module bytes into a script. Instantiate resolves
// the module's imports from an imports object (module name to object of
// functions) and returns an instance object whose "exports" property holds
// the exported functions and memories. WASI preview1 imports are served by
// wazero when Config.WASI is set and the imports object does not provide
// them. Instances and scripts release their wazero resources when the heap
// collects them.
//
// # Exceptions
//
// Failures inside the engine leave a pending exception and return an error
// of kind errors.KindException. ReportException takes the pending
// exception and describes it as an ErrorInfo.
package engine
