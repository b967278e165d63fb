// Package gcroot lets Go code hold references into a moving, tracing
// garbage-collected heap without the collector ever missing one.
//
// The heap owns its cells and relocates them on every collection. Go code
// never holds a raw cell address across a collection: it holds handles
// that the collector can find through a root registry and rewrite in
// place.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	gcroot/
//	├── trace/           Tracer and Traceable, heap handles, values and containers
//	├── root/            Root registry, scoped Root[T] handles, rooted vectors
//	├── gcsafe/          Context and NoGC token: who may trigger a collection
//	├── heap/            Moving mark-compact heap the protocol runs against
//	├── engine/          Objects, functions, exceptions and WebAssembly on one heap
//	├── errors/          Structured error types for debugging
//	└── cmd/mozi/        Command line runner built on engine
//
// # Quick Start
//
// Root a value for the duration of a scope:
//
//	rt, err := engine.New(ctx, engine.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	err = rt.Do(ctx, func(cx *gcsafe.Context) error {
//	    obj, err := engine.NewPlainObject(cx)
//	    if err != nil {
//	        return err
//	    }
//	    defer obj.Release()
//
//	    engine.GC(cx) // obj moves, its handle follows
//	    return engine.SetPropertyValue(cx, obj, "answer", trace.Int32Value(42))
//	})
//
// # Tracing
//
// Any Go type that holds heap handles implements trace.Traceable by
// reporting each handle to the tracer. Slices, maps, options and the
// other containers in trace forward to their elements, so a composite
// type only lists its own fields:
//
//	type pair struct {
//	    left, right trace.HeapObject
//	}
//
//	func (p *pair) Trace(trc trace.Tracer) {
//	    p.left.Trace(trc)
//	    p.right.Trace(trc)
//	}
//
// # Collection Safety
//
// Operations that may collect take a *gcsafe.Context. Reading a cell
// directly needs a *gcsafe.NoGC token, which cannot be turned back into a
// Context. Collecting while a token is outstanding is an invariant
// violation and aborts the process through the zap logger.
//
// # Thread Safety
//
// A heap belongs to one goroutine. engine.Runtime pins it to a locked OS
// thread and runs work through Runtime.Do. Values cross runtimes only
// through engine.Send, and only when they implement trace.Transferable.
package gcroot
