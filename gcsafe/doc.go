// Package gcsafe separates operations that may collect the heap from those
// that may not.
//
// A Context is the capability to run collecting operations: allocation,
// calls into the engine, explicit collection. Every such operation takes a
// *Context and calls MayGC first.
//
// A NoGC token is a read-only capability derived from a Context. Values that
// are only valid until the next collection, such as string contents or a
// view of guest memory, are borrowed through a token. MayGC terminates the
// process while any token is outstanding, so a collection can never
// invalidate a borrowed view:
//
//	nogc := cx.NoGC()
//	data := engine.StringChars(nogc, s)
//	// ... use data ...
//	nogc.Release()
//
// NoGC has no way back to its Context.
package gcsafe
