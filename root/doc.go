// Package root keeps native values alive across collections of the
// external heap.
//
// A Registry is the set of roots for one runtime goroutine. The collector
// reaches it through a single callback that calls TraceAll; every entry is
// traced in insertion order and may have its references rewritten in place.
//
// Root and Vec are scoped handles over the registry. They store the value
// in a stable Go allocation, register that allocation, and deregister it on
// Release. Releases are expected in reverse order of creation, so removal
// scans from the end of the registry:
//
//	obj, err := root.NewObject(reg, ref)
//	if err != nil {
//		return err
//	}
//	defer obj.Release()
//
// Scope wraps the same pattern and also releases when fn panics.
//
// A Registry is not safe for concurrent use. It belongs to the goroutine
// that owns the heap, and is passed explicitly rather than held in a global.
package root
