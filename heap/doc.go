// Package heap is a small moving, collected heap that stands in for an
// embedded engine's garbage-collected heap.
//
// Cells live in a slot arena. A reference encodes the collection epoch and
// the slot, so every collection invalidates every reference it did not
// trace: a native value that was not reachable from a root keeps a stale
// reference, and any later use of it is detected.
//
// A collection marks from the single root-tracer callback and from cell
// payloads implementing trace.Traceable, compacts the survivors, rewrites
// every traced edge to the new location and finalizes the dead payloads.
//
// A Heap is not safe for concurrent use.
package heap
