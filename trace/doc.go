// Package trace defines the protocol by which native Go values report the
// external heap references they hold.
//
// The external heap is owned by a separate runtime whose collector moves and
// frees cells without consulting Go. Every Go value that keeps a heap
// reference must therefore be able to enumerate those references when the
// collector asks. That is the Traceable contract:
//
//	type Traceable interface {
//		Trace(trc Tracer)
//	}
//
// A Trace implementation visits every heap handle it owns, directly or
// through nested containers. Visiting a handle twice is harmless; missing one
// lets the collector free a cell that Go still uses.
//
// # Heap Handles
//
// HeapObject, HeapString, HeapScript and HeapValue wrap a shared cell holding
// the raw Ref. Copies of a handle share the cell, so when the collector
// relocates a cell and rewrites the edge, every copy observes the new
// address. Always call Get when the reference is needed; never cache the
// returned Ref across anything that can collect.
//
// # Audited Types
//
// Types that hold no heap references still implement Traceable with an empty
// method. The primitives in this package (Int, Str, Bool, ...), NoHandles and
// Untraced exist so that every traced field carries an explicit statement
// about its handle content instead of being silently skipped.
//
// # Composites
//
// Slice, Deque, Option, Result, Pair, Tuple3, Tuple4, Map, OrderedMap, Set,
// Box, Rc, Arc, SyncArc, Cell and RefCell forward Trace to every element, key and
// value, so nested structures compose without hand-written visitors:
//
//	type session struct {
//		Exports trace.Map[trace.Str, trace.HeapObject]
//		Pending trace.Option[trace.HeapValue]
//		Args    trace.Slice[trace.HeapValue]
//	}
//
//	func (s *session) Trace(trc trace.Tracer) {
//		s.Exports.Trace(trc)
//		s.Pending.Trace(trc)
//		s.Args.Trace(trc)
//	}
//
// Ownership graphs built from these containers must be acyclic. Cycles belong
// in the external heap, where the collector breaks them.
package trace
