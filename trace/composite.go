package trace

// Slice is a traced sequence.
type Slice[T Traceable] []T

// Trace traces every element in order.
func (s Slice[T]) Trace(trc Tracer) {
	for _, e := range s {
		e.Trace(trc)
	}
}

// Each traces every item. It covers fixed-size arrays: Each(trc, arr[:]...).
func Each[T Traceable](trc Tracer, items ...T) {
	for _, e := range items {
		e.Trace(trc)
	}
}

// Option is a value that may be absent.
type Option[T Traceable] struct {
	val T
	ok  bool
}

// Some returns a present Option.
func Some[T Traceable](v T) Option[T] { return Option[T]{val: v, ok: true} }

// None returns an absent Option.
func None[T Traceable]() Option[T] { return Option[T]{} }

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.val, o.ok }

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.ok }

// Trace traces the value when present.
func (o Option[T]) Trace(trc Tracer) {
	if o.ok {
		o.val.Trace(trc)
	}
}

// Result holds either a success value or an error value.
type Result[T, E Traceable] struct {
	ok    T
	err   E
	isErr bool
}

// Ok returns a successful Result.
func Ok[T, E Traceable](v T) Result[T, E] { return Result[T, E]{ok: v} }

// Err returns a failed Result.
func Err[T, E Traceable](e E) Result[T, E] { return Result[T, E]{err: e, isErr: true} }

// IsErr reports whether the Result holds an error value.
func (r Result[T, E]) IsErr() bool { return r.isErr }

// Value returns the success value.
func (r Result[T, E]) Value() (T, bool) { return r.ok, !r.isErr }

// Error returns the error value.
func (r Result[T, E]) Error() (E, bool) { return r.err, r.isErr }

// Trace traces whichever side is held.
func (r Result[T, E]) Trace(trc Tracer) {
	if r.isErr {
		r.err.Trace(trc)
		return
	}
	r.ok.Trace(trc)
}

// Pair is a traced 2-tuple.
type Pair[A, B Traceable] struct {
	First  A
	Second B
}

func (p Pair[A, B]) Trace(trc Tracer) {
	p.First.Trace(trc)
	p.Second.Trace(trc)
}

// Tuple3 is a traced 3-tuple.
type Tuple3[A, B, C Traceable] struct {
	V0 A
	V1 B
	V2 C
}

func (t Tuple3[A, B, C]) Trace(trc Tracer) {
	t.V0.Trace(trc)
	t.V1.Trace(trc)
	t.V2.Trace(trc)
}

// Tuple4 is a traced 4-tuple.
type Tuple4[A, B, C, D Traceable] struct {
	V0 A
	V1 B
	V2 C
	V3 D
}

func (t Tuple4[A, B, C, D]) Trace(trc Tracer) {
	t.V0.Trace(trc)
	t.V1.Trace(trc)
	t.V2.Trace(trc)
	t.V3.Trace(trc)
}
