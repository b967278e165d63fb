package trace

import "sync/atomic"

// Box exclusively owns a heap-allocated value.
type Box[T Traceable] struct {
	p *T
}

// NewBox moves v into a new Box.
func NewBox[T Traceable](v T) Box[T] { return Box[T]{p: &v} }

// Get returns a pointer to the owned value, or nil for an empty Box.
func (b Box[T]) Get() *T { return b.p }

func (b Box[T]) Trace(trc Tracer) {
	if b.p != nil {
		(*b.p).Trace(trc)
	}
}

type rcBox[T Traceable] struct {
	val   T
	count int
}

// Rc is a reference-counted shared owner for use on a single goroutine.
// The value is traced while at least one owner remains.
type Rc[T Traceable] struct {
	box *rcBox[T]
}

// NewRc creates an Rc with one owner.
func NewRc[T Traceable](v T) Rc[T] { return Rc[T]{box: &rcBox[T]{val: v, count: 1}} }

// Clone adds an owner and returns the new reference. Cloning the zero Rc
// yields the zero Rc.
func (r Rc[T]) Clone() Rc[T] {
	if r.box != nil {
		r.box.count++
	}
	return r
}

// Get returns a pointer to the shared value, or nil for the zero Rc.
func (r Rc[T]) Get() *T {
	if r.box == nil {
		return nil
	}
	return &r.box.val
}

// Count returns the number of owners.
func (r Rc[T]) Count() int {
	if r.box == nil {
		return 0
	}
	return r.box.count
}

// Drop releases one owner. The last owner clears the value.
func (r Rc[T]) Drop() {
	if r.box == nil || r.box.count <= 0 {
		panic("trace: Rc dropped more times than cloned")
	}
	r.box.count--
	if r.box.count == 0 {
		var zero T
		r.box.val = zero
	}
}

func (r Rc[T]) Trace(trc Tracer) {
	if r.box != nil && r.box.count > 0 {
		r.box.val.Trace(trc)
	}
}

type arcBox[T Traceable] struct {
	val   T
	count atomic.Int64
}

// Arc is a reference-counted shared owner whose count is atomic, so owners
// may be cloned and dropped from different goroutines.
type Arc[T Traceable] struct {
	box *arcBox[T]
}

// NewArc creates an Arc with one owner.
func NewArc[T Traceable](v T) Arc[T] {
	b := &arcBox[T]{val: v}
	b.count.Store(1)
	return Arc[T]{box: b}
}

// Clone adds an owner and returns the new reference. Cloning the zero Arc
// yields the zero Arc.
func (a Arc[T]) Clone() Arc[T] {
	if a.box != nil {
		a.box.count.Add(1)
	}
	return a
}

// Get returns a pointer to the shared value, or nil for the zero Arc.
func (a Arc[T]) Get() *T {
	if a.box == nil {
		return nil
	}
	return &a.box.val
}

// Count returns the number of owners.
func (a Arc[T]) Count() int64 {
	if a.box == nil {
		return 0
	}
	return a.box.count.Load()
}

// Drop releases one owner and reports whether it was the last.
func (a Arc[T]) Drop() bool {
	if a.box == nil {
		panic("trace: Arc dropped more times than cloned")
	}
	n := a.box.count.Add(-1)
	if n < 0 {
		panic("trace: Arc dropped more times than cloned")
	}
	return n == 0
}

func (a Arc[T]) Trace(trc Tracer) {
	if a.box != nil && a.box.count.Load() > 0 {
		a.box.val.Trace(trc)
	}
}

// SyncArc is an Arc whose value is itself Transferable. Only SyncArc may
// cross runtimes: an Arc may hold heap handles, which belong to one heap.
type SyncArc[T Transferable] struct {
	Arc[T]
}

// NewSyncArc creates a SyncArc with one owner.
func NewSyncArc[T Transferable](v T) SyncArc[T] { return SyncArc[T]{NewArc(v)} }

// Clone adds an owner and returns the new reference.
func (a SyncArc[T]) Clone() SyncArc[T] { return SyncArc[T]{a.Arc.Clone()} }

func (SyncArc[T]) AssertTransferable() {}

// Cell is an interior-mutable slot replaced by copy.
type Cell[T Traceable] struct {
	val T
}

// NewCell creates a Cell holding v.
func NewCell[T Traceable](v T) *Cell[T] { return &Cell[T]{val: v} }

// Get returns a copy of the value.
func (c *Cell[T]) Get() T { return c.val }

// Set replaces the value.
func (c *Cell[T]) Set(v T) { c.val = v }

// Replace stores v and returns the previous value.
func (c *Cell[T]) Replace(v T) T {
	old := c.val
	c.val = v
	return old
}

func (c *Cell[T]) Trace(trc Tracer) { c.val.Trace(trc) }

// RefCell is an interior-mutable slot with dynamically checked borrows.
// Tracing while a mutable borrow is active is an invariant violation.
type RefCell[T Traceable] struct {
	val    T
	borrow int // >0 shared borrows, -1 mutable borrow
}

// NewRefCell creates a RefCell holding v.
func NewRefCell[T Traceable](v T) *RefCell[T] { return &RefCell[T]{val: v} }

// Borrow calls fn with shared access to the value.
func (c *RefCell[T]) Borrow(fn func(v *T)) {
	if c.borrow < 0 {
		panic("trace: RefCell already mutably borrowed")
	}
	c.borrow++
	defer func() { c.borrow-- }()
	fn(&c.val)
}

// BorrowMut calls fn with exclusive access to the value.
func (c *RefCell[T]) BorrowMut(fn func(v *T)) {
	if c.borrow != 0 {
		panic("trace: RefCell already borrowed")
	}
	c.borrow = -1
	defer func() { c.borrow = 0 }()
	fn(&c.val)
}

func (c *RefCell[T]) Trace(trc Tracer) {
	if c.borrow < 0 {
		panic("trace: RefCell traced while mutably borrowed")
	}
	c.val.Trace(trc)
}
