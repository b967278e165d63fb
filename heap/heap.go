package heap

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/internal/logging"
	"github.com/wippyai/gcroot/trace"
)

type cell struct {
	payload any
	kind    trace.Kind
}

// edge is a traced reference location and the slot it pointed at.
type edge struct {
	ptr  *trace.Ref
	slot int
}

// Heap is a compacting collected heap.
type Heap struct {
	log        *zap.Logger
	rootTracer func(trace.Tracer)
	cells      []cell
	observers  []Observer
	stats      Stats
	threshold  int
	maxCells   int
	sinceGC    int
	epoch      uint32
	claimed    bool
	collecting bool
}

// Option configures a Heap.
type Option func(*Heap)

// WithLogger sets the logger. Heap corruption is reported through Fatal.
func WithLogger(l *zap.Logger) Option {
	return func(h *Heap) { h.log = l }
}

// WithThreshold collects before an allocation once n cells were allocated
// since the previous collection. Zero disables automatic collection.
func WithThreshold(n int) Option {
	return func(h *Heap) { h.threshold = n }
}

// WithMaxCells bounds the number of live cells. Zero means unbounded.
func WithMaxCells(n int) Option {
	return func(h *Heap) { h.maxCells = n }
}

// WithObserver subscribes o to heap events.
func WithObserver(o Observer) Option {
	return func(h *Heap) { h.observers = append(h.observers, o) }
}

// New creates an empty heap.
func New(opts ...Option) *Heap {
	h := &Heap{
		cells: make([]cell, 0, 64),
		epoch: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logging.Or(h.log).Named("heap")
	return h
}

// Claim marks the heap as owned by a context. It reports false when the
// heap was already claimed.
func (h *Heap) Claim() bool {
	if h.claimed {
		return false
	}
	h.claimed = true
	return true
}

// SetRootTracer installs the callback that reports roots during marking.
// There is one callback per heap; setting it again replaces the previous one.
func (h *Heap) SetRootTracer(fn func(trace.Tracer)) {
	h.rootTracer = fn
}

// Subscribe adds an observer.
func (h *Heap) Subscribe(o Observer) {
	h.observers = append(h.observers, o)
}

func (h *Heap) encode(slot int) trace.Ref {
	return trace.Ref(uint64(h.epoch)<<32 | uint64(slot+1))
}

func (h *Heap) decode(ref trace.Ref) (int, bool) {
	if ref.IsNull() || uint32(uint64(ref)>>32) != h.epoch {
		return 0, false
	}
	slot := int(uint32(ref)) - 1
	if slot < 0 || slot >= len(h.cells) {
		return 0, false
	}
	return slot, true
}

// Alloc stores payload in a new cell of the given kind. It may collect
// first; a Traceable payload is kept alive through that collection, but
// every other reference the caller holds must be rooted.
func (h *Heap) Alloc(kind trace.Kind, payload any) (trace.Ref, error) {
	if h.collecting {
		h.log.Fatal("allocation during collection", zap.Stringer("kind", kind))
	}
	if kind == trace.KindNone {
		return 0, errors.InvalidInput(errors.PhaseHeap, "cannot allocate a cell of kind none")
	}

	pending, _ := payload.(trace.Traceable)
	if h.threshold > 0 && h.sinceGC >= h.threshold {
		h.collect("threshold", pending)
	}
	if h.maxCells > 0 && len(h.cells) >= h.maxCells {
		h.collect("max cells", pending)
		if len(h.cells) >= h.maxCells {
			return 0, errors.AllocationFailed(errors.PhaseHeap, kind.String()+" cell", h.maxCells)
		}
	}

	h.cells = append(h.cells, cell{kind: kind, payload: payload})
	ref := h.encode(len(h.cells) - 1)
	h.sinceGC++
	h.stats.Allocated++
	h.stats.Live = len(h.cells)
	h.notify(Event{Type: EventAlloc, Ref: ref, Kind: kind, Payload: payload})
	return ref, nil
}

// Get returns the payload of the cell ref points at. It reports false for
// null, dangling and stale references.
func (h *Heap) Get(ref trace.Ref) (any, bool) {
	slot, ok := h.decode(ref)
	if !ok {
		return nil, false
	}
	return h.cells[slot].payload, true
}

// MustGet is Get for references that must be valid. A dangling reference
// means a root was missed, and the process is terminated.
func (h *Heap) MustGet(ref trace.Ref) any {
	p, ok := h.Get(ref)
	if !ok {
		h.log.Fatal("dangling reference", zap.Stringer("ref", ref), zap.Uint32("epoch", h.epoch))
	}
	return p
}

// Kind returns the kind of the referenced cell, or KindNone for an
// invalid reference.
func (h *Heap) Kind(ref trace.Ref) trace.Kind {
	slot, ok := h.decode(ref)
	if !ok {
		return trace.KindNone
	}
	return h.cells[slot].kind
}

// Valid reports whether ref points at a live cell.
func (h *Heap) Valid(ref trace.Ref) bool {
	_, ok := h.decode(ref)
	return ok
}

// Live returns the number of cells.
func (h *Heap) Live() int { return len(h.cells) }

// Stats returns the cumulative counters.
func (h *Heap) Stats() Stats { return h.stats }

// Collecting reports whether a collection is in progress.
func (h *Heap) Collecting() bool { return h.collecting }

// Collect runs a full collection and returns the updated counters.
func (h *Heap) Collect(reason string) Stats {
	h.collect(reason, nil)
	return h.stats
}

func (h *Heap) collect(reason string, pending trace.Traceable) {
	if h.collecting {
		h.log.Fatal("collection during collection", zap.String("reason", reason))
	}
	h.collecting = true
	defer func() { h.collecting = false }()
	start := time.Now()

	marked := make([]bool, len(h.cells))
	var (
		edges []edge
		work  []int
	)
	marker := trace.TracerFunc(func(kind trace.Kind, e *trace.Ref, name string) {
		slot, ok := h.decode(*e)
		if !ok {
			h.log.Fatal("stale reference traced",
				zap.String("edge", name),
				zap.Stringer("ref", *e),
				zap.Uint32("epoch", h.epoch))
			return
		}
		if got := h.cells[slot].kind; got != kind {
			h.log.Fatal("traced reference has wrong kind",
				zap.String("edge", name),
				zap.Stringer("expected", kind),
				zap.Stringer("actual", got))
			return
		}
		edges = append(edges, edge{ptr: e, slot: slot})
		if !marked[slot] {
			marked[slot] = true
			work = append(work, slot)
		}
	})

	if h.rootTracer != nil {
		h.rootTracer(marker)
	}
	if pending != nil {
		pending.Trace(marker)
	}
	for len(work) > 0 {
		slot := work[len(work)-1]
		work = work[:len(work)-1]
		if t, ok := h.cells[slot].payload.(trace.Traceable); ok {
			t.Trace(marker)
		}
	}

	forward := make([]int, len(h.cells))
	survivors := make([]cell, 0, len(h.cells))
	var dead []cell
	moved := 0
	for i, c := range h.cells {
		if !marked[i] {
			dead = append(dead, c)
			continue
		}
		forward[i] = len(survivors)
		if forward[i] != i {
			moved++
		}
		survivors = append(survivors, c)
	}

	h.cells = survivors
	h.epoch++
	for _, e := range edges {
		*e.ptr = h.encode(forward[e.slot])
	}

	for _, c := range dead {
		if f, ok := c.payload.(Finalizer); ok {
			f.Finalize()
		}
		h.stats.Finalized++
		h.notify(Event{Type: EventFinalize, Kind: c.kind, Payload: c.payload})
	}

	h.sinceGC = 0
	h.stats.Collections++
	h.stats.Moved = moved
	h.stats.Live = len(h.cells)
	h.stats.LastPause = time.Since(start)

	h.log.Debug("collected",
		zap.String("reason", reason),
		zap.Int("live", len(h.cells)),
		zap.Int("freed", len(dead)),
		zap.Int("moved", moved),
		zap.Int("edges", len(edges)),
		zap.Duration("pause", h.stats.LastPause))
	h.notify(Event{Type: EventCollect, Reason: reason, Stats: h.stats})
}

func (h *Heap) notify(e Event) {
	for _, o := range h.observers {
		o.OnHeapEvent(e)
	}
}
