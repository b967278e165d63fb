package heap

import (
	"time"

	"github.com/wippyai/gcroot/trace"
)

// Finalizer is implemented by payloads that hold native resources.
// Finalize runs once, during the collection that finds the cell dead, and
// must not allocate in the heap.
type Finalizer interface {
	Finalize()
}

// EventType identifies a heap lifecycle notification.
type EventType uint8

const (
	EventAlloc EventType = iota
	EventFinalize
	EventCollect
)

func (t EventType) String() string {
	switch t {
	case EventAlloc:
		return "alloc"
	case EventFinalize:
		return "finalize"
	case EventCollect:
		return "collect"
	default:
		return "unknown"
	}
}

// Event describes an allocation, a finalized cell or a finished collection.
// Stats is set for EventCollect.
type Event struct {
	Payload any
	Reason  string
	Stats   Stats
	Ref     trace.Ref
	Kind    trace.Kind
	Type    EventType
}

// Observer receives heap lifecycle events.
type Observer interface {
	OnHeapEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnHeapEvent calls f.
func (f ObserverFunc) OnHeapEvent(e Event) { f(e) }

// Stats are cumulative heap counters.
type Stats struct {
	Collections uint64
	Allocated   uint64
	Finalized   uint64
	// Moved counts survivors relocated by the last collection.
	Moved int
	// Live is the number of cells after the last allocation or collection.
	Live      int
	LastPause time.Duration
}
