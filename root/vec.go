package root

import (
	"iter"

	"github.com/wippyai/gcroot/trace"
)

// Vec is a rooted, growable sequence. The whole sequence is one registry
// entry, so pushing does not add roots.
type Vec[T trace.Traceable] struct {
	reg   *Registry
	items []T
}

// NewVec creates an empty rooted sequence with room for capacity items.
func NewVec[T trace.Traceable](reg *Registry, capacity int) (*Vec[T], error) {
	v := &Vec[T]{reg: reg, items: make([]T, 0, capacity)}
	if err := reg.Add(v); err != nil {
		return nil, err
	}
	return v, nil
}

// CollectVec roots a sequence built from seq. Items are rooted before the
// first one is consumed, so seq may allocate in the heap between items.
func CollectVec[T trace.Traceable](reg *Registry, seq iter.Seq[T]) (*Vec[T], error) {
	v, err := NewVec[T](reg, 0)
	if err != nil {
		return nil, err
	}
	for item := range seq {
		v.Push(item)
	}
	return v, nil
}

// Push appends an item.
func (v *Vec[T]) Push(item T) { v.items = append(v.items, item) }

// At returns the item at index i.
func (v *Vec[T]) At(i int) T { return v.items[i] }

// Set replaces the item at index i.
func (v *Vec[T]) Set(i int, item T) { v.items[i] = item }

// Len returns the number of items.
func (v *Vec[T]) Len() int { return len(v.items) }

// Items returns the backing slice, valid until the next Push or Release.
func (v *Vec[T]) Items() []T { return v.items }

// All iterates over the items in order.
func (v *Vec[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, item := range v.items {
			if !yield(i, item) {
				return
			}
		}
	}
}

func (v *Vec[T]) Trace(trc trace.Tracer) {
	for _, item := range v.items {
		item.Trace(trc)
	}
}

// Release clears the items and deregisters the sequence.
func (v *Vec[T]) Release() {
	clear(v.items)
	v.items = v.items[:0]
	v.reg.Remove(v)
}
