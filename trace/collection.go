package trace

import (
	"cmp"

	"github.com/gammazero/deque"
	"github.com/google/btree"
)

// Key is a comparable traced type usable as a map key or set member.
type Key interface {
	comparable
	Traceable
}

// OrderedKey is a traced type with a natural order.
type OrderedKey interface {
	cmp.Ordered
	Traceable
}

// Map is a traced hash map. Both keys and values are traced.
type Map[K Key, V Traceable] map[K]V

func (m Map[K, V]) Trace(trc Tracer) {
	for k, v := range m {
		k.Trace(trc)
		v.Trace(trc)
	}
}

// Set is a traced hash set.
type Set[T Key] map[T]struct{}

// Add inserts v.
func (s Set[T]) Add(v T) { s[v] = struct{}{} }

// Has reports whether v is a member.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Delete removes v.
func (s Set[T]) Delete(v T) { delete(s, v) }

func (s Set[T]) Trace(trc Tracer) {
	for v := range s {
		v.Trace(trc)
	}
}

type orderedEntry[K OrderedKey, V Traceable] struct {
	key K
	val V
}

// OrderedMap is a traced map iterated in key order.
type OrderedMap[K OrderedKey, V Traceable] struct {
	tree *btree.BTreeG[orderedEntry[K, V]]
}

// NewOrderedMap creates an empty OrderedMap.
func NewOrderedMap[K OrderedKey, V Traceable]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{
		tree: btree.NewG(8, func(a, b orderedEntry[K, V]) bool {
			return cmp.Less(a.key, b.key)
		}),
	}
}

// Set stores v under k, replacing any previous value.
func (m *OrderedMap[K, V]) Set(k K, v V) {
	m.tree.ReplaceOrInsert(orderedEntry[K, V]{key: k, val: v})
}

// Get returns the value stored under k.
func (m *OrderedMap[K, V]) Get(k K) (V, bool) {
	e, ok := m.tree.Get(orderedEntry[K, V]{key: k})
	return e.val, ok
}

// Delete removes k and reports whether it was present.
func (m *OrderedMap[K, V]) Delete(k K) bool {
	_, ok := m.tree.Delete(orderedEntry[K, V]{key: k})
	return ok
}

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() int { return m.tree.Len() }

// Ascend calls fn for each entry in key order until fn returns false.
func (m *OrderedMap[K, V]) Ascend(fn func(k K, v V) bool) {
	m.tree.Ascend(func(e orderedEntry[K, V]) bool {
		return fn(e.key, e.val)
	})
}

// Keys returns the keys in order.
func (m *OrderedMap[K, V]) Keys() []K {
	keys := make([]K, 0, m.tree.Len())
	m.Ascend(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

func (m *OrderedMap[K, V]) Trace(trc Tracer) {
	m.tree.Ascend(func(e orderedEntry[K, V]) bool {
		e.key.Trace(trc)
		e.val.Trace(trc)
		return true
	})
}

// Deque is a traced double-ended queue.
type Deque[T Traceable] struct {
	q deque.Deque[T]
}

func (d *Deque[T]) PushBack(v T)  { d.q.PushBack(v) }
func (d *Deque[T]) PushFront(v T) { d.q.PushFront(v) }

// PopFront removes and returns the first element. It panics when empty.
func (d *Deque[T]) PopFront() T { return d.q.PopFront() }

// PopBack removes and returns the last element. It panics when empty.
func (d *Deque[T]) PopBack() T { return d.q.PopBack() }

// At returns the element at index i.
func (d *Deque[T]) At(i int) T { return d.q.At(i) }

// Len returns the number of elements.
func (d *Deque[T]) Len() int { return d.q.Len() }

func (d *Deque[T]) Trace(trc Tracer) {
	for i := 0; i < d.q.Len(); i++ {
		d.q.At(i).Trace(trc)
	}
}
