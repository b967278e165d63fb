package gcsafe

import (
	"go.uber.org/zap"

	"github.com/wippyai/gcroot/heap"
	"github.com/wippyai/gcroot/internal/logging"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

// Context is the collection-capable view of a heap. There is exactly one
// Context per heap, created by FromRaw.
type Context struct {
	raw     *heap.Heap
	roots   *root.Registry
	log     *zap.Logger
	private any
	noGC    int
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger for guard violations.
func WithLogger(l *zap.Logger) Option {
	return func(cx *Context) { cx.log = l }
}

// WithPrivate attaches embedder data, returned by Private.
func WithPrivate(v any) Option {
	return func(cx *Context) { cx.private = v }
}

// FromRaw claims raw and returns its Context. The registry becomes the
// heap's root set. Claiming a heap twice, or a nil heap, terminates the
// process.
func FromRaw(raw *heap.Heap, roots *root.Registry, opts ...Option) *Context {
	cx := &Context{raw: raw, roots: roots}
	for _, opt := range opts {
		opt(cx)
	}
	cx.log = logging.Or(cx.log).Named("gcsafe")

	if raw == nil || roots == nil {
		cx.log.Fatal("context requires a heap and a root registry")
		return nil
	}
	if !raw.Claim() {
		cx.log.Fatal("heap already has a context")
		return nil
	}
	raw.SetRootTracer(roots.TraceAll)
	return cx
}

// NoGC borrows a read-only token. The token must be released before the
// next collecting operation.
func (cx *Context) NoGC() *NoGC {
	cx.noGC++
	return &NoGC{cx: cx}
}

// MayGC asserts that a collection may happen now. Collecting operations
// call it before doing anything else.
func (cx *Context) MayGC() {
	if cx.noGC > 0 {
		cx.log.Fatal("collecting operation while no-gc tokens are outstanding",
			zap.Int("tokens", cx.noGC))
	}
}

// Outstanding returns the number of unreleased NoGC tokens.
func (cx *Context) Outstanding() int { return cx.noGC }

// Heap returns the underlying heap.
func (cx *Context) Heap() *heap.Heap { return cx.raw }

// Roots returns the root registry.
func (cx *Context) Roots() *root.Registry { return cx.roots }

// Private returns the embedder data set with WithPrivate.
func (cx *Context) Private() any { return cx.private }

// SetPrivate replaces the embedder data.
func (cx *Context) SetPrivate(v any) { cx.private = v }

// GC runs a full collection.
func (cx *Context) GC(reason string) heap.Stats {
	cx.MayGC()
	return cx.raw.Collect(reason)
}

// Alloc allocates a cell, which may collect first.
func (cx *Context) Alloc(kind trace.Kind, payload any) (trace.Ref, error) {
	cx.MayGC()
	return cx.raw.Alloc(kind, payload)
}

// WithNoGC runs fn with a token that is released when fn returns.
func WithNoGC[T any](cx *Context, fn func(nogc *NoGC) T) T {
	nogc := cx.NoGC()
	defer nogc.Release()
	return fn(nogc)
}
