package root

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/internal/logging"
	"github.com/wippyai/gcroot/trace"
)

// Registry is an ordered set of traceable roots, identified by pointer.
type Registry struct {
	log   *zap.Logger
	set   []trace.Traceable
	limit int
	peak  int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Invariant violations are reported through its
// Fatal level, which ends the process.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithLimit bounds the number of live roots. Zero means unbounded.
func WithLimit(n int) Option {
	return func(r *Registry) { r.limit = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{set: make([]trace.Traceable, 0, 64)}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.Or(r.log).Named("root")
	return r
}

// Add registers t. The entry must be a non-nil pointer: the registry holds
// it by identity, and the collector rewrites the value behind it.
// Add fails only when the registry limit is reached.
func (r *Registry) Add(t trace.Traceable) error {
	if !isPointer(t) {
		r.log.Fatal("root must be a non-nil pointer", zap.String("type", typeName(t)))
		return nil
	}
	if r.limit > 0 && len(r.set) >= r.limit {
		return errors.AllocationFailed(errors.PhaseRoot, "root", r.limit)
	}
	r.set = append(r.set, t)
	if len(r.set) > r.peak {
		r.peak = len(r.set)
	}
	if ce := r.log.Check(zap.DebugLevel, "root added"); ce != nil {
		ce.Write(zap.String("type", typeName(t)), zap.Int("depth", len(r.set)))
	}
	return nil
}

// Remove deregisters the most recently added entry identical to t.
// Removing an entry that is not registered means a root was released twice
// or never registered; the registry can no longer be trusted and the
// process is terminated.
func (r *Registry) Remove(t trace.Traceable) {
	for i := len(r.set) - 1; i >= 0; i-- {
		if r.set[i] == t {
			copy(r.set[i:], r.set[i+1:])
			r.set[len(r.set)-1] = nil
			r.set = r.set[:len(r.set)-1]
			if ce := r.log.Check(zap.DebugLevel, "root removed"); ce != nil {
				ce.Write(zap.String("type", typeName(t)), zap.Int("depth", len(r.set)))
			}
			return
		}
	}
	r.log.Fatal("removing unregistered root", zap.String("type", typeName(t)), zap.Int("depth", len(r.set)))
}

// TraceAll traces every registered root in insertion order.
func (r *Registry) TraceAll(trc trace.Tracer) {
	for _, t := range r.set {
		t.Trace(trc)
	}
}

// Len returns the number of registered roots.
func (r *Registry) Len() int { return len(r.set) }

// Peak returns the highest number of roots registered at once.
func (r *Registry) Peak() int { return r.peak }

// Limit returns the configured limit, zero when unbounded.
func (r *Registry) Limit() int { return r.limit }

func isPointer(t trace.Traceable) bool {
	if t == nil {
		return false
	}
	v := reflect.ValueOf(t)
	return v.Kind() == reflect.Pointer && !v.IsNil()
}

func typeName(t trace.Traceable) string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", t)
}
