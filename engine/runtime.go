package engine

import (
	"context"
	"io"
	goruntime "runtime"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/heap"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

// Runtime is one engine heap with its own goroutine.
type Runtime struct {
	log       *zap.Logger
	metrics   *Metrics
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	ctx       context.Context
	wz        wazero.Runtime
	cache     wazero.CompilationCache
	heap      *heap.Heap
	roots     *root.Registry
	cx        *gcsafe.Context
	global    *root.Object
	exception *root.Value
	instances map[*instance]struct{}
	jobs      chan job
	done      chan struct{}
	name      string
	cfg       Config
	closeMu   sync.RWMutex
	closed    bool
	pending   bool
}

type job struct {
	ctx    context.Context
	fn     func(cx *gcsafe.Context) error
	result chan jobResult
}

type jobResult struct {
	err       error
	recovered any
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger. Without it the package Logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// WithMetrics reports heap and root counters to m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithStdio sets the standard streams of WASI instances. The default is
// no input and discarded output.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runtime) {
		r.stdin = stdin
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithName names the runtime in logs.
func WithName(name string) Option {
	return func(r *Runtime) { r.name = name }
}

// Stats describes the state of a runtime.
type Stats struct {
	Heap      heap.Stats
	Roots     int
	PeakRoots int
	Instances int
}

// New creates a runtime and starts its goroutine. Close must be called to
// stop it.
func New(ctx context.Context, cfg Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runtime{
		cfg:       cfg,
		name:      "main",
		instances: make(map[*instance]struct{}),
		jobs:      make(chan job),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = Logger()
	}
	r.log = r.log.Named("engine").With(zap.String("runtime", r.name))

	heapOpts := []heap.Option{
		heap.WithLogger(r.log),
		heap.WithThreshold(cfg.GCThreshold),
		heap.WithMaxCells(cfg.MaxHeapCells),
	}
	if r.metrics != nil {
		heapOpts = append(heapOpts, heap.WithObserver(r.metrics))
	}
	r.heap = heap.New(heapOpts...)
	r.roots = root.NewRegistry(root.WithLogger(r.log), root.WithLimit(cfg.MaxRoots))

	r.cache = wazero.NewCompilationCache()
	r.wz = wazero.NewRuntimeWithConfig(ctx, r.runtimeConfig())

	go r.loop()

	if err := r.Do(ctx, r.init); err != nil {
		return nil, multierr.Append(err, r.Close(ctx))
	}
	r.log.Debug("runtime started",
		zap.Int("gc_threshold", cfg.GCThreshold),
		zap.Int("max_heap_cells", cfg.MaxHeapCells),
		zap.Int("max_roots", cfg.MaxRoots))
	return r, nil
}

func (r *Runtime) runtimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig().
		WithCompilationCache(r.cache).
		WithCloseOnContextDone(true)
	if r.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(r.cfg.MemoryLimitPages)
	}
	return rc
}

// init runs on the runtime goroutine: the context is created there so the
// heap is only ever touched by that goroutine.
func (r *Runtime) init(*gcsafe.Context) error {
	r.cx = gcsafe.FromRaw(r.heap, r.roots, gcsafe.WithLogger(r.log), gcsafe.WithPrivate(r))

	var err error
	if r.exception, err = root.NewValue(r.roots, trace.UndefinedValue()); err != nil {
		return err
	}
	ref, err := r.cx.Alloc(trace.KindObject, newObject(classGlobal, nil))
	if err != nil {
		return err
	}
	if r.global, err = root.NewObject(r.roots, ref); err != nil {
		return err
	}
	return nil
}

func (r *Runtime) loop() {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	defer close(r.done)

	for j := range r.jobs {
		j.result <- r.run(j)
	}
}

func (r *Runtime) run(j job) (res jobResult) {
	r.ctx = j.ctx
	defer func() {
		r.ctx = nil
		if r.metrics != nil {
			r.metrics.setRoots(r.roots.Len())
		}
		if v := recover(); v != nil {
			res.recovered = v
		}
	}()
	res.err = j.fn(r.cx)
	return res
}

// Do runs fn on the runtime goroutine and waits for it. A panic in fn is
// re-raised in the caller. Do must not be called from inside fn.
func (r *Runtime) Do(ctx context.Context, fn func(cx *gcsafe.Context) error) error {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return errors.Closed(errors.PhaseEngine, "runtime "+r.name)
	}
	return r.submit(ctx, fn)
}

func (r *Runtime) submit(ctx context.Context, fn func(cx *gcsafe.Context) error) error {
	j := job{ctx: ctx, fn: fn, result: make(chan jobResult, 1)}
	select {
	case r.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	res := <-j.result
	if res.recovered != nil {
		panic(res.recovered)
	}
	return res.err
}

// Close collects the heap, closes every wazero resource and stops the
// runtime goroutine. Roots still registered at this point are reported
// as leaks.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return nil
	}

	err := r.submit(ctx, r.teardown)
	r.closed = true
	close(r.jobs)
	<-r.done
	return err
}

func (r *Runtime) teardown(cx *gcsafe.Context) error {
	if r.global != nil {
		r.global.Release()
	}
	if r.exception != nil {
		r.exception.Release()
	}
	if cx != nil {
		cx.GC("close")
		if n := r.roots.Len(); n > 0 {
			r.log.Warn("roots leaked at close", zap.Int("roots", n))
		}
	}

	ctx := r.context()
	var err error
	for inst := range r.instances {
		err = multierr.Append(err, inst.close(ctx))
	}
	err = multierr.Append(err, r.wz.Close(ctx))
	err = multierr.Append(err, r.cache.Close(ctx))
	r.log.Debug("runtime closed", zap.Error(err))
	return err
}

// Stats returns heap and root counters.
func (r *Runtime) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.Do(ctx, func(*gcsafe.Context) error {
		st = Stats{
			Heap:      r.heap.Stats(),
			Roots:     r.roots.Len(),
			PeakRoots: r.roots.Peak(),
			Instances: len(r.instances),
		}
		return nil
	})
	return st, err
}

// Global returns the rooted global object. It must only be used inside Do.
func (r *Runtime) Global() *root.Object { return r.global }

// Name returns the runtime name.
func (r *Runtime) Name() string { return r.name }

// context returns the context of the running job.
func (r *Runtime) context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// runtimeOf returns the runtime that owns cx.
func runtimeOf(cx *gcsafe.Context) *Runtime {
	return cx.Private().(*Runtime)
}

// Send roots v on dst's goroutine for the duration of fn. Only values
// audited as Transferable may cross runtimes; heap handles never do.
func Send[T trace.Transferable](ctx context.Context, dst *Runtime, v T, fn func(cx *gcsafe.Context, r *root.Root[T]) error) error {
	return dst.Do(ctx, func(cx *gcsafe.Context) error {
		return root.Scope(cx.Roots(), v, func(r *root.Root[T]) error {
			return fn(cx, r)
		})
	})
}
