package engine

import (
	"context"
	"crypto/rand"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gcroot/errors"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/root"
	"github.com/wippyai/gcroot/trace"
)

const wasiModule = "wasi_snapshot_preview1"

// script is the payload of a compiled module cell.
type script struct {
	compiled wazero.CompiledModule
	log      *zap.Logger
	bytes    []byte
}

func (s *script) Finalize() {
	if err := s.compiled.Close(context.Background()); err != nil {
		s.log.Warn("close compiled module", zap.Error(err))
	}
}

// instance is the native part of an instance object.
type instance struct {
	rt      *Runtime
	wz      wazero.Runtime
	mod     api.Module
	imports trace.Slice[trace.HeapObject]
	closed  bool
}

func (i *instance) Trace(trc trace.Tracer) { i.imports.Trace(trc) }

func (i *instance) Finalize() {
	if err := i.close(context.Background()); err != nil {
		i.rt.log.Warn("close instance", zap.Error(err))
	}
}

func (i *instance) close(ctx context.Context) error {
	if i.closed {
		return nil
	}
	i.closed = true
	delete(i.rt.instances, i)
	if i.wz == nil {
		// Import resolution failed before a runtime was created.
		return nil
	}
	return i.wz.Close(ctx)
}

// memory is the native part of an exported memory object.
type memory struct {
	mem   api.Memory
	owner trace.HeapObject
}

func (m *memory) Trace(trc trace.Tracer) { m.owner.Trace(trc) }

// Import describes one function a module imports.
type Import struct {
	Module string
	Name   string
	Params []api.ValueType
	Result []api.ValueType
}

// Export describes one function or memory a module exports.
type Export struct {
	Name   string
	Kind   string
	Params []api.ValueType
	Result []api.ValueType
}

// CompileModule compiles wasm bytes into a script. A compile failure
// leaves a CompileError pending.
func CompileModule(cx *gcsafe.Context, wasm []byte) (*root.Script, error) {
	cx.MayGC()
	r := runtimeOf(cx)

	compiled, err := r.wz.CompileModule(r.context(), wasm)
	if err != nil {
		if tErr := r.throw(cx, "CompileError", err.Error()); tErr != nil {
			return nil, tErr
		}
		return nil, errors.Exception(errors.PhaseCompile, "compile module", err)
	}
	s := &script{compiled: compiled, bytes: wasm, log: r.log}
	ref, err := cx.Alloc(trace.KindScript, s)
	if err != nil {
		_ = compiled.Close(r.context())
		return nil, err
	}
	r.log.Debug("module compiled",
		zap.Int("bytes", len(wasm)),
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return root.NewScript(cx.Roots(), ref)
}

func (r *Runtime) mustScript(ref trace.Ref) *script {
	s, ok := r.heap.MustGet(ref).(*script)
	if !ok {
		r.log.Fatal("script handle does not point at a script", zap.Stringer("ref", ref))
	}
	return s
}

// ModuleImports lists the functions a compiled module imports.
func ModuleImports(nogc *gcsafe.NoGC, s *root.Script) []Import {
	p, ok := nogc.Get(s.Get().Get())
	if !ok {
		return nil
	}
	sc := p.(*script)
	var out []Import
	for _, def := range sc.compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		out = append(out, Import{Module: mod, Name: name, Params: def.ParamTypes(), Result: def.ResultTypes()})
	}
	return out
}

// ModuleExports lists the functions and memories a compiled module
// exports, sorted by name.
func ModuleExports(nogc *gcsafe.NoGC, s *root.Script) []Export {
	p, ok := nogc.Get(s.Get().Get())
	if !ok {
		return nil
	}
	sc := p.(*script)
	var out []Export
	for name, def := range sc.compiled.ExportedFunctions() {
		out = append(out, Export{Name: name, Kind: "func", Params: def.ParamTypes(), Result: def.ResultTypes()})
	}
	for name := range sc.compiled.ExportedMemories() {
		out = append(out, Export{Name: name, Kind: "memory"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Instantiate instantiates a compiled module. imports maps module names to
// objects whose properties are the imported functions; it may be nil when
// the module imports nothing. The returned instance object has an
// "exports" property.
func Instantiate(cx *gcsafe.Context, s *root.Script, imports *root.Object) (*root.Object, error) {
	cx.MayGC()
	if s == nil {
		return nil, errors.NilPointer(errors.PhaseInstantiate, []string{"script"}, "*root.Script")
	}
	r := runtimeOf(cx)
	ctx := r.context()
	sc := r.mustScript(s.Get().Get())

	inst := &instance{rt: r}
	instObj, err := allocObject(cx, newObject(classInstance, inst))
	if err != nil {
		return nil, err
	}
	defer instObj.Release()

	targets, needWASI, err := r.resolveImports(cx, sc, imports, inst)
	if err != nil {
		return nil, err
	}

	inst.wz = wazero.NewRuntimeWithConfig(ctx, r.runtimeConfig())
	r.instances[inst] = struct{}{}

	fail := func(err error) (*root.Object, error) {
		_ = inst.close(ctx)
		if tErr := r.throw(cx, "LinkError", err.Error()); tErr != nil {
			return nil, tErr
		}
		return nil, errors.Instantiation(err)
	}

	if needWASI {
		if _, err := instantiateWASI(ctx, inst.wz); err != nil {
			return fail(err)
		}
	}
	for mod, fns := range targets {
		b := inst.wz.NewHostModuleBuilder(mod)
		for _, t := range fns {
			b.NewFunctionBuilder().
				WithGoModuleFunction(r.hostFunc(t.target, t.params, t.results), t.params, t.results).
				WithName(mod + "." + t.name).
				Export(t.name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return fail(err)
		}
	}

	compiled, err := inst.wz.CompileModule(ctx, sc.bytes)
	if err != nil {
		return fail(err)
	}
	inst.mod, err = inst.wz.InstantiateModule(ctx, compiled, r.moduleConfig())
	if err != nil {
		return fail(err)
	}

	if err := r.buildExports(cx, instObj, inst); err != nil {
		return nil, err
	}
	r.log.Debug("module instantiated",
		zap.Int("host_modules", len(targets)),
		zap.Bool("wasi", needWASI))

	return root.NewObject(cx.Roots(), instObj.Get().Get())
}

type hostTarget struct {
	target  trace.HeapObject
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// resolveImports looks up every imported function in the imports object.
// Resolved function objects are recorded on inst, which keeps them alive.
func (r *Runtime) resolveImports(cx *gcsafe.Context, sc *script, imports *root.Object, inst *instance) (map[string][]hostTarget, bool, error) {
	targets := make(map[string][]hostTarget)
	var (
		missing  []string
		needWASI bool
	)
	for _, def := range sc.compiled.ImportedFunctions() {
		mod, name, _ := def.Import()

		var modObj *object
		if imports != nil {
			if v := r.mustObject(imports.Get().Get()).get(mod); v.IsObject() {
				modObj, _ = r.objectAt(v.AsObject())
			}
		}
		if modObj == nil {
			if mod == wasiModule && r.cfg.WASI {
				needWASI = true
				continue
			}
			missing = append(missing, errors.ImportKey(mod, name))
			continue
		}

		fv := modObj.get(name)
		if !fv.IsObject() {
			missing = append(missing, errors.ImportKey(mod, name))
			continue
		}
		fo, ok := r.objectAt(fv.AsObject())
		if !ok {
			missing = append(missing, errors.ImportKey(mod, name))
			continue
		}
		if _, ok := fo.native.(*function); !ok {
			err := errors.TypeMismatch(errors.PhaseInstantiate, []string{mod, name}, "function", fo.class)
			if tErr := r.throw(cx, "LinkError", err.Error()); tErr != nil {
				return nil, false, tErr
			}
			return nil, false, err
		}
		if !hostSignature(def.ParamTypes(), def.ResultTypes()) {
			err := errors.Unsupported(errors.PhaseInstantiate, "import "+mod+"."+name+" uses reference types or multiple results")
			if tErr := r.throw(cx, "LinkError", err.Error()); tErr != nil {
				return nil, false, tErr
			}
			return nil, false, err
		}

		target := trace.NewHeapObject(fv.AsObject())
		inst.imports = append(inst.imports, target)
		targets[mod] = append(targets[mod], hostTarget{
			target:  target,
			name:    name,
			params:  def.ParamTypes(),
			results: def.ResultTypes(),
		})
	}
	if len(missing) > 0 {
		err := errors.NewMissingImportsError(missing)
		if tErr := r.throw(cx, "LinkError", err.Error()); tErr != nil {
			return nil, false, tErr
		}
		return nil, false, err
	}
	return targets, needWASI, nil
}

// hostSignature reports whether a host function can serve an import with
// this signature: numeric types only, at most one result.
func hostSignature(params, results []api.ValueType) bool {
	if len(results) > 1 {
		return false
	}
	for _, t := range append(params[:len(params):len(params)], results...) {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		default:
			return false
		}
	}
	return true
}

func (r *Runtime) moduleConfig() wazero.ModuleConfig {
	mc := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions()
	if !r.cfg.WASI {
		return mc
	}
	mc = mc.WithArgs(append([]string{r.name}, r.cfg.Args...)...).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)
	for k, v := range r.cfg.Env {
		mc = mc.WithEnv(k, v)
	}
	if r.stdin != nil {
		mc = mc.WithStdin(r.stdin)
	}
	if r.stdout != nil {
		mc = mc.WithStdout(r.stdout)
	}
	if r.stderr != nil {
		mc = mc.WithStderr(r.stderr)
	}
	return mc
}

// hostFunc adapts a function object to a wazero host function. The object
// is read through target on every call, so relocation is observed.
func (r *Runtime) hostFunc(target trace.HeapObject, params, results []api.ValueType) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		cx := r.cx
		args, err := root.NewVec[trace.HeapValue](cx.Roots(), len(params))
		if err != nil {
			panic(hostError{err})
		}
		defer args.Release()
		for i, t := range params {
			args.Push(trace.NewHeapValue(fromWasm(t, stack[i])))
		}
		rval, err := root.NewValue(cx.Roots(), trace.UndefinedValue())
		if err != nil {
			panic(hostError{err})
		}
		defer rval.Release()

		f, ok := r.mustObject(target.Get()).native.(*function)
		if !ok {
			r.log.Fatal("import target is not a function")
		}
		if err := r.call(cx, f, args, rval); err != nil {
			panic(hostError{err})
		}
		if len(results) > 0 {
			stack[0] = toWasm(results[0], rval.Get().Get())
		}
	}
}

// hostError unwinds a wasm call after a host function failed. The
// exception it describes is already pending.
type hostError struct{ err error }

func (e hostError) Error() string { return e.err.Error() }
func (e hostError) Unwrap() error { return e.err }

// buildExports creates the exports object of a new instance.
func (r *Runtime) buildExports(cx *gcsafe.Context, instObj *root.Object, inst *instance) error {
	exports, err := NewPlainObject(cx)
	if err != nil {
		return err
	}
	defer exports.Release()

	names := make([]string, 0, len(inst.mod.ExportedFunctionDefinitions()))
	for name := range inst.mod.ExportedFunctionDefinitions() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn := inst.mod.ExportedFunction(name)
		o := newObject(classFunction, &function{
			wasm:  fn,
			name:  name,
			arity: len(fn.Definition().ParamTypes()),
			owner: trace.NewHeapObject(instObj.Get().Get()),
		})
		obj, err := allocObject(cx, o)
		if err != nil {
			return err
		}
		o.set("length", trace.Int32Value(int32(len(fn.Definition().ParamTypes()))))
		err = SetPropertyValue(cx, exports, name, ObjectValue(obj))
		obj.Release()
		if err != nil {
			return err
		}
	}

	for name := range inst.mod.ExportedMemoryDefinitions() {
		mem := inst.mod.ExportedMemory(name)
		o := newObject(classMemory, &memory{mem: mem, owner: trace.NewHeapObject(instObj.Get().Get())})
		obj, err := allocObject(cx, o)
		if err != nil {
			return err
		}
		err = SetPropertyValue(cx, exports, name, ObjectValue(obj))
		obj.Release()
		if err != nil {
			return err
		}
	}

	return SetPropertyValue(cx, instObj, "exports", ObjectValue(exports))
}

// ReadMemory returns a view of length bytes of guest memory at offset.
// The view is only valid while nogc is held: the memory may grow or be
// released by a collection afterwards.
func ReadMemory(nogc *gcsafe.NoGC, mem *root.Object, offset, length uint32) ([]byte, error) {
	m, ok := memoryOf(nogc, mem)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseEngine, nil, "memory", "object")
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseEngine, []string{"memory"}, int(offset)+int(length), int(m.mem.Size()))
	}
	return data, nil
}

// MemorySize returns the size of guest memory in bytes.
func MemorySize(nogc *gcsafe.NoGC, mem *root.Object) (uint32, bool) {
	m, ok := memoryOf(nogc, mem)
	if !ok {
		return 0, false
	}
	return m.mem.Size(), true
}

func memoryOf(nogc *gcsafe.NoGC, mem *root.Object) (*memory, bool) {
	p, ok := nogc.Get(mem.Get().Get())
	if !ok {
		return nil, false
	}
	o, ok := p.(*object)
	if !ok {
		return nil, false
	}
	m, ok := o.native.(*memory)
	return m, ok
}
