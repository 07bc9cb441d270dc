// Package wasmbind exposes the exports of a compiled WebAssembly core
// module as native functions.
//
// Exports whose parameters and result are i32, f32 or f64 are bound; i32
// maps to int32, f32 to float32 and f64 to float64. Other exports are
// skipped. A WIT world can type the exports more precisely: an export
// described by a WIT function whose types lower to its core signature is
// bound with the WIT types, so a u32 or bool parameter is checked as such.
// Calls on one module are serialized.
//
//	mod, err := wasmbind.Load(ctx, wasmBytes, nil)
//	...
//	rt.RegisterInit("math", func(e *runtime.Exports) error {
//	    return wasmbind.Bind(e, mod)
//	})
package wasmbind

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/runtime"
	"github.com/wippyai/js-runtime/value"
)

// Config holds module load options.
type Config struct {
	// MemoryLimitPages caps linear memory in 64KB pages. Zero keeps the
	// wazero default.
	MemoryLimitPages uint32
	// Interface describes exports by WIT function, matched by name.
	// Exports it does not list keep their core types.
	Interface []*wit.Function
}

// Module is an instantiated wasm core module.
type Module struct {
	runtime wazero.Runtime
	logger  *zap.Logger
	funcs   []*Function
	mu      sync.Mutex
	closed  atomic.Bool
}

// Function is one bound export.
type Function struct {
	module  *Module
	fn      api.Function
	sig     *value.Signature
	name    string
	params  []api.ValueType
	results []api.ValueType
}

var _ value.Function = (*Function)(nil)

// Load compiles and instantiates wasm. The module may not import anything.
func Load(ctx context.Context, wasm []byte, cfg *Config) (*Module, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Load("compile module", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Load("instantiate module", err)
	}

	m := &Module{runtime: rt, logger: Logger()}

	var described map[string]*wit.Function
	if cfg != nil && len(cfg.Interface) > 0 {
		described = make(map[string]*wit.Function, len(cfg.Interface))
		for _, fn := range cfg.Interface {
			described[fn.Name] = fn
		}
	}

	defs := compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := defs[name]
		var sig *value.Signature
		if fn, ok := described[name]; ok {
			if sig, err = witSignature(fn, def.ParamTypes(), def.ResultTypes()); err != nil {
				_ = rt.Close(ctx)
				return nil, err
			}
		} else if sig, ok = signature(def.ParamTypes(), def.ResultTypes()); !ok {
			m.logger.Debug("skipping export with unsupported signature", zap.String("export", name))
			continue
		}
		m.funcs = append(m.funcs, &Function{
			module:  m,
			fn:      mod.ExportedFunction(name),
			sig:     sig,
			name:    name,
			params:  def.ParamTypes(),
			results: def.ResultTypes(),
		})
	}
	for name := range described {
		if _, ok := defs[name]; !ok {
			_ = rt.Close(ctx)
			return nil, errors.NotFound(errors.PhaseLoad, "wasm export", name)
		}
	}
	m.logger.Debug("wasm module loaded", zap.Int("functions", len(m.funcs)), zap.Int("described", len(described)))
	return m, nil
}

func signature(params, results []api.ValueType) (*value.Signature, bool) {
	sig := &value.Signature{}
	for _, p := range params {
		t, ok := typeOf(p)
		if !ok {
			return nil, false
		}
		sig.Params = append(sig.Params, t)
	}
	switch len(results) {
	case 0:
	case 1:
		t, ok := typeOf(results[0])
		if !ok {
			return nil, false
		}
		sig.Result = t
	default:
		return nil, false
	}
	return sig, true
}

func typeOf(t api.ValueType) (*value.Type, bool) {
	switch t {
	case api.ValueTypeI32:
		return value.TypeInt32, true
	case api.ValueTypeF32:
		return value.TypeFloat32, true
	case api.ValueTypeF64:
		return value.TypeFloat64, true
	}
	return nil, false
}

// Functions returns the bound exports sorted by name.
func (m *Module) Functions() []*Function {
	return m.funcs
}

// Function returns the bound export called name.
func (m *Module) Function(name string) (*Function, bool) {
	for _, f := range m.funcs {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// Close releases the module and its wazero runtime. It is idempotent.
func (m *Module) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runtime.Close(ctx)
}

// Name returns the export name.
func (f *Function) Name() string { return f.name }

// Signature returns the native signature of the export.
func (f *Function) Signature() *value.Signature { return f.sig }

// Call invokes the export with a background context.
func (f *Function) Call(args ...value.Value) (value.Value, error) {
	return f.Invoke(context.Background(), args...)
}

// Invoke checks args against the signature and calls the export. A trap
// surfaces as a NativeFailure.
func (f *Function) Invoke(ctx context.Context, args ...value.Value) (value.Value, error) {
	if len(args) != len(f.params) {
		return value.Value{}, errors.ArityMismatch(errors.PhaseCall, nil, len(f.params), len(args))
	}
	in := make([]uint64, len(args))
	for i, arg := range args {
		want := f.sig.Params[i]
		if arg.Kind() != want.Kind {
			return value.Value{}, errors.TypeMismatch(errors.PhaseCall,
				[]string{"args", errors.Index(i)}, want.String(), arg.Kind().String())
		}
		in[i] = encode(arg)
	}

	if f.module.closed.Load() {
		return value.Value{}, errors.Closed(errors.PhaseCall, "wasm module")
	}
	f.module.mu.Lock()
	out, err := f.fn.Call(ctx, in...)
	f.module.mu.Unlock()
	if err != nil {
		return value.Value{}, errors.New(errors.PhaseCall, errors.KindNativeFailure).
			Detail("%s trapped", f.name).
			Cause(err).
			Build()
	}

	if f.sig.Result == nil {
		return value.Absent(), nil
	}
	return decode(f.sig.Result, out[0]), nil
}

func encode(v value.Value) uint64 {
	switch v.Kind() {
	case value.KindBool:
		if v.Bool() {
			return 1
		}
		return 0
	case value.KindUint32:
		return api.EncodeU32(v.Uint32())
	case value.KindFloat32:
		return api.EncodeF32(v.Float32())
	case value.KindFloat64:
		return api.EncodeF64(v.Float64())
	}
	return api.EncodeI32(v.Int32())
}

func decode(t *value.Type, raw uint64) value.Value {
	switch t.Kind {
	case value.KindBool:
		return value.Bool(api.DecodeU32(raw) != 0)
	case value.KindUint32:
		return value.Uint32(api.DecodeU32(raw))
	case value.KindFloat32:
		return value.Float32(api.DecodeF32(raw))
	case value.KindFloat64:
		return value.Float64(api.DecodeF64(raw))
	}
	return value.Int32(api.DecodeI32(raw))
}

// Bind exports every function of m into e as synchronous functions and
// closes m when the environment closes.
func Bind(e *runtime.Exports, m *Module) error {
	for _, f := range m.funcs {
		err := e.Func(runtime.FuncDescriptor{
			Name: f.name,
			Sig:  f.sig,
			Fn: func(c *runtime.Call) (value.Value, error) {
				return f.Invoke(context.Background(), c.Args...)
			},
		})
		if err != nil {
			return err
		}
	}
	e.Env().AddCleanupHook(func() {
		if err := m.Close(context.Background()); err != nil {
			m.logger.Warn("close wasm module", zap.Error(err))
		}
	})
	return nil
}
