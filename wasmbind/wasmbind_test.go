package wasmbind

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/runtime"
	"github.com/wippyai/js-runtime/value"
)

// (func (export "add") (param i32 i32) (result i32) local.get 0 local.get 1 i32.add)
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// mul: (f64, f64) -> f64, big: () -> i64, boom: () -> () unreachable
var mixedWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0e, 0x03,
	0x60, 0x02, 0x7c, 0x7c, 0x01, 0x7c,
	0x60, 0x00, 0x01, 0x7e,
	0x60, 0x00, 0x00,
	0x03, 0x04, 0x03, 0x00, 0x01, 0x02,
	0x07, 0x14, 0x03,
	0x03, 0x6d, 0x75, 0x6c, 0x00, 0x00,
	0x03, 0x62, 0x69, 0x67, 0x00, 0x01,
	0x04, 0x62, 0x6f, 0x6f, 0x6d, 0x00, 0x02,
	0x0a, 0x12, 0x03,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0xa2, 0x0b,
	0x04, 0x00, 0x42, 0x2a, 0x0b,
	0x03, 0x00, 0x00, 0x0b,
}

func load(t *testing.T, wasm []byte) *Module {
	t.Helper()
	m, err := Load(context.Background(), wasm, &Config{MemoryLimitPages: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestLoad_Add(t *testing.T) {
	m := load(t, addWasm)

	require.Len(t, m.Functions(), 1)
	add, ok := m.Function("add")
	require.True(t, ok)
	assert.Equal(t, "func(int32, int32) int32", add.Signature().String())

	got, err := add.Call(value.Int32(40), value.Int32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(42), got.Int32())

	got, err = add.Call(value.Int32(1<<31-1), value.Int32(1))
	require.NoError(t, err)
	assert.Equal(t, int32(-1<<31), got.Int32(), "i32.add wraps")
}

func TestFunction_Errors(t *testing.T) {
	m := load(t, addWasm)
	add, _ := m.Function("add")

	_, err := add.Call(value.Int32(1))
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch))

	_, err = add.Call(value.Int32(1), value.String("2"))
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch))

	require.NoError(t, m.Close(context.Background()))
	_, err = add.Call(value.Int32(1), value.Int32(2))
	assert.True(t, errors.Is(err, errors.ErrClosed))
}

func TestLoad_Mixed(t *testing.T) {
	m := load(t, mixedWasm)

	var names []string
	for _, f := range m.Functions() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"boom", "mul"}, names, "i64 exports are skipped")

	mul, _ := m.Function("mul")
	got, err := mul.Invoke(context.Background(), value.Float64(1.5), value.Float64(4))
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.Float64())

	boom, _ := m.Function("boom")
	_, err = boom.Call()
	assert.True(t, errors.Is(err, errors.ErrNativeFailure))
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(context.Background(), []byte("not wasm"), nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestBind(t *testing.T) {
	m, err := Load(context.Background(), addWasm, nil)
	require.NoError(t, err)

	rt, err := runtime.New()
	require.NoError(t, err)
	require.NoError(t, rt.RegisterInit("math", func(e *runtime.Exports) error {
		return Bind(e, m)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := rt.Eval(ctx, "math.js", `require("math").add(40, 2)`, value.TypeInt32)
	require.NoError(t, err)
	assert.Equal(t, int32(42), got.Int32())

	got, err = rt.Eval(ctx, "math.js", `try { require("math").add("x", 2) } catch (e) { e.name }`, value.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "TypeMismatchError", got.Str())

	require.NoError(t, rt.Close(ctx))
	assert.True(t, m.closed.Load(), "closing the runtime closes the module")
}

func witFunc(name string, result wit.Type, params ...wit.Type) *wit.Function {
	fn := &wit.Function{Name: name, Kind: &wit.Freestanding{}}
	for i, p := range params {
		fn.Params = append(fn.Params, wit.Param{Name: string(rune('a' + i)), Type: p})
	}
	if result != nil {
		fn.Results = []wit.Param{{Type: result}}
	}
	return fn
}

func TestLoad_WITTyped(t *testing.T) {
	m, err := Load(context.Background(), addWasm, &Config{
		Interface: []*wit.Function{witFunc("add", wit.U32{}, wit.U32{}, wit.U32{})},
	})
	require.NoError(t, err)
	defer m.Close(context.Background())

	add, ok := m.Function("add")
	require.True(t, ok)
	assert.Equal(t, "func(uint32, uint32) uint32", add.Signature().String())

	got, err := add.Call(value.Uint32(4000000000), value.Uint32(1))
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000001), got.Uint32())

	_, err = add.Call(value.Int32(1), value.Int32(2))
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch), "core types no longer accepted once described")

	m2, err := Load(context.Background(), addWasm, &Config{
		Interface: []*wit.Function{witFunc("add", wit.Bool{}, wit.Bool{}, wit.Bool{})},
	})
	require.NoError(t, err)
	defer m2.Close(context.Background())
	or, _ := m2.Function("add")
	got, err = or.Call(value.Bool(false), value.Bool(true))
	require.NoError(t, err)
	assert.True(t, got.Bool())
}

func TestLoad_WITMismatch(t *testing.T) {
	tests := []struct {
		name string
		fn   *wit.Function
		want error
	}{
		{"float param", witFunc("add", wit.S32{}, wit.F64{}, wit.S32{}), errors.ErrTypeMismatch},
		{"arity", witFunc("add", wit.S32{}, wit.S32{}), errors.ErrTypeMismatch},
		{"no result", witFunc("add", nil, wit.S32{}, wit.S32{}), errors.ErrTypeMismatch},
		{"string", witFunc("add", wit.S32{}, wit.String{}, wit.S32{}), errors.ErrUnsupported},
		{"64-bit", witFunc("add", wit.S64{}, wit.S32{}, wit.S32{}), errors.ErrUnsupported},
		{"not exported", witFunc("sub", wit.S32{}, wit.S32{}, wit.S32{}), errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), addWasm, &Config{Interface: []*wit.Function{tt.fn}})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestWorldExports(t *testing.T) {
	w := &wit.World{Name: "calc"}
	w.Exports.Set("add", witFunc("add", wit.U32{}, wit.U32{}, wit.U32{}))
	w.Exports.Set("[method]counter.get", &wit.Function{Name: "[method]counter.get", Kind: &wit.Method{}})
	res := &wit.Resolve{Worlds: []*wit.World{w}}

	fns, err := WorldExports(res, "calc")
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, "add", fns[0].Name)

	_, err = WorldExports(res, "other")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
