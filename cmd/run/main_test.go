package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/errors"
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

func TestNewRuntime(t *testing.T) {
	dir := t.TempDir()
	wasmPath := filepath.Join(dir, "add.wasm")
	require.NoError(t, os.WriteFile(wasmPath, addWasm, 0o644))
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: 2\nnumeric: strict\n"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt, err := newRuntime(ctx, cfgPath, wasmSource{file: wasmPath, name: "math"})
	require.NoError(t, err)
	defer rt.Close(ctx)

	assert.Equal(t, []string{"hello", "math"}, rt.Modules())
	assert.Equal(t, 2, rt.Config().Workers)

	got, err := rt.Call(ctx, "math", "add", value.Int32(20), value.Int32(22))
	require.NoError(t, err)
	assert.Equal(t, int32(42), got.Int32())

	require.NoError(t, listExports(ctx, rt))
	require.NoError(t, evalExpr(ctx, rt, `require("hello").fib_async(10)`))
}

func TestNewRuntime_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := newRuntime(ctx, filepath.Join(dir, "missing.yaml"), wasmSource{})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	bad := filepath.Join(dir, "bad.wasm")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = newRuntime(ctx, "", wasmSource{file: bad, name: "math"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	wasmPath := filepath.Join(dir, "add.wasm")
	require.NoError(t, os.WriteFile(wasmPath, addWasm, 0o644))
	witPath := filepath.Join(dir, "calc.json")
	require.NoError(t, os.WriteFile(witPath, []byte(calcWIT), 0o644))
	_, err = newRuntime(ctx, "", wasmSource{file: wasmPath, name: "math", wit: witPath, world: "nope"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

// calcWIT is the JSON form of
//
//	package example:calc;
//	world calc { export add: func(a: u32, b: u32) -> u32; }
const calcWIT = `{
	"worlds": [{
		"name": "calc",
		"imports": {},
		"exports": {
			"add": {"function": {
				"name": "add",
				"kind": "freestanding",
				"params": [{"name": "a", "type": "u32"}, {"name": "b", "type": "u32"}],
				"result": "u32"
			}}
		},
		"package": 0
	}],
	"interfaces": [],
	"types": [],
	"packages": [{"name": "example:calc", "interfaces": {}, "worlds": {"calc": 0}}]
}`

func TestNewRuntime_WIT(t *testing.T) {
	dir := t.TempDir()
	wasmPath := filepath.Join(dir, "add.wasm")
	require.NoError(t, os.WriteFile(wasmPath, addWasm, 0o644))
	witPath := filepath.Join(dir, "calc.json")
	require.NoError(t, os.WriteFile(witPath, []byte(calcWIT), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt, err := newRuntime(ctx, "", wasmSource{file: wasmPath, name: "calc", wit: witPath})
	require.NoError(t, err)
	defer rt.Close(ctx)

	info, err := rt.Describe(ctx, "calc")
	require.NoError(t, err)
	add, ok := info.Export("add")
	require.True(t, ok)
	assert.Equal(t, "add: func(uint32, uint32) uint32", add.String())

	got, err := rt.Eval(ctx, "calc.js", `require("calc").add(4000000000, 1)`, value.TypeUint32)
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000001), got.Uint32())

	got, err = rt.Eval(ctx, "calc.js", `try { require("calc").add(true, 1) } catch (e) { e.name }`, value.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "TypeMismatchError", got.Str())
}
