package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/buffer"
	"github.com/wippyai/js-runtime/class"
	"github.com/wippyai/js-runtime/config"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/value"
)

type item struct {
	Name string `js:"name"`
	Qty  uint32 `js:"qty"`
}

type calc struct {
	Version string
	Limit   uint32            `js:"max"`
	Point   *class.Descriptor `js:"-"`
	Shape   *class.Descriptor
	Ignored int `js:"-"`

	divs    atomic.Int32
	offHost atomic.Bool
	notes   chan string
}

func newCalc() *calc {
	return &calc{
		Version: "1.0",
		Limit:   10,
		Shape: &class.Descriptor{
			Name: "Point",
			Fields: []value.PropertySpec{
				value.Required("x", value.TypeFloat64),
				value.Required("y", value.TypeFloat64),
			},
		},
		notes: make(chan string, 1),
	}
}

func (c *calc) Add(a, b float64) float64 { return a + b }

func (c *calc) Div(a, b int32) (int32, error) {
	c.divs.Add(1)
	if b == 0 {
		return 0, errors.NativeFailure("division by zero")
	}
	return a / b, nil
}

func (c *calc) Apply(cb func(int32, int32) (int32, error)) (int32, error) {
	return cb(2, 3)
}

func (c *calc) Find(name string) *item {
	if name != "bolt" {
		return nil
	}
	return &item{Name: name, Qty: 4}
}

func (c *calc) Slow(call *Call, n uint32) uint32 {
	c.offHost.Store(!call.Env().OnHostThread())
	return n * 2
}

func (c *calc) Notify(msg string) {
	c.notes <- msg
}

func (c *calc) Leak(call *Call) error {
	call.Scope().Insert(resource.TypeHostRef, "scratch")
	return errors.NativeFailure("leak")
}

func (c *calc) Live(call *Call) int32 {
	return int32(call.Env().Table().Count(resource.TypeHostRef))
}

func (c *calc) Bytes() []byte { return []byte("abc") }

func (c *calc) AsyncFunctions() map[string]Mode {
	return map[string]Mode{"slow": Await, "notify": Background}
}

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}

func withCalc(t *testing.T, opts ...Option) (*Runtime, *calc) {
	t.Helper()
	r := newRuntime(t, opts...)
	c := newCalc()
	require.NoError(t, r.RegisterExports("calc", c))
	return r, c
}

func eval(t *testing.T, r *Runtime, src string, typ *value.Type) value.Value {
	t.Helper()
	v, err := r.Eval(context.Background(), "test.js", `var calc = require("calc");`+src, typ)
	require.NoError(t, err, src)
	return v
}

func TestRegisterExports_Describe(t *testing.T) {
	r, _ := withCalc(t)

	info, err := r.Describe(context.Background(), "calc")
	require.NoError(t, err)

	var names []string
	for _, e := range info.Exports {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		"Point", "add", "apply", "bytes", "div", "find", "leak",
		"live", "max", "notify", "slow", "version",
	}, names)

	add, ok := info.Export("add")
	require.True(t, ok)
	assert.Equal(t, "add: func(float64, float64) float64", add.String())

	slow, _ := info.Export("slow")
	assert.Equal(t, Await, slow.Mode)
	assert.Equal(t, "slow: func(uint32) uint32 [await]", slow.String())

	find, _ := info.Export("find")
	assert.True(t, find.Nullable)

	point, _ := info.Export("Point")
	assert.Equal(t, ExportClass, point.Kind)

	max, _ := info.Export("max")
	assert.Equal(t, ExportValue, max.Kind)
	assert.Equal(t, "max: uint32", max.String())
}

func TestExports_Calls(t *testing.T) {
	r, _ := withCalc(t)

	tests := []struct {
		name string
		src  string
		typ  *value.Type
		want value.Value
	}{
		{"float args", `calc.add(1.5, 2)`, value.TypeFloat64, value.Float64(3.5)},
		{"string const", `calc.version`, value.TypeString, value.String("1.0")},
		{"tagged const", `calc.max`, value.TypeUint32, value.Uint32(10)},
		{"callback", `calc.apply((a, b) => a * b)`, value.TypeInt32, value.Int32(6)},
		{"null result", `calc.find("nut") === null`, value.TypeBool, value.Bool(true)},
		{"object result", `calc.find("bolt").qty`, value.TypeUint32, value.Uint32(4)},
		{"class", `new calc.Point(1, 2).y`, value.TypeFloat64, value.Float64(2)},
		{"buffer", `String.fromCharCode(...new Uint8Array(calc.bytes()))`, value.TypeString, value.String("abc")},
		{"read only", `(function() { "use strict"; try { calc.add = null; return "assigned" } catch (e) { return e.name } })()`, value.TypeString, value.String("TypeError")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eval(t, r, tt.src, tt.typ)
			assert.True(t, value.Equal(tt.want, got), "got %s", got)
		})
	}
}

func TestExports_Errors(t *testing.T) {
	r, c := withCalc(t)

	got := eval(t, r, `try { calc.div(1, 0) } catch (e) { e.name + ": " + e.message }`, value.TypeString)
	assert.Equal(t, "NativeFailureError: division by zero", got.Str())
	assert.Equal(t, int32(1), c.divs.Load())

	got = eval(t, r, `try { calc.div("1", 0) } catch (e) { e.name }`, value.TypeString)
	assert.Equal(t, "TypeMismatchError", got.Str())
	assert.Equal(t, int32(1), c.divs.Load(), "shape errors are raised before the body runs")

	got = eval(t, r, `try { calc.div(1) } catch (e) { e.code }`, value.TypeString)
	assert.Equal(t, string(errors.KindTypeMismatch), got.Str())
}

func TestExports_ScopeClosedBeforeThrow(t *testing.T) {
	r, _ := withCalc(t)

	got := eval(t, r, `try { calc.leak(); -1 } catch (e) { calc.live() }`, value.TypeInt32)
	assert.Equal(t, int32(0), got.Int32())
	assert.Equal(t, 0, r.Env().Table().Count(resource.TypeHostRef))
}

func TestExports_Await(t *testing.T) {
	r, c := withCalc(t)

	got, err := r.Await(context.Background(), "await.js", `require("calc").slow(21)`, value.TypeUint32)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got.Uint32())
	assert.True(t, c.offHost.Load(), "await bodies run on a worker")
}

func TestExports_Background(t *testing.T) {
	r, c := withCalc(t)

	got := eval(t, r, `calc.notify("hi") === undefined`, value.TypeBool)
	assert.True(t, got.Bool())

	select {
	case msg := <-c.notes:
		assert.Equal(t, "hi", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("background call never ran")
	}
}

func TestRuntime_Call(t *testing.T) {
	r, _ := withCalc(t)
	ctx := context.Background()

	got, err := r.Call(ctx, "calc", "add", value.Float64(1), value.Float64(2))
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Float64())

	got, err = r.Call(ctx, "calc", "slow", value.Uint32(4))
	require.NoError(t, err)
	assert.Equal(t, uint32(8), got.Uint32())

	got, err = r.Call(ctx, "calc", "find", value.String("nut"))
	require.NoError(t, err)
	assert.True(t, got.IsNull())

	got, err = r.Call(ctx, "calc", "find", value.String("bolt"))
	require.NoError(t, err)
	assert.Equal(t, "bolt", got.Field("name").Str())

	_, err = r.Call(ctx, "calc", "div", value.Int32(1), value.Int32(0))
	assert.True(t, errors.Is(err, errors.ErrNativeFailure))
	assert.Equal(t, "division by zero", errors.Reason(err))

	_, err = r.Call(ctx, "calc", "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = r.Call(ctx, "calc", "version")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = r.Call(ctx, "nope", "add")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRegisterInit(t *testing.T) {
	r := newRuntime(t)
	err := r.RegisterInit("greet", func(e *Exports) error {
		if err := e.Value("greeting", value.TypeString, value.String("Hello")); err != nil {
			return err
		}
		return e.Func(FuncDescriptor{
			Name: "hello",
			Sig:  &value.Signature{Params: []*value.Type{value.TypeString}, Result: value.TypeString},
			Fn: func(c *Call) (value.Value, error) {
				return value.String("Hello, " + c.Arg(0).Str() + "!"), nil
			},
		})
	})
	require.NoError(t, err)

	got, err := r.Eval(context.Background(), "greet.js", `const g = require("greet"); g.hello(g.greeting.toLowerCase())`, value.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "Hello, hello!", got.Str())
	assert.Equal(t, []string{"greet"}, r.Modules())
}

type badArgs struct{}

func (badArgs) Count(m map[string]int) int { return len(m) }

type badAsync struct{}

func (badAsync) Run() {}

func (badAsync) AsyncFunctions() map[string]Mode {
	return map[string]Mode{"walk": Await}
}

func TestRegister_Errors(t *testing.T) {
	r := newRuntime(t)

	require.NoError(t, r.RegisterInit("m", func(*Exports) error { return nil }))
	assert.True(t, errors.Is(r.RegisterInit("m", func(*Exports) error { return nil }), errors.ErrRegistration))
	assert.True(t, errors.Is(r.RegisterInit("", func(*Exports) error { return nil }), errors.ErrInvalidInput))
	assert.True(t, errors.Is(r.RegisterInit("nil", nil), errors.ErrInvalidInput))
	assert.True(t, errors.Is(r.RegisterExports("bad", badArgs{}), errors.ErrRegistration))
	assert.True(t, errors.Is(r.RegisterExports("async", badAsync{}), errors.ErrRegistration))
	assert.True(t, errors.Is(r.RegisterExports("none", nil), errors.ErrRegistration))
}

func TestExports_InitErrors(t *testing.T) {
	r := newRuntime(t)
	fn := FuncDescriptor{Name: "f", Fn: func(*Call) (value.Value, error) { return value.Absent(), nil }}

	require.NoError(t, r.RegisterInit("dup", func(e *Exports) error {
		if err := e.Func(fn); err != nil {
			return err
		}
		return e.Func(fn)
	}))
	got, err := r.Eval(context.Background(), "init.js", `try { require("dup"); "loaded" } catch (e) { e.code }`, value.TypeString)
	require.NoError(t, err)
	assert.Equal(t, string(errors.KindRegistration), got.Str())

	_, err = r.Describe(context.Background(), "dup")
	assert.True(t, errors.Is(err, errors.ErrRegistration), "a failed init stays failed")

	require.NoError(t, r.RegisterInit("nullable", func(e *Exports) error {
		d := fn
		d.Mode = Await
		d.Nullable = true
		return e.Func(d)
	}))
	_, err = r.Describe(context.Background(), "nullable")
	assert.True(t, errors.Is(err, errors.ErrRegistration))
}

func TestExports_Panic(t *testing.T) {
	r := newRuntime(t)
	require.NoError(t, r.RegisterInit("p", func(e *Exports) error {
		return e.Func(FuncDescriptor{Name: "boom", Fn: func(*Call) (value.Value, error) {
			panic("kaboom")
		}})
	}))

	got, err := r.Eval(context.Background(), "panic.js", `try { require("p").boom() } catch (e) { e.message }`, value.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "boom panicked: kaboom", got.Str())
}

func TestNew_Config(t *testing.T) {
	cfg := config.Default()
	cfg.Buffers = "zerocopy"
	cfg.Numeric = "strict"
	cfg.Workers = 2
	r, _ := withCalc(t, WithConfig(cfg), WithLogger(zap.NewNop()))

	assert.Equal(t, buffer.ZeroCopy, r.Buffers().Mode())
	assert.Equal(t, 2, r.Scheduler().Stats().Workers)

	got := eval(t, r, `new Uint8Array(calc.bytes()).length`, value.TypeInt32)
	assert.Equal(t, int32(3), got.Int32())
	assert.Equal(t, uint64(0), r.Buffers().Stats().Copied)

	got = eval(t, r, `try { calc.div(1.5, 1) } catch (e) { e.name }`, value.TypeString)
	assert.Equal(t, "RangeOverflowError", got.Str())

	bad := config.Default()
	bad.Channel.Capacity = 0
	_, err := New(WithConfig(bad))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRuntime_RunAndClose(t *testing.T) {
	r, c := withCalc(t)
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, "run.js", `Promise.resolve().then(() => require("calc").notify("later"))`))
	assert.Equal(t, "later", <-c.notes)

	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))

	_, err := r.Eval(ctx, "closed.js", `1`, nil)
	assert.True(t, errors.Is(err, errors.ErrClosed))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "sync", Sync.String())
	assert.Equal(t, "await", Await.String())
	assert.Equal(t, "background", Background.String())
	assert.Equal(t, "class", ExportClass.String())
}
