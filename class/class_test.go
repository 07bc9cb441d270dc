package class

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/value"
)

func newEnv(t *testing.T) *engine.Env {
	t.Helper()
	env := engine.New()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.Close(ctx)
	})
	return env
}

func personFields() []value.PropertySpec {
	return []value.PropertySpec{
		value.Required("name", value.TypeString),
		value.Required("age", value.TypeInt32),
	}
}

// register registers d and exposes its constructor as a global.
func register(t *testing.T, env *engine.Env, d *Descriptor) *Class {
	t.Helper()
	var c *Class
	err := env.Do(context.Background(), func(rt *goja.Runtime) error {
		var err error
		if c, err = Register(env, d); err != nil {
			return err
		}
		return rt.Set(d.Name, c.Constructor())
	})
	require.NoError(t, err)
	return c
}

func eval(t *testing.T, env *engine.Env, src string, typ *value.Type) value.Value {
	t.Helper()
	v, err := env.Eval(context.Background(), "test.js", src, typ)
	require.NoError(t, err, src)
	return v
}

func TestClass_PublicConstructor(t *testing.T) {
	env := newEnv(t)
	register(t, env, &Descriptor{Name: "TestClass", Fields: personFields()})

	got := eval(t, env, `
		const p = new TestClass("ann", 30);
		p.age = p.age + 1;
		[p.name, p.age, p instanceof TestClass, TestClass.name]
	`, value.TupleOf(value.TypeString, value.TypeInt32, value.TypeBool, value.TypeString))
	assert.Equal(t, "ann", got.Index(0).Str())
	assert.Equal(t, int32(31), got.Index(1).Int32())
	assert.True(t, got.Index(2).Bool())
	assert.Equal(t, "TestClass", got.Index(3).Str())

	reflected := eval(t, env, `
		var q = Reflect.construct(TestClass, ["eve", 4]);
		[q.name, q.age, Object.getPrototypeOf(q) === TestClass.prototype, TestClass.length]
	`, value.TupleOf(value.TypeString, value.TypeInt32, value.TypeBool, value.TypeInt32))
	assert.Equal(t, "eve", reflected.Index(0).Str())
	assert.Equal(t, int32(4), reflected.Index(1).Int32())
	assert.True(t, reflected.Index(2).Bool())
	assert.Equal(t, int32(2), reflected.Index(3).Int32())
}

func TestClass_Errors(t *testing.T) {
	env := newEnv(t)
	register(t, env, &Descriptor{Name: "TestClass", Fields: personFields()})

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"without new", `TestClass("ann", 1)`, "TypeError"},
		{"call with receiver", `TestClass.call({}, "ann", 1)`, "TypeError"},
		{"missing argument", `new TestClass("ann")`, "MissingRequiredFieldError"},
		{"wrong argument", `new TestClass(1, 1)`, "TypeMismatchError"},
		{"wrong assignment", `new TestClass("ann", 1).age = "old"`, "TypeMismatchError"},
		{"null assignment", `new TestClass("ann", 1).name = null`, "TypeMismatchError"},
		{"foreign receiver", `Object.getOwnPropertyDescriptor(TestClass.prototype, "name").get.call({})`, "TypeMismatchError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := fmt.Sprintf("(() => { try { %s; return 'none' } catch (e) { return e.name } })()", tt.src)
			got := eval(t, env, src, value.TypeString)
			assert.Equal(t, tt.want, got.Str())
		})
	}
}

func TestClass_ReorderedConstructor(t *testing.T) {
	env := newEnv(t)
	var inits atomic.Int32
	register(t, env, &Descriptor{
		Name:       "TestWithInitClass",
		Fields:     personFields(),
		CtorParams: []string{"age", "name"},
		Statics:    []Static{{Name: "hello", Value: value.String("world")}},
		Init: func(inst *Instance) error {
			inits.Add(1)
			if inst.Get("age").Int32() < 0 {
				return errors.NativeFailure("age must not be negative")
			}
			return nil
		},
	})

	got := eval(t, env, `
		const p = new TestWithInitClass(18, "bob");
		[p.name, p.age, TestWithInitClass.length]
	`, value.TupleOf(value.TypeString, value.TypeInt32, value.TypeInt32))
	assert.Equal(t, "bob", got.Index(0).Str())
	assert.Equal(t, int32(18), got.Index(1).Int32())
	assert.Equal(t, int32(2), got.Index(2).Int32())

	msg := eval(t, env, `try { new TestWithInitClass(-1, "x"); "" } catch (e) { e.message }`, value.TypeString)
	assert.Equal(t, "age must not be negative", msg.Str())
	assert.Equal(t, int32(2), inits.Load())
}

func TestClass_Statics(t *testing.T) {
	env := newEnv(t)
	register(t, env, &Descriptor{
		Name:    "TestWithInitClass",
		Fields:  personFields(),
		Statics: []Static{{Name: "hello", Value: value.String("world")}},
	})

	got := eval(t, env, `
		TestWithInitClass.hello = "changed";
		delete TestWithInitClass.hello;
		const d = Object.getOwnPropertyDescriptor(TestWithInitClass, "hello");
		[TestWithInitClass.hello, d.writable, d.configurable]
	`, value.TupleOf(value.TypeString, value.TypeBool, value.TypeBool))
	assert.Equal(t, "world", got.Index(0).Str())
	assert.False(t, got.Index(1).Bool())
	assert.False(t, got.Index(2).Bool())

	strict := eval(t, env, `(() => { "use strict"; try { TestWithInitClass.hello = 1; return "" } catch (e) { return e.name } })()`, value.TypeString)
	assert.Equal(t, "TypeError", strict.Str())
}

func TestClass_FactoryOnly(t *testing.T) {
	env := newEnv(t)
	c := register(t, env, &Descriptor{
		Name:    "TestWithoutInitClass",
		Fields:  personFields(),
		Statics: []Static{{Name: "hello", Value: value.String("world")}},
		Policy:  FactoryOnly,
	})

	for _, src := range []string{
		`new TestWithoutInitClass("a", 1)`,
		`TestWithoutInitClass("a", 1)`,
		`Reflect.construct(TestWithoutInitClass, ["a", 1])`,
	} {
		got := eval(t, env, `(() => { try { `+src+`; return "" } catch (e) { return e.name } })()`, value.TypeString)
		assert.Equal(t, "ConstructionForbiddenError", got.Str(), src)
	}
	assert.Equal(t, uint64(0), c.Stats().Created)

	err := env.Do(context.Background(), func(rt *goja.Runtime) error {
		obj, inst, err := c.New(value.Object(value.F("name", value.String("made")), value.F("age", value.Int32(7))))
		if err != nil {
			return err
		}
		assert.Equal(t, Constructed, inst.State())
		return rt.Set("made", obj)
	})
	require.NoError(t, err)

	v := eval(t, env, `[made.name, made.age, made instanceof TestWithoutInitClass]`,
		value.TupleOf(value.TypeString, value.TypeInt32, value.TypeBool))
	assert.Equal(t, "made", v.Index(0).Str())
	assert.Equal(t, int32(7), v.Index(1).Int32())
	assert.True(t, v.Index(2).Bool())

	err = env.Do(context.Background(), func(rt *goja.Runtime) error {
		_, _, err := c.New(value.Object(value.F("name", value.String("x"))))
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrFieldMissing))

	_, _, err = c.New(value.Object())
	assert.True(t, errors.Is(err, errors.ErrWrongThread))
}

func TestClass_Method(t *testing.T) {
	env := newEnv(t)
	register(t, env, &Descriptor{
		Name:       "TestFactoryClass",
		Fields:     personFields(),
		CtorParams: []string{"age", "name"},
		Methods: []Method{{
			Name: "format",
			Sig:  &value.Signature{Result: value.TypeString},
			Fn: func(inst *Instance, _ []value.Value) (value.Value, error) {
				return value.String(fmt.Sprintf("%s is %d", inst.Get("name").Str(), inst.Get("age").Int32())), nil
			},
		}, {
			Name: "grow",
			Sig:  &value.Signature{Params: []*value.Type{value.TypeInt32}},
			Fn: func(inst *Instance, args []value.Value) (value.Value, error) {
				return value.Absent(), inst.Set("age", value.Int32(inst.Get("age").Int32()+args[0].Int32()))
			},
		}},
	})

	got := eval(t, env, `const f = new TestFactoryClass(20, "cy"); f.grow(2); f.format()`, value.TypeString)
	assert.Equal(t, "cy is 22", got.Str())

	name := eval(t, env, `try { f.grow("x"); "" } catch (e) { e.name }`, value.TypeString)
	assert.Equal(t, "TypeMismatchError", name.Str())

	name = eval(t, env, `try { TestFactoryClass.prototype.format.call({}); "" } catch (e) { e.name }`, value.TypeString)
	assert.Equal(t, "TypeMismatchError", name.Str())
}

func TestClass_OptionalFields(t *testing.T) {
	env := newEnv(t)
	register(t, env, &Descriptor{
		Name: "Profile",
		Fields: []value.PropertySpec{
			value.Required("name", value.TypeString),
			value.OptionalDefault("age", value.TypeInt32, value.Int32(18)),
			value.Nullable("nick", value.TypeString),
			value.Optional("note", value.TypeString),
		},
		CtorParams: []string{"name", "nick"},
	})

	got := eval(t, env, `
		const p = new Profile("a", null);
		[p.age, p.nick === null, p.note === undefined]
	`, value.TupleOf(value.TypeInt32, value.TypeBool, value.TypeBool))
	assert.Equal(t, int32(18), got.Index(0).Int32())
	assert.True(t, got.Index(1).Bool())
	assert.True(t, got.Index(2).Bool())
}

func TestClass_Destroy(t *testing.T) {
	env := newEnv(t)
	var finalized atomic.Int32
	c := register(t, env, &Descriptor{
		Name:     "Res",
		Fields:   []value.PropertySpec{value.Required("id", value.TypeInt32)},
		Finalize: func(*Instance) { finalized.Add(1) },
		Methods: []Method{{
			Name: "close",
			Fn: func(inst *Instance, _ []value.Value) (value.Value, error) {
				inst.destroy()
				assert.Equal(t, int32(1), finalized.Load(), "finalize waits for the method to return")
				return value.Absent(), nil
			},
		}},
	})

	eval(t, env, `var r1 = new Res(1), r2 = new Res(2)`, nil)
	assert.Equal(t, 2, env.Table().Count(resource.TypeInstance))

	require.NoError(t, env.Do(context.Background(), func(rt *goja.Runtime) error {
		if err := c.Destroy(rt.Get("r1")); err != nil {
			return err
		}
		return c.Destroy(rt.Get("r1"))
	}))
	assert.Equal(t, int32(1), finalized.Load())
	assert.Equal(t, 1, env.Table().Count(resource.TypeInstance))

	code := eval(t, env, `try { r1.id; "" } catch (e) { e.code }`, value.TypeString)
	assert.Equal(t, "released", code.Str())

	eval(t, env, `r2.close()`, nil)
	assert.Equal(t, int32(2), finalized.Load())
	assert.Equal(t, 0, env.Table().Count(resource.TypeInstance))
	assert.Equal(t, Stats{Created: 2, Destroyed: 2}, c.Stats())
}

func TestClass_FinalizeOnClose(t *testing.T) {
	env := engine.New()
	var finalized atomic.Int32
	register(t, env, &Descriptor{
		Name:     "Res",
		Fields:   []value.PropertySpec{value.Required("id", value.TypeInt32)},
		Finalize: func(*Instance) { finalized.Add(1) },
	})
	eval(t, env, `var kept = [new Res(1), new Res(2), new Res(3)]`, nil)

	require.NoError(t, env.Close(context.Background()))
	assert.Equal(t, int32(3), finalized.Load())
}

func TestClass_GarbageCollected(t *testing.T) {
	env := newEnv(t)
	var finalized, offHost atomic.Int32
	c := register(t, env, &Descriptor{
		Name:   "Temp",
		Fields: []value.PropertySpec{value.Required("id", value.TypeInt32)},
		Finalize: func(*Instance) {
			finalized.Add(1)
			if !env.OnHostThread() {
				offHost.Add(1)
			}
		},
	})
	eval(t, env, `(() => { for (let i = 0; i < 100; i++) new Temp(i) })()`, nil)

	require.Eventually(t, func() bool {
		runtime.GC()
		return finalized.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Less(t, env.Table().Count(resource.TypeInstance), 100)
	assert.Positive(t, c.Stats().Destroyed)
	assert.Zero(t, offHost.Load(), "finalize runs on the host thread")
}

func TestRegister_Validation(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name string
		desc *Descriptor
	}{
		{"nil", nil},
		{"no name", &Descriptor{}},
		{"duplicate field", &Descriptor{Name: "A", Fields: []value.PropertySpec{
			value.Required("x", value.TypeInt32), value.Required("x", value.TypeInt32)}}},
		{"unknown param", &Descriptor{Name: "A", Fields: personFields(), CtorParams: []string{"name", "age", "height"}}},
		{"required field not in ctor", &Descriptor{Name: "A", Fields: personFields(), CtorParams: []string{"name"}}},
		{"method shadows field", &Descriptor{Name: "A", Fields: personFields(), Methods: []Method{{
			Name: "name", Fn: func(*Instance, []value.Value) (value.Value, error) { return value.Absent(), nil }}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.Do(context.Background(), func(*goja.Runtime) error {
				_, err := Register(env, tt.desc)
				return err
			})
			assert.Error(t, err)
		})
	}

	register(t, env, &Descriptor{Name: "Once", Fields: personFields()})
	err := env.Do(context.Background(), func(*goja.Runtime) error {
		_, err := Register(env, &Descriptor{Name: "Once", Fields: personFields()})
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	c, ok := Lookup(env, "Once")
	require.True(t, ok)
	assert.Equal(t, "Once", c.Name())
	assert.Equal(t, Public, c.Policy())

	_, err = Register(env, &Descriptor{Name: "Off"})
	assert.True(t, errors.Is(err, errors.ErrWrongThread))
}
