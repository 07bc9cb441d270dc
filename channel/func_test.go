package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

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

// blockHost parks the host thread until the returned function is called.
func blockHost(t *testing.T, env *engine.Env) (unblock func()) {
	t.Helper()
	gate := make(chan struct{})
	parked := make(chan struct{})
	require.NoError(t, env.Post(func(*goja.Runtime) {
		close(parked)
		<-gate
	}))
	<-parked
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func sum(_ *goja.Runtime, args []value.Value) (value.Value, error) {
	var total int32
	for _, a := range args {
		total += a.Int32()
	}
	return value.Int32(total), nil
}

func TestFunc_Call(t *testing.T) {
	env := newEnv(t)
	f := New(env, sum, Options{})
	defer f.Release()

	got, err := f.Call(context.Background(), value.Int32(1), value.Int32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(3), got.Int32())

	failing := New(env, func(*goja.Runtime, []value.Value) (value.Value, error) {
		return value.Value{}, errors.NativeFailure("nope")
	}, Options{})
	defer failing.Release()
	_, err = failing.Call(context.Background())
	assert.Equal(t, "nope", errors.Reason(err))
	assert.Equal(t, uint64(1), failing.Stats().Failed)
}

func TestFunc_Order(t *testing.T) {
	env := newEnv(t)

	var got []int32
	f := New(env, func(_ *goja.Runtime, args []value.Value) (value.Value, error) {
		got = append(got, args[0].Int32())
		return value.Absent(), nil
	}, Options{Capacity: 4})

	const n = 200
	for i := int32(0); i < n; i++ {
		require.NoError(t, f.Post(context.Background(), value.Int32(i)))
	}
	f.Release()
	require.NoError(t, env.Wait(context.Background()))

	require.Len(t, got, n)
	for i, v := range got {
		if v != int32(i) {
			t.Fatalf("invocation %d delivered at position %d", v, i)
		}
	}
	assert.Equal(t, uint64(n), f.Stats().Delivered)
}

func TestFunc_ConcurrentProducers(t *testing.T) {
	env := newEnv(t)

	var calls int
	f := New(env, func(*goja.Runtime, []value.Value) (value.Value, error) {
		calls++
		return value.Absent(), nil
	}, Options{Capacity: 8})

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := f.Call(context.Background())
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	f.Release()
	require.NoError(t, env.Wait(context.Background()))
	assert.Equal(t, 400, calls)
	assert.Equal(t, uint64(400), f.Stats().Enqueued)
}

func TestFunc_FailPolicy(t *testing.T) {
	env := newEnv(t)
	f := New(env, sum, Options{Capacity: 2, Backpressure: Fail})
	defer f.Release()

	unblock := blockHost(t, env)
	defer unblock()

	var err error
	accepted := 0
	for i := 0; i < 16 && err == nil; i++ {
		if err = f.Post(context.Background()); err == nil {
			accepted++
		}
	}
	assert.True(t, errors.Is(err, errors.ErrChannelSaturated), "got %v", err)
	assert.Positive(t, accepted)
}

func TestFunc_BlockPolicy(t *testing.T) {
	env := newEnv(t)
	f := New(env, sum, Options{Capacity: 2})
	defer f.Release()

	unblock := blockHost(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 16 && err == nil; i++ {
		err = f.Post(ctx)
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// once the host thread drains, blocked producers proceed
	done := make(chan error, 1)
	go func() {
		_, err := f.Call(context.Background(), value.Int32(4))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	unblock()
	assert.NoError(t, <-done)
}

func TestFunc_HostThread(t *testing.T) {
	env := newEnv(t)
	f := New(env, sum, Options{Capacity: 2})
	defer f.Release()

	err := env.Do(context.Background(), func(rt *goja.Runtime) error {
		_, err := f.Call(context.Background())
		assert.True(t, errors.Is(err, errors.ErrWrongThread))

		for i := 0; i < 16; i++ {
			if err = f.Post(context.Background()); err != nil {
				return err
			}
		}
		return nil
	})
	assert.True(t, errors.Is(err, errors.ErrChannelSaturated), "got %v", err)
}

func TestFunc_Release(t *testing.T) {
	env := newEnv(t)
	f := New(env, sum, Options{})
	require.NoError(t, f.Acquire())
	assert.Equal(t, int64(2), f.Stats().Refs)

	f.Release()
	assert.False(t, f.Closed())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, env.Wait(ctx), context.DeadlineExceeded, "a live func keeps the environment busy")

	f.Release()
	assert.True(t, f.Closed())
	require.NoError(t, env.Wait(context.Background()))

	assert.True(t, errors.Is(f.Acquire(), errors.ErrClosed))
	assert.True(t, errors.Is(f.Post(context.Background()), errors.ErrClosed))
	_, err := f.Call(context.Background())
	assert.True(t, errors.Is(err, errors.ErrClosed))
}

func TestNewFunc_HostCallback(t *testing.T) {
	env := newEnv(t)
	sig := value.FuncOf(value.TypeInt32, value.TypeInt32, value.TypeInt32)

	var f *Func
	err := env.Do(context.Background(), func(rt *goja.Runtime) error {
		cb, err := rt.RunString("(a, b) => a * b")
		if err != nil {
			return err
		}
		fn, err := env.Bridge().ToNative(cb, sig)
		if err != nil {
			return err
		}
		f, err = NewFunc(env, fn.Function(), Options{Name: "multiply"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.Table().Count(resource.TypeHostRef))

	got, err := f.Call(context.Background(), value.Int32(6), value.Int32(7))
	require.NoError(t, err)
	assert.Equal(t, int32(42), got.Int32())

	f.Release()
	require.NoError(t, env.Wait(context.Background()))
	assert.Equal(t, 0, env.Table().Count(resource.TypeHostRef))
}

func TestNewFunc_Throws(t *testing.T) {
	env := newEnv(t)

	var f *Func
	require.NoError(t, env.Do(context.Background(), func(rt *goja.Runtime) error {
		cb, err := rt.RunString("() => { throw new Error('callback failed') }")
		if err != nil {
			return err
		}
		fn, err := env.Bridge().ToNative(cb, value.FuncOf(nil))
		if err != nil {
			return err
		}
		f, err = NewFunc(env, fn.Function(), Options{})
		return err
	}))
	defer f.Release()

	_, err := f.Call(context.Background())
	require.Error(t, err)
	assert.Equal(t, "callback failed", errors.Reason(err))

	_, err = NewFunc(env, nil, Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestParseBackpressure(t *testing.T) {
	assert.Equal(t, Fail, ParseBackpressure("fail"))
	assert.Equal(t, Block, ParseBackpressure("block"))
	assert.Equal(t, Block, ParseBackpressure(""))
	assert.Equal(t, "fail", Fail.String())
}

func TestOptions_Capacity(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultCapacity},
		{-3, DefaultCapacity},
		{1, MinCapacity},
		{2, 2},
		{100, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Options{Capacity: tt.in}.withDefaults().Capacity, "capacity %d", tt.in)
	}

	env := newEnv(t)
	f := New(env, sum, Options{Capacity: 1})
	defer f.Release()
	assert.Equal(t, MinCapacity, f.Capacity())

	got, err := f.Call(context.Background(), value.Int32(4), value.Int32(5))
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.Int32())
}
