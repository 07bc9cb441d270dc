package channel

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/transcoder"
	"github.com/wippyai/js-runtime/value"
)

// Handler runs an invocation on the host thread.
type Handler func(rt *goja.Runtime, args []value.Value) (value.Value, error)

type result struct {
	err error
	val value.Value
}

type invocation struct {
	reply chan result
	args  []value.Value
	seq   uint64
}

// Stats reports a Func's traffic.
type Stats struct {
	Enqueued  uint64
	Delivered uint64
	Failed    uint64
	Refs      int64
}

// Func is a thread-safe function. Any goroutine may enqueue invocations;
// the host thread drains them in enqueue order, one at a time.
type Func struct {
	env     *engine.Env
	handler Handler
	ref     *engine.Ref
	logger  *zap.Logger
	opts    Options

	prodMu sync.Mutex
	queue  lfq.SPSC[invocation]

	seq       atomix.Uint64
	delivered atomix.Uint64
	failed    atomix.Uint64
	refs      atomix.Int64

	lastSeq   uint64 // host thread only
	scheduled atomic.Bool
	closed    atomic.Bool
	keep      func()
}

// New creates a thread-safe function running handler on env's host thread.
// The returned Func holds one reference and keeps env alive until the last
// reference is released.
func New(env *engine.Env, handler Handler, opts Options) *Func {
	opts = opts.withDefaults()
	f := &Func{
		env:     env,
		handler: handler,
		logger:  opts.Logger.Named(opts.Name),
		opts:    opts,
		keep:    env.Keep(),
	}
	f.queue.Init(opts.Capacity)
	f.refs.Add(1)
	return f
}

// NewFunc binds a host callback. It must be called on the host thread
// (typically from the native function that received the callback); the
// callback stays pinned in the handle table until the Func is released.
func NewFunc(env *engine.Env, fn value.Function, opts Options) (*Func, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseChannel, "nil callback")
	}
	var ref *engine.Ref
	if hf, ok := fn.(*transcoder.HostFunc); ok {
		var err error
		if ref, err = env.NewRef(hf.Value()); err != nil {
			return nil, err
		}
	}
	f := New(env, func(_ *goja.Runtime, args []value.Value) (value.Value, error) {
		return fn.Call(args...)
	}, opts)
	f.ref = ref
	return f, nil
}

// Capacity returns the queue capacity.
func (f *Func) Capacity() int {
	return f.opts.Capacity
}

// Acquire adds a reference. It fails once the Func is closed.
func (f *Func) Acquire() error {
	if f.closed.Load() {
		return errors.Closed(errors.PhaseChannel, f.opts.Name)
	}
	f.refs.Add(1)
	return nil
}

// Release drops a reference. Dropping the last one closes the Func: calls
// already queued still run, later calls fail.
func (f *Func) Release() {
	if f.refs.Add(-1) != 0 {
		return
	}
	if f.closed.Swap(true) {
		return
	}
	f.logger.Debug("thread-safe function released")
	err := f.env.Post(func(rt *goja.Runtime) {
		f.drain(rt)
		f.finish()
	})
	if err != nil {
		f.finish()
	}
}

func (f *Func) finish() {
	if f.ref != nil {
		f.ref.Release()
	}
	f.keep()
}

// Closed reports whether the last reference has been released.
func (f *Func) Closed() bool {
	return f.closed.Load()
}

// Call enqueues an invocation and waits for its result. It must not be
// called on the host thread, which is the only goroutine able to run it.
func (f *Func) Call(ctx context.Context, args ...value.Value) (value.Value, error) {
	if f.env.OnHostThread() {
		return value.Value{}, errors.WrongThread(errors.PhaseChannel, "Func.Call")
	}
	reply := make(chan result, 1)
	if err := f.enqueue(ctx, invocation{args: args, reply: reply}); err != nil {
		return value.Value{}, err
	}
	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	case <-f.env.Done():
		select {
		case r := <-reply:
			return r.val, r.err
		default:
			return value.Value{}, errors.Closed(errors.PhaseChannel, f.opts.Name)
		}
	}
}

// Post enqueues an invocation without waiting for it. Failures of the
// invocation itself are logged.
func (f *Func) Post(ctx context.Context, args ...value.Value) error {
	return f.enqueue(ctx, invocation{args: args})
}

func (f *Func) enqueue(ctx context.Context, inv invocation) error {
	if f.closed.Load() {
		return errors.Closed(errors.PhaseChannel, f.opts.Name)
	}

	f.prodMu.Lock()
	defer f.prodMu.Unlock()

	inv.seq = f.seq.Load() + 1
	var bo iox.Backoff
	for {
		err := f.queue.Enqueue(&inv)
		if err == nil {
			break
		}
		if !stderrors.Is(err, iox.ErrWouldBlock) {
			return errors.New(errors.PhaseChannel, errors.KindNativeFailure).Cause(err).Build()
		}
		// the host thread is the consumer, so waiting on it would never end
		if f.opts.Backpressure == Fail || f.env.OnHostThread() {
			return errors.ChannelSaturated(f.opts.Capacity)
		}
		if f.closed.Load() {
			return errors.Closed(errors.PhaseChannel, f.opts.Name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.env.Done():
			return errors.Closed(errors.PhaseChannel, f.opts.Name)
		default:
		}
		bo.Wait()
	}
	f.seq.Add(1)

	f.schedule()
	return nil
}

func (f *Func) schedule() {
	if !f.scheduled.CompareAndSwap(false, true) {
		return
	}
	if err := f.env.Post(f.drain); err != nil {
		f.scheduled.Store(false)
		f.logger.Warn("cannot schedule drain", zap.Error(err))
	}
}

// drain runs every queued invocation. It runs on the host thread only.
func (f *Func) drain(rt *goja.Runtime) {
	f.scheduled.Store(false)
	for {
		inv, err := f.queue.Dequeue()
		if err != nil {
			return
		}
		f.invoke(rt, inv)
	}
}

func (f *Func) invoke(rt *goja.Runtime, inv invocation) {
	if inv.seq != f.lastSeq+1 {
		f.logger.Error("invocation out of order", zap.Uint64("want", f.lastSeq+1), zap.Uint64("got", inv.seq))
	}
	f.lastSeq = inv.seq

	val, err := f.call(rt, inv.args)
	f.delivered.Add(1)
	if err != nil {
		f.failed.Add(1)
	}
	if inv.reply != nil {
		inv.reply <- result{val: val, err: err}
		return
	}
	if err != nil {
		f.logger.Warn("posted invocation failed", zap.Uint64("seq", inv.seq), zap.Error(err))
	}
}

func (f *Func) call(rt *goja.Runtime, args []value.Value) (val value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NativeFailuref("thread-safe function panicked: %v", r)
		}
	}()
	if ex := rt.Try(func() { val, err = f.handler(rt, args) }); ex != nil {
		return value.Value{}, transcoder.FromException(ex)
	}
	return val, err
}

// Stats returns a snapshot of the Func's counters.
func (f *Func) Stats() Stats {
	return Stats{
		Enqueued:  f.seq.Load(),
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
		Refs:      f.refs.Load(),
	}
}
