package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/transcoder"
)

// Job is work run on the host thread.
type Job func(rt *goja.Runtime)

// Env is a host environment: one goja runtime driven by an event loop
// whose goroutine owns it. Every touch of the host heap happens on that
// goroutine, either inside a Job, a timer callback, or a native function
// the host invoked.
type Env struct {
	loop   *eventloop.EventLoop
	rt     *goja.Runtime
	bridge *transcoder.Bridge
	table  *resource.Table
	logger *zap.Logger

	mu      sync.Mutex
	queued  int
	changed chan struct{} // closed and replaced whenever the env may have gone idle
	closing bool

	done  chan struct{}
	owner atomic.Int64

	pending atomic.Int64

	hookMu sync.Mutex
	hooks  []cleanupHook
	hookID uint64

	dataMu sync.RWMutex
	data   map[any]any
}

// New creates an environment and starts its event loop. Besides the
// modules of the configured registry, scripts get setTimeout,
// setInterval, setImmediate and their clear functions.
func New(opts ...Option) *Env {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	loopOpts := []eventloop.Option{eventloop.EnableConsole(false)}
	if o.registry != nil {
		loopOpts = append(loopOpts, eventloop.WithRegistry(o.registry))
	}

	e := &Env{
		loop:    eventloop.NewEventLoop(loopOpts...),
		table:   resource.NewTable(),
		logger:  o.logger,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
		data:    make(map[any]any),
	}

	started := make(chan struct{})
	e.loop.Start()
	e.loop.RunOnLoop(func(rt *goja.Runtime) {
		e.owner.Store(goid.Get())
		e.rt = rt
		rt.SetFieldNameMapper(goja.TagFieldNameMapper("js", true))
		e.bridge = transcoder.New(rt,
			transcoder.WithNumericPolicy(o.policy),
			transcoder.WithThreadCheck(e.OnHostThread),
			transcoder.WithLogger(o.logger),
		)
		if o.console {
			e.installConsole()
		}
		close(started)
	})
	<-started
	e.logger.Debug("host environment started")
	return e
}

// Bridge returns the value bridge bound to this environment's runtime.
func (e *Env) Bridge() *transcoder.Bridge {
	return e.bridge
}

// Table returns the handle table of native objects held by the host.
func (e *Env) Table() *resource.Table {
	return e.table
}

// Log returns the environment logger.
func (e *Env) Log() *zap.Logger {
	return e.logger
}

// Runtime returns the host runtime. It may only be used on the host thread.
func (e *Env) Runtime() *goja.Runtime {
	return e.rt
}

// OnHostThread reports whether the caller runs on the event loop goroutine.
func (e *Env) OnHostThread() bool {
	return e.owner.Load() == goid.Get()
}

// Done is closed once the environment has shut down.
func (e *Env) Done() <-chan struct{} {
	return e.done
}

// Post queues job to run on the host thread and returns immediately.
// Jobs run one at a time in the order they were posted.
func (e *Env) Post(job Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return errors.Closed(errors.PhaseHost, "environment")
	}
	ok := e.loop.RunOnLoop(func(rt *goja.Runtime) {
		e.run(job)
		e.finished()
	})
	if !ok {
		return errors.Closed(errors.PhaseHost, "environment")
	}
	e.queued++
	return nil
}

func (e *Env) finished() {
	e.mu.Lock()
	e.queued--
	idle := e.queued == 0
	e.mu.Unlock()
	if idle {
		e.signal()
	}
}

// Do runs fn on the host thread and waits for it. Called on the host
// thread, fn runs inline.
func (e *Env) Do(ctx context.Context, fn func(rt *goja.Runtime) error) error {
	if e.OnHostThread() {
		return fn(e.rt)
	}

	errc := make(chan error, 1)
	err := e.Post(func(rt *goja.Runtime) {
		errc <- e.guard(fn)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		select {
		case err := <-errc:
			return err
		default:
			return errors.Closed(errors.PhaseHost, "environment")
		}
	}
}

// guard runs fn, turning a thrown host value or a Go panic into an error.
func (e *Env) guard(fn func(rt *goja.Runtime) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	if ex := e.rt.Try(func() { err = fn(e.rt) }); ex != nil {
		return transcoder.FromException(ex)
	}
	return err
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.New(errors.PhaseHost, errors.KindNativeFailure).
			Detail("panic: %s", err.Error()).
			Cause(err).
			Build()
	}
	return errors.NativeFailuref("panic: %v", r)
}

// Keep holds the environment alive until the returned release function is
// called. Wait does not return while anything is kept. Release is
// idempotent.
func (e *Env) Keep() (release func()) {
	e.pending.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			if e.pending.Add(-1) == 0 {
				e.signal()
			}
		})
	}
}

// Pending returns the number of outstanding Keep holds.
func (e *Env) Pending() int64 {
	return e.pending.Load()
}

// Wait blocks until no posted job is queued or running and nothing is
// kept alive. Timers armed by scripts do not hold Wait; a script that
// needs one to fire awaits a promise it settles. Wait must not be called
// on the host thread.
func (e *Env) Wait(ctx context.Context) error {
	if e.OnHostThread() {
		return errors.WrongThread(errors.PhaseHost, "Wait")
	}
	for {
		e.mu.Lock()
		idle := e.queued == 0 && e.pending.Load() == 0
		changed := e.changed
		e.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		}
	}
}

func (e *Env) signal() {
	e.mu.Lock()
	close(e.changed)
	e.changed = make(chan struct{})
	e.mu.Unlock()
}

func (e *Env) run(job Job) {
	err := e.guard(func(rt *goja.Runtime) error {
		job(rt)
		return nil
	})
	if err != nil {
		e.logger.Error("host job failed", zap.Error(err))
	}
}

// Close stops accepting work, runs what is already queued, then runs the
// cleanup hooks in reverse registration order, releases every handle and
// terminates the event loop, cancelling pending timers. If ctx expires
// first, running host code is interrupted. Called on the host thread,
// Close schedules the shutdown and returns without waiting.
func (e *Env) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return e.awaitDone(ctx)
	}
	e.closing = true
	shut := make(chan struct{})
	ok := e.loop.RunOnLoop(func(*goja.Runtime) {
		defer close(shut)
		e.shutdown()
	})
	e.mu.Unlock()
	if !ok {
		close(shut)
	}

	terminate := func() {
		<-shut
		e.loop.Terminate()
		e.logger.Debug("host environment closed")
		close(e.done)
	}
	if e.OnHostThread() {
		// Terminate waits for the loop to go idle
		go terminate()
		return nil
	}

	var err error
	select {
	case <-shut:
	case <-ctx.Done():
		e.rt.Interrupt(errors.Closed(errors.PhaseHost, "environment"))
		err = ctx.Err()
	}
	terminate()
	return err
}

func (e *Env) awaitDone(ctx context.Context) error {
	if e.OnHostThread() {
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Env) shutdown() {
	// an expired Close may have interrupted the job before this one
	e.rt.ClearInterrupt()
	e.runCleanupHooks()
	if err := e.table.Close(); err != nil {
		e.logger.Warn("close handle table", zap.Error(err))
	}
}
