package async

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/channel"
	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

// Options configures a Scheduler.
type Options struct {
	Logger *zap.Logger
	// Workers is the number of worker goroutines. Zero means GOMAXPROCS.
	Workers int
	// QueueDepth bounds the tasks handed to workers. Tasks submitted
	// while it is full wait in an unbounded backlog, in submission order,
	// so submitting never blocks. Zero means 4 per worker.
	QueueDepth int
}

// Stats reports scheduler counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
	Workers   int
	Backlog   int
}

// Scheduler runs native work on a bounded pool of worker goroutines and
// delivers completions back to the host thread.
type Scheduler struct {
	logger *zap.Logger
	queue  chan *Task
	wg     sync.WaitGroup

	nextID    atomix.Uint64
	submitted atomix.Uint64
	completed atomix.Uint64
	failed    atomix.Uint64

	mu      sync.Mutex
	backlog []*Task

	workers   int
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewScheduler starts a scheduler and its workers.
func NewScheduler(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 4 * opts.Workers
	}
	if opts.Logger == nil {
		opts.Logger = Logger()
	}

	s := &Scheduler{
		logger:  opts.Logger.Named("async"),
		queue:   make(chan *Task, opts.QueueDepth),
		workers: opts.Workers,
	}
	s.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go s.worker(i)
	}
	return s
}

// Submit runs work in the background with no completion sink. Submit
// never blocks; a failure is logged when the task finishes. env stays
// alive until the task completes. The returned task may be waited on from
// any goroutine other than the host thread.
func (s *Scheduler) Submit(env *engine.Env, work Work) (*Task, error) {
	return s.submit(env, FireAndForget, work, nil)
}

// Promise runs work in the background and returns a host promise that
// settles with its result, converted to t, on the host thread. A failure
// rejects the promise with an AsyncTaskFailure. Promise must be called on
// the host thread.
func (s *Scheduler) Promise(env *engine.Env, work Work, t *value.Type) (*goja.Promise, error) {
	if !env.OnHostThread() {
		return nil, errors.WrongThread(errors.PhaseAsync, "Promise")
	}
	rt := env.Runtime()
	promise, resolve, reject := rt.NewPromise()

	var settled Outcome
	sink := channel.New(env, func(rt *goja.Runtime, _ []value.Value) (value.Value, error) {
		s.settlePromise(env, settled, t, resolve, reject)
		return value.Absent(), nil
	}, channel.Options{Name: "promise", Capacity: channel.MinCapacity, Logger: s.logger})

	_, err := s.submit(env, Awaited, work, func(o Outcome) {
		settled = o
		if err := sink.Post(context.Background()); err != nil {
			s.logger.Error("cannot deliver task completion", zap.Error(err))
		}
		sink.Release()
	})
	if err != nil {
		sink.Release()
		return nil, err
	}
	return promise, nil
}

func (s *Scheduler) settlePromise(env *engine.Env, o Outcome, t *value.Type, resolve, reject func(any) error) {
	b := env.Bridge()
	var err error
	if cause, failed := o.GetLeft(); failed {
		err = reject(b.NewError(cause))
	} else {
		v, _ := o.GetRight()
		var hv goja.Value
		if t != nil {
			hv, err = b.ToHostTyped(v, t)
		} else {
			hv, err = b.ToHost(v)
		}
		if err != nil {
			err = reject(b.NewError(err))
		} else {
			err = resolve(hv)
		}
	}
	if err != nil {
		s.logger.Error("settle promise", zap.Error(err))
	}
}

func (s *Scheduler) submit(env *engine.Env, mode Mode, work Work, deliver func(Outcome)) (*Task, error) {
	if work == nil {
		return nil, errors.InvalidInput(errors.PhaseAsync, "nil work")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, errors.Closed(errors.PhaseAsync, "scheduler")
	}

	t := newTask(s.nextID.Add(1), mode, work)
	t.deliver = deliver
	if mode == FireAndForget {
		release := env.Keep()
		t.deliver = func(o Outcome) {
			defer release()
			if err, failed := o.GetLeft(); failed {
				s.logger.Warn("background task failed", zap.Uint64("task", t.id), zap.Error(err))
			}
		}
	}

	s.submitted.Add(1)
	queued := false
	if len(s.backlog) == 0 {
		select {
		case s.queue <- t:
			queued = true
		default:
		}
	}
	if !queued {
		s.backlog = append(s.backlog, t)
	}
	s.logger.Debug("task queued",
		zap.Uint64("task", t.id),
		zap.Stringer("mode", mode),
		zap.Bool("backlog", !queued))
	return t, nil
}

// refill moves backlog tasks into the queue while it has room.
func (s *Scheduler) refill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.backlog) > 0 {
		select {
		case s.queue <- s.backlog[0]:
			s.backlog[0] = nil
			s.backlog = s.backlog[1:]
		default:
			return
		}
	}
}

func (s *Scheduler) worker(index int) {
	defer s.wg.Done()
	for t := range s.queue {
		s.refill()
		s.run(index, t)
	}
}

func (s *Scheduler) run(index int, t *Task) {
	if !t.start(index) {
		return
	}
	v, err := s.execute(t)
	if err != nil {
		err = errors.AsyncTaskFailure(t.id, err)
	}
	if !t.settle(v, err) {
		return
	}
	if err != nil {
		s.failed.Add(1)
	} else {
		s.completed.Add(1)
	}
	if t.deliver != nil {
		t.deliver(t.outcome)
	}
}

func (s *Scheduler) execute(t *Task) (v value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NativeFailuref("task panicked: %v", r)
		}
	}()
	return t.work()
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Workers:   s.workers,
		Backlog:   s.backlogLen(),
	}
}

func (s *Scheduler) backlogLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// Close stops accepting tasks and waits for queued, backlogged and running
// tasks to finish. Tasks are not cancelled. Close must not be called on a
// worker.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		backlog := s.backlog
		s.backlog = nil
		s.mu.Unlock()

		for _, t := range backlog {
			s.queue <- t
		}
		close(s.queue)
		s.wg.Wait()
	})
}
