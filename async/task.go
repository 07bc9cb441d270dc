package async

import (
	"context"
	"sync/atomic"

	"code.hybscloud.com/kont"

	"github.com/wippyai/js-runtime/value"
)

// Work is the native part of a task. It runs on a worker goroutine and
// must not touch the host runtime.
type Work func() (value.Value, error)

// Mode selects how a task's completion is observed.
type Mode uint8

const (
	// FireAndForget tasks have no completion sink; failures are logged.
	FireAndForget Mode = iota
	// Awaited tasks settle a host promise.
	Awaited
)

func (m Mode) String() string {
	if m == Awaited {
		return "awaited"
	}
	return "fire_and_forget"
}

// State is a task's position in its lifecycle.
type State uint32

const (
	Queued State = iota
	Running
	Completed
	Failed
)

var stateNames = [...]string{"queued", "running", "completed", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Outcome is a settled task's error or value.
type Outcome = kont.Either[error, value.Value]

// Task is one unit of work submitted to a Scheduler.
type Task struct {
	work    Work
	deliver func(Outcome)
	done    chan struct{}
	outcome Outcome
	id      uint64
	worker  int
	state   atomic.Uint32
	mode    Mode
}

func newTask(id uint64, mode Mode, work Work) *Task {
	return &Task{
		id:   id,
		mode: mode,
		work: work,
		done: make(chan struct{}),
	}
}

// ID returns the scheduler-assigned task id.
func (t *Task) ID() uint64 { return t.id }

// Mode returns how the task's completion is observed.
func (t *Task) Mode() Mode { return t.mode }

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Worker returns the index of the worker that ran the task. It is valid
// once the task has started.
func (t *Task) Worker() int { return t.worker }

// Done is closed once the task has settled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task settles and returns its outcome.
func (t *Task) Wait(ctx context.Context) (value.Value, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
	if err, ok := t.outcome.GetLeft(); ok {
		return value.Value{}, err
	}
	v, _ := t.outcome.GetRight()
	return v, nil
}

func (t *Task) start(worker int) bool {
	if !t.state.CompareAndSwap(uint32(Queued), uint32(Running)) {
		return false
	}
	t.worker = worker
	return true
}

// settle records the outcome. Only the first call has any effect.
func (t *Task) settle(v value.Value, err error) bool {
	next := Completed
	if err != nil {
		next = Failed
	}
	if !t.state.CompareAndSwap(uint32(Running), uint32(next)) {
		return false
	}
	if err != nil {
		t.outcome = kont.Left[error, value.Value](err)
	} else {
		t.outcome = kont.Right[error](v)
	}
	close(t.done)
	return true
}
