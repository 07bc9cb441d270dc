package channel

import (
	"go.uber.org/zap"
)

const (
	// DefaultCapacity is the queue capacity used when Options.Capacity is zero.
	DefaultCapacity = 64
	// MinCapacity is the smallest queue the ring supports. Smaller
	// capacities are raised to it.
	MinCapacity = 2
)

// Backpressure selects what a producer does when the queue is full.
type Backpressure uint8

const (
	// Block waits with adaptive backoff until space frees up or the
	// caller's context ends.
	Block Backpressure = iota
	// Fail returns a ChannelSaturated error immediately.
	Fail
)

func (b Backpressure) String() string {
	if b == Fail {
		return "fail"
	}
	return "block"
}

// ParseBackpressure maps "block" and "fail" to a policy. Anything else is
// Block.
func ParseBackpressure(s string) Backpressure {
	if s == "fail" {
		return Fail
	}
	return Block
}

// Options configures a Func.
type Options struct {
	Logger       *zap.Logger
	Name         string
	Capacity     int
	Backpressure Backpressure
}

func (o Options) withDefaults() Options {
	switch {
	case o.Capacity <= 0:
		o.Capacity = DefaultCapacity
	case o.Capacity < MinCapacity:
		o.Capacity = MinCapacity
	}
	if o.Logger == nil {
		o.Logger = Logger()
	}
	if o.Name == "" {
		o.Name = "func"
	}
	return o
}
