// Package engine owns the host side of the runtime: a goja runtime driven
// by a goja_nodejs event loop, and the single goroutine allowed to touch it.
//
// # Host Thread
//
// New starts the event loop; its goroutine becomes the host thread and
// also runs timer callbacks (setTimeout, setInterval, setImmediate). Work
// reaches it in two ways:
//
//	Post(job)      queue a Job and return immediately (FIFO)
//	Do(ctx, fn)    queue fn and wait for its error; inline on the host thread
//
// Native functions invoked by scripts already run on the host thread, so
// they use the Runtime and Bridge directly. OnHostThread reports which side
// a caller is on; operations that need the host heap fail with a
// WrongThread error when called elsewhere.
//
// # Lifetime
//
// Keep marks outstanding work (a pending promise, a live thread-safe
// function) so that Wait does not return early. Close drains queued jobs,
// runs cleanup hooks in reverse registration order, releases every handle
// in the Table and terminates the loop, cancelling timers still pending.
//
// # Promises
//
// Eval runs a script and converts its completion value. Await additionally
// waits for a returned promise to settle:
//
//	v, err := env.Await(ctx, "main.js", src, value.TypeString)
//
// Host console output is routed to the environment logger under the
// "console" name.
package engine
