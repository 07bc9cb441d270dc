package transcoder

import (
	"sync"

	"github.com/dop251/goja"
)

const (
	// Pool limits to prevent memory bloat
	poolMaxArgs  = 64
	poolInitArgs = 8
)

// argument slice pool for host calls
var argsPool = sync.Pool{
	New: func() any {
		buf := make([]goja.Value, 0, poolInitArgs)
		return &buf
	},
}

func getArgs(n int) *[]goja.Value {
	buf := argsPool.Get().(*[]goja.Value)
	if cap(*buf) < n {
		*buf = make([]goja.Value, 0, n)
	}
	return buf
}

func putArgs(buf *[]goja.Value) {
	if buf == nil || cap(*buf) > poolMaxArgs {
		return // reject oversized
	}
	clear(*buf)
	*buf = (*buf)[:0]
	argsPool.Put(buf)
}
