package transcoder

import (
	"reflect"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var arrayBufferType = reflect.TypeOf(goja.ArrayBuffer{})

// NumericPolicy selects how out-of-range host numbers convert to 32-bit integers.
type NumericPolicy uint8

const (
	// NumericWrap truncates and wraps modulo 2^32.
	NumericWrap NumericPolicy = iota
	// NumericStrict rejects non-integral or out-of-range input with RangeOverflow.
	NumericStrict
)

func (p NumericPolicy) String() string {
	if p == NumericStrict {
		return "strict"
	}
	return "wrap"
}

// ParseNumericPolicy maps a config string to a policy. Unknown strings wrap.
func ParseNumericPolicy(s string) NumericPolicy {
	if s == "strict" {
		return NumericStrict
	}
	return NumericWrap
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithNumericPolicy sets the integer conversion policy.
func WithNumericPolicy(p NumericPolicy) Option {
	return func(b *Bridge) {
		b.policy = p
	}
}

// WithThreadCheck installs the predicate reporting whether the caller is on
// the goroutine that owns the runtime. Host callbacks refuse to run elsewhere.
func WithThreadCheck(onHost func() bool) Option {
	return func(b *Bridge) {
		b.onHost = onHost
	}
}

// WithLogger sets the bridge logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// hostType names the runtime shape of a host value for diagnostics.
func hostType(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	case goja.IsNumber(v):
		return "number"
	case goja.IsString(v):
		return "string"
	case goja.IsBigInt(v):
		return "bigint"
	}
	if _, ok := v.(*goja.Symbol); ok {
		return "symbol"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		if _, isBool := v.Export().(bool); isBool {
			return "boolean"
		}
		return "unknown"
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return "function"
	}
	if obj.ClassName() == "Array" {
		return "array"
	}
	if obj.ExportType() == arrayBufferType {
		return "arraybuffer"
	}
	return "object"
}
