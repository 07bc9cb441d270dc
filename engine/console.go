package engine

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// installConsole routes the host console to the environment logger.
func (e *Env) installConsole() {
	log := e.logger.Named("console")
	console := e.rt.NewObject()
	for name, level := range map[string]zapcore.Level{
		"log":   zapcore.InfoLevel,
		"info":  zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		_ = console.Set(name, e.consoleFunc(log, level))
	}
	_ = e.rt.Set("console", console)
}

func (e *Env) consoleFunc(log *zap.Logger, level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if ce := log.Check(level, formatArgs(e.rt, call.Arguments)); ce != nil {
			ce.Write()
		}
		return goja.Undefined()
	}
}

// formatArgs joins console arguments with spaces, rendering plain objects
// and arrays as JSON.
func formatArgs(rt *goja.Runtime, args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatArg(rt, arg)
	}
	return strings.Join(parts, " ")
}

func formatArg(rt *goja.Runtime, v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		if v == nil {
			return "undefined"
		}
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return v.String()
	}
	if obj.ClassName() == "Error" {
		return obj.Get("stack").String()
	}
	stringify, ok := goja.AssertFunction(rt.Get("JSON").ToObject(rt).Get("stringify"))
	if !ok {
		return v.String()
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(out) {
		return v.String()
	}
	return out.String()
}
