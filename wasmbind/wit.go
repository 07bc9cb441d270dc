package wasmbind

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/transcoder"
	"github.com/wippyai/js-runtime/value"
)

// WorldExports returns the freestanding functions exported by the world
// matching pattern, in declaration order. pattern is a world name or a
// qualified "namespace:package/world" id.
func WorldExports(res *wit.Resolve, pattern string) ([]*wit.Function, error) {
	if res == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil WIT resolve")
	}
	for _, w := range res.Worlds {
		if w.Name != pattern && (w.Package == nil || !w.Match(pattern)) {
			continue
		}
		var fns []*wit.Function
		for _, item := range w.Exports.All() {
			if fn, ok := item.(*wit.Function); ok && fn.IsFreestanding() {
				fns = append(fns, fn)
			}
		}
		return fns, nil
	}
	return nil, errors.NotFound(errors.PhaseLoad, "WIT world", pattern)
}

// witSignature types a core export from its WIT description. Every WIT
// type must lower to the matching core value type.
func witSignature(fn *wit.Function, params, results []api.ValueType) (*value.Signature, error) {
	if len(fn.Params) != len(params) {
		return nil, errors.ArityMismatch(errors.PhaseLoad, []string{fn.Name}, len(params), len(fn.Params))
	}
	if len(fn.Results) != len(results) || len(results) > 1 {
		return nil, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
			Path(fn.Name, "result").
			Detail("WIT declares %d results, core export has %d", len(fn.Results), len(results)).
			Build()
	}

	sig := &value.Signature{}
	for i, p := range fn.Params {
		t, err := lowered(p.Type, params[i], []string{fn.Name, p.Name})
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, t)
	}
	if len(results) == 1 {
		t, err := lowered(fn.Results[0].Type, results[0], []string{fn.Name, "result"})
		if err != nil {
			return nil, err
		}
		sig.Result = t
	}
	return sig, nil
}

func lowered(wt wit.Type, core api.ValueType, path []string) (*value.Type, error) {
	t, err := transcoder.FromWIT(wt)
	if err != nil {
		return nil, err
	}
	var want api.ValueType
	switch t.Kind {
	case value.KindBool, value.KindInt32, value.KindUint32:
		want = api.ValueTypeI32
	case value.KindFloat32:
		want = api.ValueTypeF32
	case value.KindFloat64:
		want = api.ValueTypeF64
	default:
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Path(path...).
			Detail("%s needs the canonical ABI", t).
			Build()
	}
	if want != core {
		return nil, errors.TypeMismatch(errors.PhaseLoad, path, api.ValueTypeName(core), t.String())
	}
	return t, nil
}
