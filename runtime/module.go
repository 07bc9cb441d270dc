package runtime

import (
	"sort"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

// InitFunc populates the exports of a module when it is first required.
type InitFunc func(e *Exports) error

// ExportKind classifies a module export.
type ExportKind uint8

const (
	ExportFunc ExportKind = iota
	ExportValue
	ExportClass
)

func (k ExportKind) String() string {
	switch k {
	case ExportFunc:
		return "func"
	case ExportValue:
		return "value"
	case ExportClass:
		return "class"
	}
	return "unknown"
}

// Export describes one member of a module's export table.
type Export struct {
	Sig      *value.Signature // functions
	Type     *value.Type      // values
	Name     string
	Kind     ExportKind
	Mode     Mode
	Nullable bool
}

// String renders the export as a one-line declaration.
func (e Export) String() string {
	switch e.Kind {
	case ExportFunc:
		sig := "func()"
		if e.Sig != nil {
			sig = e.Sig.String()
		}
		if e.Mode != Sync {
			return e.Name + ": " + sig + " [" + e.Mode.String() + "]"
		}
		return e.Name + ": " + sig
	case ExportValue:
		return e.Name + ": " + e.Type.String()
	}
	return "class " + e.Name
}

// ModuleInfo lists the exports of a loaded module sorted by name.
type ModuleInfo struct {
	Name    string
	Exports []Export
}

// Export returns the export called name.
func (m ModuleInfo) Export(name string) (Export, bool) {
	i := sort.Search(len(m.Exports), func(i int) bool {
		return m.Exports[i].Name >= name
	})
	if i < len(m.Exports) && m.Exports[i].Name == name {
		return m.Exports[i], true
	}
	return Export{}, false
}

func (m *ModuleInfo) clone() ModuleInfo {
	out := ModuleInfo{Name: m.Name, Exports: make([]Export, len(m.Exports))}
	copy(out.Exports, m.Exports)
	return out
}

type module struct {
	init InitFunc
	info *ModuleInfo // set on the host thread once loaded
	err  error       // init failure; require caches the module regardless
	name string
}

// loader builds the export table of m inside require(). An init failure
// is raised to the requiring script and leaves the module unloaded.
func (r *Runtime) loader(m *module) require.ModuleLoader {
	return func(rt *goja.Runtime, mod *goja.Object) {
		e := &Exports{
			runtime: r,
			module:  m.name,
			obj:     rt.NewObject(),
			info:    &ModuleInfo{Name: m.name},
			names:   make(map[string]bool),
		}
		if err := m.init(e); err != nil {
			r.logger.Warn("module init failed", zap.String("module", m.name), zap.Error(err))
			m.err = errors.New(errors.PhaseLoad, errors.KindRegistration).
				Detail("init module %s", m.name).
				Cause(err).
				Build()
			r.env.Bridge().Throw(m.err)
		}
		sort.Slice(e.info.Exports, func(i, j int) bool {
			return e.info.Exports[i].Name < e.info.Exports[j].Name
		})
		if err := mod.Set("exports", e.obj); err != nil {
			r.env.Bridge().Throw(err)
		}
		m.info = e.info
		r.logger.Debug("module loaded",
			zap.String("module", m.name),
			zap.Int("exports", len(e.info.Exports)))
	}
}
