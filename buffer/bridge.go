package buffer

import (
	"runtime"

	"code.hybscloud.com/atomix"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// Mode selects how a native region reaches the host.
type Mode uint8

const (
	// Copy hands the host a copy and frees the region at once.
	Copy Mode = iota
	// ZeroCopy transfers the region to the host buffer. The region is
	// released when the host collects the buffer.
	ZeroCopy
)

func (m Mode) String() string {
	if m == ZeroCopy {
		return "zerocopy"
	}
	return "copy"
}

// ParseMode maps "copy" and "zerocopy" to a mode. Anything else is Copy.
func ParseMode(s string) Mode {
	if s == "zerocopy" {
		return ZeroCopy
	}
	return Copy
}

// Stats reports buffer traffic.
type Stats struct {
	Created uint64
	Copied  uint64
	// Outstanding is the number of transferred regions not yet collected.
	Outstanding int64
	// ExternalBytes is the memory held by those regions.
	ExternalBytes int64
}

// Bridge creates host buffers from native regions for one environment.
type Bridge struct {
	env    *engine.Env
	table  *resource.Table
	logger *zap.Logger
	mode   Mode

	created     atomix.Uint64
	copied      atomix.Uint64
	outstanding atomix.Int64
	external    atomix.Int64
}

// New returns a buffer bridge for env.
func New(env *engine.Env, mode Mode) *Bridge {
	return &Bridge{
		env:    env,
		table:  env.Table(),
		logger: env.Log().Named("buffer"),
		mode:   mode,
	}
}

// Mode returns the transfer mode.
func (b *Bridge) Mode() Mode { return b.mode }

// hostRegion is the handle-table record of a transferred region.
type hostRegion struct {
	bridge *Bridge
	size   int
}

func (h *hostRegion) Drop() {
	h.bridge.outstanding.Add(-1)
	h.bridge.external.Add(-int64(h.size))
	h.bridge.table.AdjustExternal(-int64(h.size))
}

// Create allocates a region of size bytes, lets fill write it and exposes
// it to the host as an ArrayBuffer. It must be called on the host thread.
func (b *Bridge) Create(size int, fill func([]byte) error) (goja.Value, error) {
	if !b.env.OnHostThread() {
		return nil, errors.WrongThread(errors.PhaseBuffer, "Create")
	}
	if size < 0 {
		return nil, errors.InvalidInput(errors.PhaseBuffer, "negative buffer size")
	}
	region := NewRegion(size)
	if fill != nil {
		data, _ := region.Bytes()
		if err := fill(data); err != nil {
			_ = region.Free()
			return nil, err
		}
	}
	return b.Transfer(region)
}

// Transfer hands a natively owned region to the host. In Copy mode the
// host receives a copy and the region is freed; in ZeroCopy mode the host
// buffer aliases the region and becomes its only owner.
func (b *Bridge) Transfer(region *Region) (goja.Value, error) {
	if !b.env.OnHostThread() {
		return nil, errors.WrongThread(errors.PhaseBuffer, "Transfer")
	}
	data, err := region.take()
	if err != nil {
		return nil, err
	}
	rt := b.env.Runtime()
	b.created.Add(1)

	if b.mode == Copy || len(data) == 0 {
		b.copied.Add(1)
		return rt.ToValue(rt.NewArrayBuffer(append([]byte(nil), data...))), nil
	}

	rec := &hostRegion{bridge: b, size: len(data)}
	h := b.table.Insert(resource.TypeRegion, rec)
	if h == 0 {
		return nil, errors.Closed(errors.PhaseBuffer, "environment")
	}
	b.outstanding.Add(1)
	b.external.Add(int64(len(data)))
	b.table.AdjustExternal(int64(len(data)))
	runtime.AddCleanup(&data[0], b.collected, h)

	b.logger.Debug("region transferred", zap.Int("size", len(data)), zap.Uint32("handle", uint32(h)))
	return rt.ToValue(rt.NewArrayBuffer(data)), nil
}

func (b *Bridge) collected(h resource.Handle) {
	b.table.Remove(h)
}

// Read copies the bytes of an ArrayBuffer, typed array or DataView. It
// must be called on the host thread.
func (b *Bridge) Read(v goja.Value) ([]byte, error) {
	if !b.env.OnHostThread() {
		return nil, errors.WrongThread(errors.PhaseBuffer, "Read")
	}
	data, ok := b.env.Bridge().Bytes(v)
	if !ok {
		got := "undefined"
		if v != nil {
			got = v.String()
		}
		return nil, errors.TypeMismatch(errors.PhaseBuffer, nil, "buffer", got)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Created:       b.created.Load(),
		Copied:        b.copied.Load(),
		Outstanding:   b.outstanding.Load(),
		ExternalBytes: b.external.Load(),
	}
}
