package buffer

import (
	"sync"

	"github.com/wippyai/js-runtime/errors"
)

// Region is a native byte region with a single owner. Native code owns a
// new region until it is freed or transferred to a host buffer; after
// either, the native side can no longer reach the bytes.
type Region struct {
	mu       sync.Mutex
	data     []byte
	size     int
	released bool
}

// NewRegion allocates a zeroed region of size bytes.
func NewRegion(size int) *Region {
	return &Region{data: make([]byte, size), size: size}
}

// RegionOf adopts data as a natively owned region. The caller must not
// touch data afterwards except through the region.
func RegionOf(data []byte) *Region {
	return &Region{data: data, size: len(data)}
}

// Len returns the region size.
func (r *Region) Len() int { return r.size }

// Bytes returns the region for native reads and writes while the native
// side still owns it.
func (r *Region) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, errors.Released(errors.PhaseBuffer, "region")
	}
	return r.data, nil
}

// Free releases a natively owned region. A transferred region cannot be
// freed by the native side.
func (r *Region) Free() error {
	_, err := r.take()
	return err
}

// take ends native ownership and returns the bytes to the new owner.
func (r *Region) take() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, errors.Released(errors.PhaseBuffer, "region")
	}
	data := r.data
	r.data = nil
	r.released = true
	return data, nil
}

// Released reports whether the native side has given the region up.
func (r *Region) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
