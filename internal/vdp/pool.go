package vdp

import (
	"sync"

	"github.com/cockroachdb/errors"
)

type surfaceKey struct {
	format RGBAFormat
	width  int
	height int
}

// SurfacePool wraps a Device and recycles destroyed surfaces of the same
// layout and size instead of freeing them. It is itself a Device, so
// buffers allocated through it return their surface to the pool on release.
type SurfacePool struct {
	Device

	mu      sync.Mutex
	max     int
	free    map[surfaceKey][]SurfaceHandle
	keys    map[SurfaceHandle]surfaceKey
	idle    int
	reused  uint64
	created uint64
}

// NewSurfacePool keeps at most max idle surfaces; max <= 0 disables pooling
func NewSurfacePool(dev Device, max int) *SurfacePool {
	return &SurfacePool{
		Device: dev,
		max:    max,
		free:   make(map[surfaceKey][]SurfaceHandle),
		keys:   make(map[SurfaceHandle]surfaceKey),
	}
}

// OutputSurfaceCreate hands out an idle surface when one matches
func (p *SurfacePool) OutputSurfaceCreate(format RGBAFormat, width, height int) (SurfaceHandle, error) {
	key := surfaceKey{format, width, height}

	p.mu.Lock()
	if list := p.free[key]; len(list) > 0 {
		h := list[len(list)-1]
		p.free[key] = list[:len(list)-1]
		p.idle--
		p.reused++
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	h, err := p.Device.OutputSurfaceCreate(format, width, height)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.keys[h] = key
	p.created++
	p.mu.Unlock()
	return h, nil
}

// OutputSurfaceDestroy parks the surface for reuse, or frees it when the
// pool is full
func (p *SurfacePool) OutputSurfaceDestroy(h SurfaceHandle) error {
	p.mu.Lock()
	key, ok := p.keys[h]
	if ok && p.idle < p.max {
		p.free[key] = append(p.free[key], h)
		p.idle++
		p.mu.Unlock()
		return nil
	}
	delete(p.keys, h)
	p.mu.Unlock()

	return p.Device.OutputSurfaceDestroy(h)
}

// Stats returns how many surfaces were created and reused, and how many are idle
func (p *SurfacePool) Stats() (created, reused uint64, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, p.reused, p.idle
}

// Drain frees every idle surface
func (p *SurfacePool) Drain() error {
	p.mu.Lock()
	var handles []SurfaceHandle
	for key, list := range p.free {
		handles = append(handles, list...)
		delete(p.free, key)
	}
	for _, h := range handles {
		delete(p.keys, h)
	}
	p.idle = 0
	p.mu.Unlock()

	var errs error
	for _, h := range handles {
		if err := p.Device.OutputSurfaceDestroy(h); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}
