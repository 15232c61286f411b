// Package buffer provides the media buffer object exchanged between a
// producer and a consumer: timing metadata, a caps annotation and an
// explicit release that must happen exactly once.
package buffer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/caps"
)

// OffsetNone marks an unset offset
const OffsetNone = ^uint64(0)

// Flags carried on a buffer
type Flags uint32

const (
	FlagDiscont Flags = 1 << iota
	FlagDeltaUnit
	FlagGap
	FlagPreroll
)

// Meta holds per-buffer timing and flag metadata
type Meta struct {
	Timestamp time.Duration
	Duration  time.Duration
	Offset    uint64
	OffsetEnd uint64
	Flags     Flags
}

// NewMeta returns metadata with offsets unset
func NewMeta() Meta {
	return Meta{Offset: OffsetNone, OffsetEnd: OffsetNone}
}

// CopyMode selects which metadata CopyMetadata transfers
type CopyMode uint8

const (
	CopyFlags CopyMode = 1 << iota
	CopyTimestamps
)

// Buffer is the contract shared by host and hardware buffers
type Buffer interface {
	// Meta returns the mutable metadata of the buffer
	Meta() *Meta

	// Caps returns the format annotation, nil when unset
	Caps() *caps.Caps

	// SetCaps replaces the format annotation
	SetCaps(c *caps.Caps)

	// Size returns the payload size in bytes
	Size() int

	// Release hands the buffer back to its owner. Must be called exactly once.
	Release()
}

// CopyMetadata copies flags and/or timing from src to dst. Content and caps
// are never copied.
func CopyMetadata(dst, src Buffer, mode CopyMode) {
	d, s := dst.Meta(), src.Meta()
	if mode&CopyFlags != 0 {
		d.Flags = s.Flags
	}
	if mode&CopyTimestamps != 0 {
		d.Timestamp = s.Timestamp
		d.Duration = s.Duration
		d.Offset = s.Offset
		d.OffsetEnd = s.OffsetEnd
	}
}

// Base implements the bookkeeping part of Buffer. Embed it and call Init
// with the function that frees the underlying storage.
type Base struct {
	meta     Meta
	caps     *caps.Caps
	released atomic.Bool
	onFree   func()
}

// Init prepares the base; onFree runs once on Release and may be nil
func (b *Base) Init(onFree func()) {
	b.meta = NewMeta()
	b.onFree = onFree
}

// Meta returns the buffer metadata
func (b *Base) Meta() *Meta { return &b.meta }

// Caps returns the caps annotation
func (b *Base) Caps() *caps.Caps { return b.caps }

// SetCaps sets the caps annotation
func (b *Base) SetCaps(c *caps.Caps) { b.caps = c }

// Released reports whether Release has already been called
func (b *Base) Released() bool { return b.released.Load() }

// Release frees the buffer. A second release is a programming error.
func (b *Base) Release() {
	if !b.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("buffer: double release (caps %s)", b.caps))
	}
	if b.onFree != nil {
		b.onFree()
	}
}

// Host is a buffer backed by host memory
type Host struct {
	Base
	Data []byte
}

// NewHost allocates a zeroed host buffer of the given size
func NewHost(size int) *Host {
	h := &Host{Data: make([]byte, size)}
	h.Init(nil)
	return h
}

// NewHostWithFree allocates a host buffer that calls onFree when released
func NewHostWithFree(size int, onFree func()) *Host {
	h := &Host{Data: make([]byte, size)}
	h.Init(onFree)
	return h
}

// Size returns len(Data)
func (h *Host) Size() int { return len(h.Data) }
