// Package vdp models the hardware side of an output stage: a device that
// allocates RGBA output surfaces, the buffers wrapping those surfaces and
// the caps describing what the device can produce.
package vdp

import (
	"github.com/cockroachdb/errors"
)

// SurfaceHandle identifies an output surface on a device
type SurfaceHandle uint32

// SurfaceCapabilities describes device support for one RGBA layout
type SurfaceCapabilities struct {
	Supported bool
	MaxWidth  int
	MaxHeight int
}

// Device is the narrow contract to the video hardware. Implementations
// must be safe for concurrent use: a producer and a consumer may share one
// device.
type Device interface {
	// QueryOutputSurfaceCapabilities reports support and size limits for a layout
	QueryOutputSurfaceCapabilities(format RGBAFormat) (SurfaceCapabilities, error)

	// OutputSurfaceCreate allocates a surface
	OutputSurfaceCreate(format RGBAFormat, width, height int) (SurfaceHandle, error)

	// OutputSurfaceDestroy frees a surface
	OutputSurfaceDestroy(h SurfaceHandle) error

	// OutputSurfaceGetBitsNative copies surface content into dst using pitch bytes per row
	OutputSurfaceGetBitsNative(h SurfaceHandle, dst []byte, pitch int) error

	// OutputSurfacePutBitsNative copies src into the surface using pitch bytes per row
	OutputSurfacePutBitsNative(h SurfaceHandle, src []byte, pitch int) error
}

var (
	// ErrUnsupportedFormat is returned for layouts the device cannot allocate
	ErrUnsupportedFormat = errors.New("vdp: unsupported rgba format")
	// ErrInvalidSize is returned for zero, negative or oversized dimensions
	ErrInvalidSize = errors.New("vdp: invalid surface size")
	// ErrInvalidHandle is returned for unknown or destroyed surfaces
	ErrInvalidHandle = errors.New("vdp: invalid surface handle")
	// ErrShortBuffer is returned when a transfer target is too small
	ErrShortBuffer = errors.New("vdp: buffer too small for surface")
)
