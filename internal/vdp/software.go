package vdp

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// FormatLimit configures one layout on a SoftwareDevice
type FormatLimit struct {
	Format    RGBAFormat
	MaxWidth  int
	MaxHeight int
}

// FaultOp selects the device operation a fault is injected into
type FaultOp int

const (
	FaultCreate FaultOp = iota
	FaultGetBits
	FaultPutBits
	FaultQuery
	FaultDestroy
)

type softSurface struct {
	format RGBAFormat
	width  int
	height int
	data   []byte
}

// SoftwareDevice emulates output surfaces in host memory. It backs the CLI
// on machines without video hardware and the tests.
type SoftwareDevice struct {
	mu       sync.Mutex
	limits   map[RGBAFormat]FormatLimit
	surfaces map[SurfaceHandle]*softSurface
	next     SurfaceHandle
	faults   map[FaultOp]error
	created  int
}

// NewSoftwareDevice creates a device supporting the given layouts.
// Without limits every known layout is supported up to MaxSurfaceSize.
func NewSoftwareDevice(limits ...FormatLimit) *SoftwareDevice {
	d := &SoftwareDevice{
		limits:   make(map[RGBAFormat]FormatLimit),
		surfaces: make(map[SurfaceHandle]*softSurface),
		faults:   make(map[FaultOp]error),
		next:     1,
	}
	if len(limits) == 0 {
		for _, f := range Formats() {
			limits = append(limits, FormatLimit{Format: f, MaxWidth: MaxSurfaceSize, MaxHeight: MaxSurfaceSize})
		}
	}
	for _, l := range limits {
		d.limits[l.Format] = l
	}
	return d
}

// FailNext makes the next call of op return err
func (d *SoftwareDevice) FailNext(op FaultOp, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = err
}

// takeFault must be called with d.mu held
func (d *SoftwareDevice) takeFault(op FaultOp) error {
	err, ok := d.faults[op]
	if !ok {
		return nil
	}
	delete(d.faults, op)
	return err
}

// Live returns the number of surfaces not yet destroyed
func (d *SoftwareDevice) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.surfaces)
}

// Created returns the number of surfaces ever created
func (d *SoftwareDevice) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// QueryOutputSurfaceCapabilities implements Device
func (d *SoftwareDevice) QueryOutputSurfaceCapabilities(format RGBAFormat) (SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFault(FaultQuery); err != nil {
		return SurfaceCapabilities{}, err
	}
	l, ok := d.limits[format]
	if !ok {
		return SurfaceCapabilities{}, nil
	}
	return SurfaceCapabilities{Supported: true, MaxWidth: l.MaxWidth, MaxHeight: l.MaxHeight}, nil
}

// OutputSurfaceCreate implements Device
func (d *SoftwareDevice) OutputSurfaceCreate(format RGBAFormat, width, height int) (SurfaceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFault(FaultCreate); err != nil {
		return 0, err
	}
	l, ok := d.limits[format]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedFormat, "%s", format)
	}
	if width <= 0 || height <= 0 || width > l.MaxWidth || height > l.MaxHeight {
		return 0, errors.Wrapf(ErrInvalidSize, "%dx%d (max %dx%d)", width, height, l.MaxWidth, l.MaxHeight)
	}

	h := d.next
	d.next++
	d.created++
	d.surfaces[h] = &softSurface{
		format: format,
		width:  width,
		height: height,
		data:   make([]byte, FrameSize(format, width, height)),
	}
	return h, nil
}

// OutputSurfaceDestroy implements Device
func (d *SoftwareDevice) OutputSurfaceDestroy(h SurfaceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.surfaces[h]; !ok {
		return errors.Wrapf(ErrInvalidHandle, "destroy %d", h)
	}
	delete(d.surfaces, h)
	return d.takeFault(FaultDestroy)
}

// OutputSurfaceGetBitsNative implements Device
func (d *SoftwareDevice) OutputSurfaceGetBitsNative(h SurfaceHandle, dst []byte, pitch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFault(FaultGetBits); err != nil {
		return err
	}
	s, ok := d.surfaces[h]
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "get bits %d", h)
	}
	return copyRows(dst, pitch, s.data, s.rowBytes(), s.rowBytes(), s.height)
}

// OutputSurfacePutBitsNative implements Device
func (d *SoftwareDevice) OutputSurfacePutBitsNative(h SurfaceHandle, src []byte, pitch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFault(FaultPutBits); err != nil {
		return err
	}
	s, ok := d.surfaces[h]
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "put bits %d", h)
	}
	return copyRows(s.data, s.rowBytes(), src, pitch, s.rowBytes(), s.height)
}

func (s *softSurface) rowBytes() int {
	return s.width * s.format.BytesPerPixel()
}

// copyRows copies rows of rowBytes from src to dst honouring both pitches
func copyRows(dst []byte, dstPitch int, src []byte, srcPitch int, rowBytes, rows int) error {
	if dstPitch < rowBytes || srcPitch < rowBytes {
		return errors.Newf("vdp: pitch smaller than row (%d/%d < %d)", dstPitch, srcPitch, rowBytes)
	}
	if rows == 0 {
		return nil
	}
	if len(dst) < dstPitch*(rows-1)+rowBytes || len(src) < srcPitch*(rows-1)+rowBytes {
		return ErrShortBuffer
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*dstPitch:y*dstPitch+rowBytes], src[y*srcPitch:y*srcPitch+rowBytes])
	}
	return nil
}
