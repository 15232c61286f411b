package vdp

import (
	"github.com/bryanchriswhite/vdpout/internal/buffer"
	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/cockroachdb/errors"
)

// OutputBuffer is a buffer whose content lives in a device output surface.
// Releasing it destroys the surface (or returns it to a SurfacePool).
type OutputBuffer struct {
	buffer.Base

	Device  Device
	Format  RGBAFormat
	Width   int
	Height  int
	Surface SurfaceHandle
}

// NewOutputBuffer allocates an output surface of the given layout and size
func NewOutputBuffer(dev Device, format RGBAFormat, width, height int) (*OutputBuffer, error) {
	if dev == nil {
		return nil, errors.New("vdp: no device")
	}
	h, err := dev.OutputSurfaceCreate(format, width, height)
	if err != nil {
		return nil, errors.Wrapf(err, "create %dx%d %s output surface", width, height, format)
	}

	b := &OutputBuffer{
		Device:  dev,
		Format:  format,
		Width:   width,
		Height:  height,
		Surface: h,
	}
	b.Init(func() {
		if err := dev.OutputSurfaceDestroy(h); err != nil {
			logger.WithComponent("vdp").Debug().
				Err(err).
				Uint32("surface", uint32(h)).
				Msg("Failed to destroy output surface")
		}
	})
	return b, nil
}

// Pitch returns the number of bytes per row in host memory
func (b *OutputBuffer) Pitch() int {
	return b.Width * b.Format.BytesPerPixel()
}

// CalculateSize returns the host-memory size of the surface content
func (b *OutputBuffer) CalculateSize() int {
	return FrameSize(b.Format, b.Width, b.Height)
}

// Size implements buffer.Buffer
func (b *OutputBuffer) Size() int {
	return b.CalculateSize()
}

// Download copies the surface content into a host buffer. The host buffer
// must hold exactly CalculateSize bytes.
func (b *OutputBuffer) Download(host *buffer.Host) error {
	if want := b.CalculateSize(); host.Size() != want {
		return errors.Wrapf(ErrShortBuffer, "download %dx%d %s: host buffer has %d bytes, need %d",
			b.Width, b.Height, b.Format, host.Size(), want)
	}
	if err := b.Device.OutputSurfaceGetBitsNative(b.Surface, host.Data, b.Pitch()); err != nil {
		return errors.Wrapf(err, "download surface %d", b.Surface)
	}
	return nil
}

// Upload copies host pixels in the surface layout into the surface
func (b *OutputBuffer) Upload(data []byte) error {
	if want := b.CalculateSize(); len(data) < want {
		return errors.Wrapf(ErrShortBuffer, "upload %dx%d %s: got %d bytes, need %d",
			b.Width, b.Height, b.Format, len(data), want)
	}
	if err := b.Device.OutputSurfacePutBitsNative(b.Surface, data, b.Pitch()); err != nil {
		return errors.Wrapf(err, "upload surface %d", b.Surface)
	}
	return nil
}
