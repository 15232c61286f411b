package outputpad

import (
	"time"

	"github.com/bryanchriswhite/vdpout/internal/buffer"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/cockroachdb/errors"
)

// AcquireOutputBuffer returns a surface for the producer to render into.
// In hardware-surface mode the consumer allocates it; in raw-pixels mode
// the consumer is only asked for its preferred geometry and the surface
// is created on the bound device.
func (p *OutputPort) AcquireOutputBuffer() (*vdp.OutputBuffer, error) {
	neg := p.neg
	if neg == nil {
		return nil, p.bufferError(ErrNotNegotiated)
	}
	if p.peer == nil {
		return nil, p.bufferError(ErrNotLinked)
	}

	switch out := neg.Output.(type) {
	case HardwareSurface:
		return p.allocFromPeer(neg)
	case RawPixels:
		return p.createBuffer(neg, out)
	default:
		return nil, p.bufferError(errors.AssertionFailedf("unknown output mode %T", out))
	}
}

func (p *OutputPort) allocFromPeer(neg *Negotiated) (*vdp.OutputBuffer, error) {
	buf, flow := p.peer.AllocBuffer(0, neg.Contract)
	if flow != FlowOK {
		if buf != nil {
			buf.Release()
		}
		p.log.Debug().Str("flow", flow.String()).Msg("Consumer refused allocation")
		return nil, &StatusError{Flow: flow}
	}

	out, ok := buf.(*vdp.OutputBuffer)
	if !ok {
		if buf != nil {
			buf.Release()
		}
		return nil, p.bufferError(errors.Wrapf(ErrWrongBufferType, "got %T", buf))
	}
	if out == nil {
		return nil, p.bufferError(errors.Wrap(ErrWrongBufferType, "got nil surface"))
	}
	return out, nil
}

func (p *OutputPort) createBuffer(neg *Negotiated, out RawPixels) (*vdp.OutputBuffer, error) {
	probe, flow := p.peer.AllocBuffer(0, neg.Contract)
	if flow == FlowOK && probe != nil {
		width, height, ok := probeGeometry(probe)
		probe.Release()
		if !ok {
			return nil, p.bufferError(ErrInvalidCaps)
		}
		if width != neg.Width || height != neg.Height {
			p.log.Info().
				Int("width", width).
				Int("height", height).
				Int("old_width", neg.Width).
				Int("old_height", neg.Height).
				Msg("Consumer requested new output size")
			neg = neg.resized(width, height)
			p.neg = neg
			p.publish(EventResized)
		}
	} else {
		if probe != nil {
			probe.Release()
		}
		// the consumer may not allocate at all in raw mode
		p.log.Debug().Str("flow", flow.String()).Msg("Allocation probe refused")
	}

	if p.device == nil {
		return nil, p.bufferError(errors.Mark(ErrNoDevice, ErrResource))
	}
	buf, err := vdp.NewOutputBuffer(p.device, out.Format, neg.Width, neg.Height)
	if err != nil {
		return nil, p.bufferError(errors.Mark(errors.Wrap(err, ErrResource.Error()), ErrResource))
	}
	buf.SetCaps(neg.Upstream)
	return buf, nil
}

func probeGeometry(b buffer.Buffer) (width, height int, ok bool) {
	st := b.Caps().Structure(0)
	if st == nil {
		return 0, 0, false
	}
	width, okW := st.Int(vdp.FieldWidth)
	height, okH := st.Int(vdp.FieldHeight)
	return width, height, okW && okH && width > 0 && height > 0
}

// PushOutputBuffer delivers a rendered surface to the consumer. The pad
// takes ownership of buf. In raw-pixels mode the surface is downloaded
// into host memory first and released; the consumer's status is returned
// as-is.
func (p *OutputPort) PushOutputBuffer(buf *vdp.OutputBuffer) (FlowReturn, error) {
	if buf == nil {
		return FlowError, errors.AssertionFailedf("push of nil buffer")
	}
	neg := p.neg
	if neg == nil {
		buf.Release()
		return FlowNotNegotiated, p.bufferError(ErrNotNegotiated)
	}
	if p.peer == nil {
		buf.Release()
		return FlowNotLinked, p.bufferError(ErrNotLinked)
	}

	var out buffer.Buffer
	switch o := neg.Output.(type) {
	case RawPixels:
		host := buffer.NewHost(vdp.FrameSize(o.Format, neg.Width, neg.Height))
		if err := buf.Download(host); err != nil {
			buf.Release()
			host.Release()
			return FlowError, p.bufferError(errors.Mark(errors.Wrap(err, ErrTransfer.Error()), ErrTransfer))
		}
		buffer.CopyMetadata(host, buf, buffer.CopyFlags|buffer.CopyTimestamps)
		buf.Release()
		out = host

	case HardwareSurface:
		out = buf

	default:
		buf.Release()
		return FlowError, p.bufferError(errors.AssertionFailedf("unknown output mode %T", o))
	}

	out.SetCaps(neg.Contract)
	return p.peer.Push(out), nil
}

func (p *OutputPort) bufferError(err error) error {
	p.log.Error().Err(err).Msg("Output buffer error")
	p.emit(Event{Type: EventBufferError, Pad: p.name, Reason: err.Error(), Status: p.Status(), Time: time.Now()})
	return err
}
