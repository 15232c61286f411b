package outputpad

import (
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/buffer"
	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	caps     *caps.Caps
	reject   bool
	alloc    func(size int, c *caps.Caps) (buffer.Buffer, FlowReturn)
	pushFlow FlowReturn

	committed []*caps.Caps
	allocs    int
	pushed    []buffer.Buffer
}

func (f *fakePeer) Caps() *caps.Caps { return f.caps }

func (f *fakePeer) SetCaps(c *caps.Caps) bool {
	if f.reject {
		return false
	}
	f.committed = append(f.committed, c)
	return true
}

func (f *fakePeer) AllocBuffer(size int, c *caps.Caps) (buffer.Buffer, FlowReturn) {
	f.allocs++
	if f.alloc == nil {
		return nil, FlowNotReady
	}
	return f.alloc(size, c)
}

func (f *fakePeer) Push(b buffer.Buffer) FlowReturn {
	f.pushed = append(f.pushed, b)
	return f.pushFlow
}

func newLinkedPad(t *testing.T, dev vdp.Device, peer *fakePeer, opts ...Option) *OutputPort {
	t.Helper()
	p := New("src", nil, opts...)
	require.NoError(t, p.Link(peer))
	if dev != nil {
		require.NoError(t, p.Bind(dev))
	}
	return p
}

// geometryProbe returns host buffers annotated with the given geometry
func geometryProbe(w, h int, onFree func()) func(int, *caps.Caps) (buffer.Buffer, FlowReturn) {
	return func(_ int, c *caps.Caps) (buffer.Buffer, FlowReturn) {
		b := buffer.NewHostWithFree(0, onFree)
		annotated := c.Copy()
		annotated.Structure(0).SetInt(vdp.FieldWidth, w)
		annotated.Structure(0).SetInt(vdp.FieldHeight, h)
		b.SetCaps(annotated)
		return b, FlowOK
	}
}

const (
	rawUpstream   = "video/x-raw-rgb, width=(int)640, height=(int)480"
	videoUpstream = "video/x-vdpau-video, chroma-type=(int)0, width=(int)720, height=(int)576, framerate=(fraction)25/1"
)

func TestNegotiate_RawPixels(t *testing.T) {
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)

	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

	neg, ok := p.Negotiated()
	require.True(t, ok)
	assert.IsType(t, RawPixels{}, neg.Output)
	assert.Equal(t, 640, neg.Width)
	assert.Equal(t, 480, neg.Height)
	assert.True(t, neg.Contract.IsFixed())

	require.Len(t, peer.committed, 1)
	assert.True(t, peer.committed[0].Equal(neg.Contract))
	assert.True(t, neg.Upstream.Equal(caps.MustParse(rawUpstream)))

	st := p.Status()
	assert.Equal(t, "raw-pixels", st.Mode)
	assert.Equal(t, 640, st.Width)
}

func TestNegotiate_RawUpstreamToSurfaceOnlyConsumer(t *testing.T) {
	peer := &fakePeer{caps: caps.MustParse("video/x-vdpau-output, width=(int)1920, height=(int)1080")}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)

	assert.False(t, p.Negotiate(caps.MustParse("video/x-raw-rgb, width=(int)1920, height=(int)1080")))
	_, ok := p.Negotiated()
	assert.False(t, ok)
	assert.Empty(t, peer.committed)
}

func TestNegotiate_HardwareSurface(t *testing.T) {
	peer := &fakePeer{caps: caps.MustParse("video/x-vdpau-output, rgba-format=(int)1")}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)

	require.True(t, p.Negotiate(caps.MustParse(videoUpstream)))

	neg, _ := p.Negotiated()
	assert.Equal(t, HardwareSurface{Format: vdp.RGBAFormatR8G8B8A8}, neg.Output)
	assert.Equal(t, 720, neg.Width)
	assert.Equal(t, 576, neg.Height)

	fr, ok := neg.Contract.Structure(0).Fraction(vdp.FieldFramerate)
	require.True(t, ok)
	assert.Equal(t, caps.Fraction{Num: 25, Den: 1}, fr)
	assert.False(t, neg.Contract.Structure(0).Has(vdp.FieldChromaType))
}

func TestNegotiate_PrefersSurfaceWhenConsumerAcceptsBoth(t *testing.T) {
	peer := &fakePeer{caps: caps.NewAny()}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)

	require.True(t, p.Negotiate(caps.MustParse(videoUpstream)))
	neg, _ := p.Negotiated()
	assert.IsType(t, HardwareSurface{}, neg.Output)
}

func TestNegotiate_FollowsDeviceLimits(t *testing.T) {
	dev := vdp.NewSoftwareDevice(vdp.FormatLimit{Format: vdp.RGBAFormatB8G8R8A8, MaxWidth: 640, MaxHeight: 480})
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, dev, peer)

	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))
	neg, _ := p.Negotiated()
	assert.Equal(t, RawPixels{Format: vdp.RGBAFormatB8G8R8A8}, neg.Output)

	assert.False(t, p.Negotiate(caps.MustParse("video/x-raw-rgb, width=(int)1280, height=(int)720")),
		"geometry beyond the device maximum is not negotiable")
}

func TestNegotiate_FailureKeepsState(t *testing.T) {
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))
	before, _ := p.Negotiated()

	other := caps.MustParse("video/x-raw-rgb, width=(int)320, height=(int)200")

	peer.caps = nil
	assert.False(t, p.Negotiate(other), "consumer without caps")

	peer.caps = caps.NewEmpty()
	assert.False(t, p.Negotiate(other), "consumer accepting nothing")

	peer.caps = caps.MustParse("video/x-raw-rgb")
	peer.reject = true
	assert.False(t, p.Negotiate(other), "consumer rejects the contract")

	after, ok := p.Negotiated()
	require.True(t, ok)
	assert.Equal(t, before.Output, after.Output)
	assert.Equal(t, before.Width, after.Width)
	assert.Equal(t, before.Height, after.Height)
	assert.True(t, before.Upstream.Equal(after.Upstream))
	assert.Equal(t, 640, p.Status().Width)
}

func TestNegotiate_UnlinkedOrUnsupported(t *testing.T) {
	p := New("src", nil)
	assert.False(t, p.Negotiate(caps.MustParse(rawUpstream)))

	peer := &fakePeer{caps: caps.MustParse("video/x-raw-yuv")}
	require.NoError(t, p.Link(peer))
	assert.False(t, p.Negotiate(caps.MustParse(rawUpstream)))
}

func TestNegotiate_Deterministic(t *testing.T) {
	var contracts []*caps.Caps
	for i := 0; i < 3; i++ {
		peer := &fakePeer{caps: caps.NewAny()}
		p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)
		require.True(t, p.Negotiate(caps.MustParse(videoUpstream)))
		neg, _ := p.Negotiated()
		contracts = append(contracts, neg.Contract)
	}
	assert.True(t, contracts[0].Equal(contracts[1]))
	assert.True(t, contracts[1].Equal(contracts[2]))
}

func TestNegotiate_Events(t *testing.T) {
	var events []Event
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer, WithObserver(func(e Event) { events = append(events, e) }))

	p.Negotiate(caps.MustParse(rawUpstream))
	peer.caps = nil
	p.Negotiate(caps.MustParse(rawUpstream))

	var types []EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventLinked, EventBound, EventNegotiated, EventNegotiationFailed}, types)
	assert.Equal(t, "raw-pixels", events[2].Status.Mode)
	assert.NotEmpty(t, events[3].Reason)
}

func TestAcquire_NotNegotiated(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	peer := &fakePeer{caps: caps.NewAny()}
	p := newLinkedPad(t, dev, peer)

	buf, err := p.AcquireOutputBuffer()
	assert.Nil(t, buf)
	assert.True(t, errors.Is(err, ErrNotNegotiated))
	assert.Equal(t, FlowNotNegotiated, FlowOf(err))
	assert.Zero(t, peer.allocs)
	assert.Zero(t, dev.Created())
}

func TestHardwareSurface_AcquirePush(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	peer := &fakePeer{caps: caps.MustParse("video/x-vdpau-output")}
	peer.alloc = func(_ int, c *caps.Caps) (buffer.Buffer, FlowReturn) {
		st := c.Structure(0)
		f, _ := st.Int(vdp.FieldRGBAFormat)
		w, _ := st.Int(vdp.FieldWidth)
		h, _ := st.Int(vdp.FieldHeight)
		b, err := vdp.NewOutputBuffer(dev, vdp.RGBAFormat(f), w, h)
		require.NoError(t, err)
		return b, FlowOK
	}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse(videoUpstream)))

	buf, err := p.AcquireOutputBuffer()
	require.NoError(t, err)
	assert.Equal(t, 720, buf.Width)

	// a transfer would fail; surface mode must never download
	dev.FailNext(vdp.FaultGetBits, errors.New("no readback expected"))

	flow, err := p.PushOutputBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, FlowOK, flow)

	require.Len(t, peer.pushed, 1)
	assert.Same(t, buf, peer.pushed[0])
	neg, _ := p.Negotiated()
	assert.True(t, peer.pushed[0].Caps().Equal(neg.Contract))
	assert.Equal(t, 1, peer.allocs)
	assert.Equal(t, 1, dev.Created())
	assert.False(t, buf.Released(), "ownership passed to the consumer")
}

func TestHardwareSurface_WrongBufferType(t *testing.T) {
	var host *buffer.Host
	peer := &fakePeer{caps: caps.MustParse("video/x-vdpau-output")}
	peer.alloc = func(size int, c *caps.Caps) (buffer.Buffer, FlowReturn) {
		host = buffer.NewHost(16)
		return host, FlowOK
	}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)
	require.True(t, p.Negotiate(caps.MustParse(videoUpstream)))

	buf, err := p.AcquireOutputBuffer()
	assert.Nil(t, buf)
	assert.True(t, errors.Is(err, ErrWrongBufferType))
	assert.Contains(t, err.Error(), "sink element returned buffer of wrong type")
	assert.True(t, host.Released())
}

func TestHardwareSurface_AllocRefused(t *testing.T) {
	peer := &fakePeer{caps: caps.MustParse("video/x-vdpau-output")}
	peer.alloc = func(int, *caps.Caps) (buffer.Buffer, FlowReturn) { return nil, FlowFlushing }
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)
	require.True(t, p.Negotiate(caps.MustParse(videoUpstream)))

	_, err := p.AcquireOutputBuffer()
	require.Error(t, err)
	assert.Equal(t, FlowFlushing, FlowOf(err))
}

func TestRawPixels_AcquireSameGeometry(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	var probe *buffer.Host
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	peer.alloc = func(size int, c *caps.Caps) (buffer.Buffer, FlowReturn) {
		probe = buffer.NewHost(0)
		probe.SetCaps(c.Copy())
		return probe, FlowOK
	}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))
	neg, _ := p.Negotiated()

	buf, err := p.AcquireOutputBuffer()
	require.NoError(t, err)
	assert.True(t, probe.Released())
	assert.Equal(t, neg.Output.RGBAFormat(), buf.Format)
	assert.Equal(t, 640, buf.Width)
	assert.Equal(t, 480, buf.Height)
	assert.True(t, buf.Caps().Equal(neg.Upstream), "working buffer carries the upstream format")
	assert.Equal(t, 1, dev.Live())
	buf.Release()
}

func TestRawPixels_RenegotiateAtAllocation(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	createdAtProbeRelease := -1
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	peer.alloc = geometryProbe(800, 600, func() { createdAtProbeRelease = dev.Created() })

	var resized []Event
	p := newLinkedPad(t, dev, peer, WithObserver(func(e Event) {
		if e.Type == EventResized {
			resized = append(resized, e)
		}
	}))
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

	buf, err := p.AcquireOutputBuffer()
	require.NoError(t, err)
	assert.Zero(t, createdAtProbeRelease, "probe is released before the working buffer exists")
	assert.Equal(t, 800, buf.Width)
	assert.Equal(t, 600, buf.Height)

	neg, _ := p.Negotiated()
	assert.Equal(t, 800, neg.Width)
	assert.Equal(t, 600, neg.Height)
	w, _ := neg.Upstream.Structure(0).Int(vdp.FieldWidth)
	assert.Equal(t, 800, w)
	h, _ := neg.Contract.Structure(0).Int(vdp.FieldHeight)
	assert.Equal(t, 600, h)
	require.Len(t, resized, 1)
	assert.Equal(t, 800, resized[0].Status.Width)

	flow, err := p.PushOutputBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, FlowOK, flow)
	assert.Equal(t, vdp.FrameSize(neg.Output.RGBAFormat(), 800, 600), peer.pushed[0].Size())
}

func TestRawPixels_ProbeRefusedIsIgnored(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

	buf, err := p.AcquireOutputBuffer()
	require.NoError(t, err)
	assert.Equal(t, 1, peer.allocs)
	assert.Equal(t, 640, buf.Width)
	buf.Release()
}

func TestRawPixels_ProbeWithoutGeometry(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	var probe *buffer.Host
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	peer.alloc = func(int, *caps.Caps) (buffer.Buffer, FlowReturn) {
		probe = buffer.NewHost(0)
		probe.SetCaps(caps.MustParse("video/x-raw-rgb, bpp=(int)32"))
		return probe, FlowOK
	}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

	buf, err := p.AcquireOutputBuffer()
	assert.Nil(t, buf)
	assert.True(t, errors.Is(err, ErrInvalidCaps))
	assert.True(t, probe.Released())
	assert.Zero(t, dev.Created())
}

func TestRawPixels_AllocationFailure(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

	dev.FailNext(vdp.FaultCreate, errors.New("out of video memory"))
	buf, err := p.AcquireOutputBuffer()
	assert.Nil(t, buf)
	assert.True(t, errors.Is(err, ErrResource))
	assert.Contains(t, err.Error(), "out of video memory")
	assert.Equal(t, FlowError, FlowOf(err))
}

func TestRawPixels_Push(t *testing.T) {
	dev := vdp.NewSoftwareDevice(vdp.FormatLimit{Format: vdp.RGBAFormatR8G8B8A8, MaxWidth: 64, MaxHeight: 64})
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse("video/x-raw-rgb, width=(int)4, height=(int)2")))

	buf, err := p.AcquireOutputBuffer()
	require.NoError(t, err)

	pixels := make([]byte, buf.CalculateSize())
	for i := range pixels {
		pixels[i] = byte(i * 3)
	}
	require.NoError(t, buf.Upload(pixels))
	buf.Meta().Timestamp = 40 * time.Millisecond
	buf.Meta().Duration = 40 * time.Millisecond
	buf.Meta().Flags = buffer.FlagDiscont

	flow, err := p.PushOutputBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, FlowOK, flow)
	assert.True(t, buf.Released())
	assert.Zero(t, dev.Live())

	require.Len(t, peer.pushed, 1)
	host, ok := peer.pushed[0].(*buffer.Host)
	require.True(t, ok)
	assert.Equal(t, vdp.FrameSize(vdp.RGBAFormatR8G8B8A8, 4, 2), host.Size())
	assert.Equal(t, pixels, host.Data)
	assert.Equal(t, 40*time.Millisecond, host.Meta().Timestamp)
	assert.Equal(t, buffer.FlagDiscont, host.Meta().Flags)

	neg, _ := p.Negotiated()
	assert.True(t, host.Caps().Equal(neg.Contract))
}

func TestRawPixels_TransferFailure(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

	buf, err := p.AcquireOutputBuffer()
	require.NoError(t, err)

	dev.FailNext(vdp.FaultGetBits, errors.New("readback timeout"))
	flow, err := p.PushOutputBuffer(buf)
	assert.Equal(t, FlowError, flow)
	assert.True(t, errors.Is(err, ErrTransfer))
	assert.Contains(t, err.Error(), "readback timeout")
	assert.True(t, buf.Released())
	assert.Zero(t, dev.Live())
	assert.Empty(t, peer.pushed)
}

func TestPush_StatusPassThrough(t *testing.T) {
	for _, want := range []FlowReturn{FlowOK, FlowFlushing, FlowEOS, FlowNotReady, FlowNotNegotiated, FlowError} {
		peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb"), pushFlow: want}
		p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)
		require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

		buf, err := p.AcquireOutputBuffer()
		require.NoError(t, err)
		flow, err := p.PushOutputBuffer(buf)
		assert.NoError(t, err)
		assert.Equal(t, want, flow, want.String())
	}
}

func TestPush_NotNegotiated(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	peer := &fakePeer{caps: caps.NewAny()}
	p := newLinkedPad(t, dev, peer)

	buf, err := vdp.NewOutputBuffer(dev, vdp.RGBAFormatB8G8R8A8, 8, 8)
	require.NoError(t, err)

	flow, err := p.PushOutputBuffer(buf)
	assert.Equal(t, FlowNotNegotiated, flow)
	assert.True(t, errors.Is(err, ErrNotNegotiated))
	assert.True(t, buf.Released())
	assert.Empty(t, peer.pushed)
}

func TestLifecycle(t *testing.T) {
	p := New("src", nil)
	assert.True(t, p.Caps().Equal(vdp.TemplateCaps()))
	assert.Equal(t, "unset", p.Status().Mode)

	assert.True(t, errors.Is(p.Activate(), ErrNoDevice))

	dev := vdp.NewSoftwareDevice(vdp.FormatLimit{Format: vdp.RGBAFormatB8G8R8A8, MaxWidth: 1920, MaxHeight: 1080})
	require.NoError(t, p.Bind(dev))
	assert.Equal(t, 2, p.Caps().Size(), "caps follow the bound device")
	assert.True(t, errors.Is(p.Activate(), ErrNotLinked))

	require.NoError(t, p.Link(&fakePeer{caps: caps.NewAny()}))
	require.NoError(t, p.Activate())
	assert.True(t, p.Active())
	assert.True(t, p.Status().DeviceBound)

	assert.True(t, errors.Is(p.Bind(vdp.NewSoftwareDevice()), ErrActive))
	assert.True(t, errors.Is(p.Unbind(), ErrActive))
	assert.True(t, errors.Is(p.Link(nil), ErrActive))

	p.Deactivate()
	assert.False(t, p.Active())
	assert.Nil(t, p.Device())
	assert.True(t, p.Caps().Equal(vdp.TemplateCaps()))
	assert.False(t, p.Status().DeviceBound)

	other := vdp.NewSoftwareDevice()
	require.NoError(t, p.Bind(other))
	assert.Equal(t, 2*len(vdp.Formats()), p.Caps().Size(), "caps recomputed for the new device")
	require.NoError(t, p.Unbind())
	assert.True(t, p.Caps().Equal(vdp.TemplateCaps()))
}

func TestBind_QueryFailureKeepsBinding(t *testing.T) {
	first := vdp.NewSoftwareDevice(vdp.FormatLimit{Format: vdp.RGBAFormatA8, MaxWidth: 16, MaxHeight: 16})
	p := New("src", nil)
	require.NoError(t, p.Bind(first))
	before := p.Caps()

	second := vdp.NewSoftwareDevice()
	second.FailNext(vdp.FaultQuery, errors.New("device lost"))
	assert.Error(t, p.Bind(second))
	assert.Same(t, first, p.Device())
	assert.True(t, before.Equal(p.Caps()))
}

func TestClose_ForgetsContract(t *testing.T) {
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))
	require.NoError(t, p.Activate())

	p.Deactivate()
	_, ok := p.Negotiated()
	assert.True(t, ok, "deactivation keeps the last contract")

	p.Close()
	_, ok = p.Negotiated()
	assert.False(t, ok)
	assert.False(t, p.Status().Linked)
}

func TestFlowOf(t *testing.T) {
	assert.Equal(t, FlowOK, FlowOf(nil))
	assert.Equal(t, FlowEOS, FlowOf(errors.Wrap(&StatusError{Flow: FlowEOS}, "pull")))
	assert.Equal(t, FlowNotLinked, FlowOf(ErrNotLinked))
	assert.Equal(t, FlowError, FlowOf(ErrTransfer))
	assert.Equal(t, "flow(42)", FlowReturn(42).String())
}

func TestCaps_ConcurrentWithDeactivate(t *testing.T) {
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), &fakePeer{caps: caps.NewAny()})
	require.NoError(t, p.Activate())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = p.Caps().String()
				_ = p.Status().Caps
			}
		}
	}()

	p.Deactivate()
	close(stop)
	wg.Wait()
	assert.True(t, p.Caps().Equal(vdp.TemplateCaps()))
}

func TestDeactivate_ClearsBindingWhenInactive(t *testing.T) {
	var events []EventType
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), &fakePeer{caps: caps.NewAny()},
		WithObserver(func(e Event) { events = append(events, e.Type) }))
	require.NotNil(t, p.Device())

	p.Deactivate()
	assert.Nil(t, p.Device())
	assert.True(t, p.Caps().Equal(vdp.TemplateCaps()))
	assert.False(t, p.Status().DeviceBound)
	assert.NotContains(t, events, EventDeactivated, "nothing was running")
}

func TestCaps_ReturnsCopy(t *testing.T) {
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), &fakePeer{caps: caps.NewAny()})
	before := p.Caps().String()

	c := p.Caps()
	c.Structure(0).SetInt(vdp.FieldWidth, 3)
	assert.Equal(t, before, p.Caps().String())

	require.NoError(t, p.Unbind())
	tmpl := p.Caps()
	tmpl.Structure(0).SetInt(vdp.FieldWidth, 3)
	assert.True(t, p.Caps().Equal(vdp.TemplateCaps()))
}

func TestHardwareSurface_NilSurface(t *testing.T) {
	peer := &fakePeer{caps: caps.MustParse("video/x-vdpau-output")}
	peer.alloc = func(int, *caps.Caps) (buffer.Buffer, FlowReturn) {
		return (*vdp.OutputBuffer)(nil), FlowOK
	}
	p := newLinkedPad(t, vdp.NewSoftwareDevice(), peer)
	require.True(t, p.Negotiate(caps.MustParse(videoUpstream)))

	buf, err := p.AcquireOutputBuffer()
	assert.Nil(t, buf)
	assert.True(t, errors.Is(err, ErrWrongBufferType))
}

func TestRawPixels_RefusedBufferIsReleased(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	var refused *buffer.Host
	peer := &fakePeer{caps: caps.MustParse("video/x-raw-rgb")}
	peer.alloc = func(int, *caps.Caps) (buffer.Buffer, FlowReturn) {
		refused = buffer.NewHost(0)
		return refused, FlowNotReady
	}
	p := newLinkedPad(t, dev, peer)
	require.True(t, p.Negotiate(caps.MustParse(rawUpstream)))

	buf, err := p.AcquireOutputBuffer()
	require.NoError(t, err)
	assert.Equal(t, 640, buf.Width)
	assert.True(t, refused.Released())
	buf.Release()
}
