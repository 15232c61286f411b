package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/buffer"
	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	running bool
	frames  []*image.RGBA
}

func (r *recordingRenderer) Start() error    { r.running = true; return nil }
func (r *recordingRenderer) Stop() error     { r.running = false; return nil }
func (r *recordingRenderer) Name() string    { return "recorder" }
func (r *recordingRenderer) IsRunning() bool { return r.running }
func (r *recordingRenderer) WriteFrame(f *image.RGBA) error {
	r.frames = append(r.frames, f)
	return nil
}

func newSink(t *testing.T, cfg Config, renderers ...Renderer) *Sink {
	t.Helper()
	s, err := New(cfg, zerolog.Nop(), renderers...)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Caps: "video/x-raw-rgb, width=[ 1"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{Width: 640}, zerolog.Nop())
	assert.Error(t, err)
}

func TestCaps_WithoutDeviceDropsSurfaces(t *testing.T) {
	s := newSink(t, Config{})
	c := s.Caps()
	require.Equal(t, 1, c.Size())
	assert.Equal(t, vdp.MediaTypeRawRGB, c.Structure(0).Name())

	s = newSink(t, Config{Caps: "video/x-vdpau-output; video/x-raw-rgb, bpp=(int)32"})
	c = s.Caps()
	require.Equal(t, 1, c.Size())
	assert.Equal(t, vdp.MediaTypeRawRGB, c.Structure(0).Name())

	s = newSink(t, Config{Caps: "video/x-vdpau-output", Device: vdp.NewSoftwareDevice()})
	assert.Equal(t, vdp.MediaTypeOutput, s.Caps().Structure(0).Name())
}

func TestSetCaps(t *testing.T) {
	s := newSink(t, Config{Caps: "video/x-raw-rgb, bpp=(int)32"})

	assert.False(t, s.SetCaps(caps.MustParse("video/x-raw-rgb, bpp=(int)32, width=[ 1, 10 ]")), "not fixed")
	assert.False(t, s.SetCaps(caps.MustParse("video/x-raw-rgb, bpp=(int)8, width=(int)4")), "not accepted")
	assert.False(t, s.SetCaps(caps.MustParse("video/x-vdpau-output, rgba-format=(int)0")), "no device")

	ok := caps.MustParse("video/x-raw-rgb, bpp=(int)32, width=(int)4, height=(int)4")
	require.True(t, s.SetCaps(ok))
	assert.True(t, s.Current().Equal(ok))
}

func TestAllocBuffer_ForcedGeometry(t *testing.T) {
	s := newSink(t, Config{Width: 320, Height: 240})
	contract := caps.MustParse("video/x-raw-rgb, bpp=(int)32, width=(int)640, height=(int)480")

	b, flow := s.AllocBuffer(0, contract)
	require.Equal(t, outputpad.FlowOK, flow)
	w, _ := b.Caps().Structure(0).Int(vdp.FieldWidth)
	h, _ := b.Caps().Structure(0).Int(vdp.FieldHeight)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
	b.Release()

	w, _ = contract.Structure(0).Int(vdp.FieldWidth)
	assert.Equal(t, 640, w, "contract is not modified")

	s.Flush(true)
	b, flow = s.AllocBuffer(0, contract)
	assert.Nil(t, b)
	assert.Equal(t, outputpad.FlowFlushing, flow)
}

func TestPad_RawPixelsWithForcedSize(t *testing.T) {
	dev := vdp.NewSoftwareDevice(vdp.FormatLimit{Format: vdp.RGBAFormatR8G8B8A8, MaxWidth: 1920, MaxHeight: 1080})
	rec := &recordingRenderer{}
	s := newSink(t, Config{Caps: "video/x-raw-rgb", Width: 8, Height: 4}, rec)

	pad := outputpad.New("src", nil)
	require.NoError(t, pad.Link(s))
	require.NoError(t, pad.Bind(dev))
	require.NoError(t, pad.Activate())
	require.True(t, pad.Negotiate(caps.MustParse("video/x-vdpau-video, chroma-type=(int)0, width=(int)16, height=(int)16")))

	buf, err := pad.AcquireOutputBuffer()
	require.NoError(t, err)
	assert.Equal(t, 8, buf.Width, "sink-forced geometry wins at allocation")
	assert.Equal(t, 4, buf.Height)

	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.SetRGBA(1, 1, color.RGBA{R: 200, G: 10, B: 30, A: 255})
	require.NoError(t, buf.Upload(vdp.FromRGBA(img, vdp.RGBAFormatR8G8B8A8)))

	flow, err := pad.PushOutputBuffer(buf)
	require.NoError(t, err)
	require.Equal(t, outputpad.FlowOK, flow)

	require.Len(t, rec.frames, 1)
	assert.Equal(t, color.RGBA{R: 200, G: 10, B: 30, A: 255}, rec.frames[0].RGBAAt(1, 1))
	assert.Zero(t, dev.Live())

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, 8, st.Width)
}

func TestPad_HardwareSurface(t *testing.T) {
	dev := vdp.NewSoftwareDevice()
	rec := &recordingRenderer{}
	s := newSink(t, Config{Caps: "video/x-vdpau-output, rgba-format=(int)0", Device: dev}, rec)

	pad := outputpad.New("src", nil)
	require.NoError(t, pad.Link(s))
	require.NoError(t, pad.Bind(dev))
	require.True(t, pad.Negotiate(caps.MustParse("video/x-vdpau-video, chroma-type=(int)0, width=(int)4, height=(int)4")))

	neg, _ := pad.Negotiated()
	require.Equal(t, outputpad.HardwareSurface{Format: vdp.RGBAFormatB8G8R8A8}, neg.Output)

	buf, err := pad.AcquireOutputBuffer()
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(3, 2, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	require.NoError(t, buf.Upload(vdp.FromRGBA(img, vdp.RGBAFormatB8G8R8A8)))

	flow, err := pad.PushOutputBuffer(buf)
	require.NoError(t, err)
	require.Equal(t, outputpad.FlowOK, flow)

	require.Len(t, rec.frames, 1)
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, rec.frames[0].RGBAAt(3, 2))
	assert.True(t, buf.Released(), "sink releases what it is pushed")
	assert.Zero(t, dev.Live())
}

func TestPush_FlushAndEOS(t *testing.T) {
	s := newSink(t, Config{})
	contract := caps.MustParse("video/x-raw-rgb, bpp=(int)8, depth=(int)0, endianness=(int)4321, " +
		"red_mask=(int)0, green_mask=(int)0, blue_mask=(int)0, alpha_mask=(int)255, width=(int)2, height=(int)2")

	push := func() (outputpad.FlowReturn, *buffer.Host) {
		h := buffer.NewHost(4)
		h.SetCaps(contract)
		return s.Push(h), h
	}

	flow, h := push()
	assert.Equal(t, outputpad.FlowOK, flow)
	assert.True(t, h.Released())

	s.Flush(true)
	flow, h = push()
	assert.Equal(t, outputpad.FlowFlushing, flow)
	assert.True(t, h.Released())

	s.Flush(false)
	s.EOS()
	flow, _ = push()
	assert.Equal(t, outputpad.FlowEOS, flow)

	s.Flush(true)
	s.Flush(false)
	flow, _ = push()
	assert.Equal(t, outputpad.FlowOK, flow, "stopping a flush clears EOS")
}

func TestPush_BadBuffer(t *testing.T) {
	s := newSink(t, Config{})
	h := buffer.NewHost(4)
	h.SetCaps(caps.MustParse("video/x-raw-rgb, bpp=(int)16"))

	assert.Equal(t, outputpad.FlowError, s.Push(h))
	assert.True(t, h.Released())
	assert.Equal(t, uint64(1), s.Stats().Errors)
}

func TestSnapshot(t *testing.T) {
	s := newSink(t, Config{})
	_, _, err := s.Snapshot("png")
	assert.ErrorIs(t, err, ErrNoFrame)

	h := buffer.NewHost(vdp.FrameSize(vdp.RGBAFormatR8G8B8A8, 3, 2))
	c := vdp.RawCaps(vdp.RGBAFormatR8G8B8A8)
	c.Structure(0).SetInt(vdp.FieldWidth, 3)
	c.Structure(0).SetInt(vdp.FieldHeight, 2)
	h.SetCaps(c)
	require.Equal(t, outputpad.FlowOK, s.Push(h))

	data, ctype, err := s.Snapshot("png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ctype)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	data, ctype, err = s.Snapshot("BMP")
	require.NoError(t, err)
	assert.Equal(t, "image/bmp", ctype)
	assert.Equal(t, []byte("BM"), data[:2])

	_, _, err = s.Snapshot("gif")
	assert.Error(t, err)
}

func TestFitFrame(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	assert.Same(t, src, fitFrame(src, 0, 0))
	assert.Same(t, src, fitFrame(src, 4, 2))

	out := fitFrame(src, 8, 8)
	assert.Equal(t, image.Rect(0, 0, 8, 8), out.Bounds())
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(0, 0), "letterbox is black")
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, out.RGBAAt(4, 4))
}

func TestPackZPixmap(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	img.SetRGBA(0, 1, color.RGBA{R: 5, G: 6, B: 7, A: 8})

	data, err := packZPixmap(img, 3, 4, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1, 0, 7, 6, 5, 0}, data)

	data, err = packZPixmap(img, 4, 4, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, data)

	_, err = packZPixmap(img, 2, 4, false)
	assert.Error(t, err)
}

func TestMJPEGRenderer(t *testing.T) {
	m := NewMJPEGRenderer(RenderConfig{Width: 16, Height: 16})
	assert.Error(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))), "not running")
	require.NoError(t, m.Start())
	defer m.Stop()

	srv := httptest.NewServer(m.StreamHandler())
	defer srv.Close()

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL)
		if err == nil {
			respCh <- resp
		}
	}()
	require.Eventually(t, func() bool { return m.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))

	var resp *http.Response
	select {
	case resp = <-respCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no stream response")
	}
	defer resp.Body.Close()
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)

	rec := httptest.NewRecorder()
	m.StatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var st MJPEGStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Running)
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, 16, st.Width)
}
