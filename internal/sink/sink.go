// Package sink provides the downstream consumer an output pad pushes to.
// A Sink decides which formats it accepts, allocates surfaces when the
// contract is device-resident, converts whatever it receives to RGBA and
// hands the frames to its renderers.
package sink

import (
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/buffer"
	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ErrNoFrame is returned by Snapshot before anything was rendered
var ErrNoFrame = errors.New("no frame rendered yet")

// Config describes what a Sink accepts
type Config struct {
	// Caps is the accepted format set in caps-string syntax; empty means ANY
	Caps string
	// Width and Height force the geometry requested at allocation time
	Width  int
	Height int
	// Device allocates surfaces for device-resident contracts
	Device vdp.Device
}

// Sink is an outputpad.Peer that renders what it receives
type Sink struct {
	log       zerolog.Logger
	accept    *caps.Caps
	forceW    int
	forceH    int
	device    vdp.Device
	renderers []Renderer

	mu       sync.Mutex
	current  *caps.Caps
	flushing bool
	eos      bool
	last     *image.RGBA
	lastAt   time.Time
	frames   uint64
	failures uint64
}

// New creates a sink
func New(cfg Config, log zerolog.Logger, renderers ...Renderer) (*Sink, error) {
	accept := caps.NewAny()
	if cfg.Caps != "" {
		c, err := caps.Parse(cfg.Caps)
		if err != nil {
			return nil, errors.Wrap(err, "parse sink caps")
		}
		accept = c
	}
	if (cfg.Width > 0) != (cfg.Height > 0) {
		return nil, errors.Newf("forced size needs both width and height, got %dx%d", cfg.Width, cfg.Height)
	}

	return &Sink{
		log:       log.With().Str("component", "sink").Logger(),
		accept:    accept,
		forceW:    cfg.Width,
		forceH:    cfg.Height,
		device:    cfg.Device,
		renderers: renderers,
	}, nil
}

// Caps reports the accepted formats. Without a device, surface formats
// are left out.
func (s *Sink) Caps() *caps.Caps {
	if s.device != nil {
		return s.accept.Copy()
	}
	if s.accept.IsAny() {
		return caps.New(caps.NewStructure(vdp.MediaTypeRawRGB))
	}
	out := caps.NewEmpty()
	for i := 0; i < s.accept.Size(); i++ {
		if st := s.accept.Structure(i); !st.HasName(vdp.MediaTypeOutput) {
			out.Append(st.Copy())
		}
	}
	return out
}

// SetCaps accepts a fixed contract that falls within the accepted formats
func (s *Sink) SetCaps(c *caps.Caps) bool {
	if !c.IsFixed() || !caps.CanIntersect(c, s.accept) {
		s.log.Warn().Str("caps", c.String()).Msg("Rejecting caps")
		return false
	}
	if c.Structure(0).HasName(vdp.MediaTypeOutput) && s.device == nil {
		s.log.Warn().Msg("Rejecting surface caps without a device")
		return false
	}

	s.mu.Lock()
	s.current = c.Copy()
	s.mu.Unlock()
	s.log.Info().Str("caps", c.String()).Msg("Caps set")
	return true
}

// Current returns the last accepted contract
func (s *Sink) Current() *caps.Caps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Copy()
}

// AllocBuffer allocates a device surface for surface contracts. For raw
// contracts it returns an empty probe describing the geometry the sink
// wants, which differs from c when a forced size is configured.
func (s *Sink) AllocBuffer(size int, c *caps.Caps) (buffer.Buffer, outputpad.FlowReturn) {
	s.mu.Lock()
	flushing := s.flushing
	s.mu.Unlock()
	if flushing {
		return nil, outputpad.FlowFlushing
	}

	st := c.Structure(0)
	if st == nil {
		return nil, outputpad.FlowNotNegotiated
	}

	if st.HasName(vdp.MediaTypeOutput) {
		return s.allocSurface(st, c)
	}

	annotated := c.Copy()
	if s.forceW > 0 {
		annotated.Structure(0).SetInt(vdp.FieldWidth, s.forceW)
		annotated.Structure(0).SetInt(vdp.FieldHeight, s.forceH)
	}
	probe := buffer.NewHost(size)
	probe.SetCaps(annotated)
	return probe, outputpad.FlowOK
}

func (s *Sink) allocSurface(st *caps.Structure, c *caps.Caps) (buffer.Buffer, outputpad.FlowReturn) {
	if s.device == nil {
		return nil, outputpad.FlowNotNegotiated
	}
	f, okF := st.Int(vdp.FieldRGBAFormat)
	w, okW := st.Int(vdp.FieldWidth)
	h, okH := st.Int(vdp.FieldHeight)
	if !okF || !okW || !okH {
		s.log.Error().Str("caps", c.String()).Msg("Surface caps without format or geometry")
		return nil, outputpad.FlowNotNegotiated
	}

	buf, err := vdp.NewOutputBuffer(s.device, vdp.RGBAFormat(f), w, h)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to allocate output surface")
		return nil, outputpad.FlowError
	}
	buf.SetCaps(c)
	return buf, outputpad.FlowOK
}

// Push renders b and releases it
func (s *Sink) Push(b buffer.Buffer) outputpad.FlowReturn {
	defer b.Release()

	s.mu.Lock()
	flushing, eos := s.flushing, s.eos
	s.mu.Unlock()
	switch {
	case flushing:
		return outputpad.FlowFlushing
	case eos:
		return outputpad.FlowEOS
	}

	img, err := frameImage(b)
	if err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("Failed to convert frame")
		return outputpad.FlowError
	}

	for _, r := range s.renderers {
		if !r.IsRunning() {
			continue
		}
		if err := r.WriteFrame(img); err != nil {
			s.log.Warn().Err(err).Str("renderer", r.Name()).Msg("Renderer failed")
		}
	}

	s.mu.Lock()
	s.last = img
	s.lastAt = time.Now()
	s.frames++
	s.mu.Unlock()
	return outputpad.FlowOK
}

// frameImage converts a pushed buffer to RGBA
func frameImage(b buffer.Buffer) (*image.RGBA, error) {
	switch buf := b.(type) {
	case *vdp.OutputBuffer:
		host := buffer.NewHost(buf.CalculateSize())
		defer host.Release()
		if err := buf.Download(host); err != nil {
			return nil, err
		}
		return vdp.ToRGBA(host.Data, buf.Format, buf.Width, buf.Height)

	case *buffer.Host:
		c := buf.Caps()
		st := c.Structure(0)
		if st == nil {
			return nil, errors.New("host buffer without caps")
		}
		f, ok := vdp.CapsToRGBAFormat(c)
		if !ok {
			return nil, errors.Newf("unsupported raw format %s", st)
		}
		w, okW := st.Int(vdp.FieldWidth)
		h, okH := st.Int(vdp.FieldHeight)
		if !okW || !okH {
			return nil, errors.Newf("raw caps without geometry: %s", st)
		}
		return vdp.ToRGBA(buf.Data, f, w, h)

	default:
		return nil, errors.Newf("unsupported buffer type %T", b)
	}
}

// Flush starts or stops flushing. Stopping a flush also clears EOS.
func (s *Sink) Flush(start bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushing = start
	if !start {
		s.eos = false
	}
}

// EOS makes every following push report end of stream
func (s *Sink) EOS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos = true
}

// Start starts all renderers
func (s *Sink) Start() error {
	for _, r := range s.renderers {
		if err := r.Start(); err != nil {
			return errors.Wrapf(err, "start %s", r.Name())
		}
	}
	return nil
}

// Stop stops all renderers, returning the combined errors
func (s *Sink) Stop() error {
	var errs error
	for _, r := range s.renderers {
		if err := r.Stop(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "stop %s", r.Name()))
		}
	}
	return errs
}

// Stats summarizes what the sink has received
type Stats struct {
	Frames    uint64    `json:"frames"`
	Errors    uint64    `json:"errors"`
	Caps      string    `json:"caps"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	LastFrame time.Time `json:"last_frame"`
	Flushing  bool      `json:"flushing"`
	EOS       bool      `json:"eos"`
}

// Stats returns the current counters
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Frames:    s.frames,
		Errors:    s.failures,
		Caps:      s.current.String(),
		LastFrame: s.lastAt,
		Flushing:  s.flushing,
		EOS:       s.eos,
	}
	if s.last != nil {
		st.Width = s.last.Bounds().Dx()
		st.Height = s.last.Bounds().Dy()
	}
	return st
}

// LastFrame returns the most recently rendered frame, or nil
func (s *Sink) LastFrame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
