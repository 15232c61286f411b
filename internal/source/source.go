// Package source drives an output pad with a synthetic video stream: it
// negotiates from device-video caps, renders a test pattern into every
// surface it acquires and pushes it at the configured frame rate.
package source

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/buffer"
	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNegotiation is returned by Run when no output format could be agreed on
var ErrNegotiation = errors.New("output negotiation failed")

// Port is the part of an output pad a Source drives
type Port interface {
	Negotiate(upstream *caps.Caps) bool
	AcquireOutputBuffer() (*vdp.OutputBuffer, error)
	PushOutputBuffer(buf *vdp.OutputBuffer) (outputpad.FlowReturn, error)
}

// Config describes the produced stream
type Config struct {
	Width  int
	Height int
	FPS    int
	// ChromaType is carried in the upstream caps only
	ChromaType int
	// PixelAspect defaults to 1/1
	PixelAspect caps.Fraction
	// Frames stops Run after that many pushed frames; 0 runs until stopped
	Frames uint64
	// Label is drawn in the top-left corner with the frame number
	Label string
}

// Source is a test-pattern producer
type Source struct {
	cfg     Config
	port    Port
	log     zerolog.Logger
	limiter *rate.Limiter
	frame   uint64
}

// New creates a source for port
func New(port Port, cfg Config, log zerolog.Logger) (*Source, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Newf("invalid source size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.PixelAspect.Den == 0 {
		cfg.PixelAspect = caps.Fraction{Num: 1, Den: 1}
	}

	limit := rate.Inf
	if cfg.FPS > 0 {
		limit = rate.Limit(cfg.FPS)
	}

	return &Source{
		cfg:     cfg,
		port:    port,
		log:     log.With().Str("component", "source").Logger(),
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Caps returns the upstream video format the source produces
func (s *Source) Caps() *caps.Caps {
	st := caps.NewStructure(vdp.MediaTypeVideo).
		SetInt(vdp.FieldChromaType, s.cfg.ChromaType).
		SetInt(vdp.FieldWidth, s.cfg.Width).
		SetInt(vdp.FieldHeight, s.cfg.Height).
		Set(vdp.FieldPixelAspectRatio, s.cfg.PixelAspect)
	if s.cfg.FPS > 0 {
		st.Set(vdp.FieldFramerate, caps.Fraction{Num: s.cfg.FPS, Den: 1})
	}
	return caps.New(st)
}

// Frames returns how many frames have been pushed
func (s *Source) Frames() uint64 { return s.frame }

// Run negotiates and pushes frames until ctx is done, the consumer
// reports EOS or flushing, or the configured frame count is reached.
// A NotNegotiated push triggers one renegotiation before giving up.
func (s *Source) Run(ctx context.Context) error {
	if !s.port.Negotiate(s.Caps()) {
		return ErrNegotiation
	}
	s.log.Info().Str("caps", s.Caps().String()).Msg("Source started")

	renegotiated := false
	for s.cfg.Frames == 0 || s.frame < s.cfg.Frames {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		flow, err := s.Step()
		switch flow {
		case outputpad.FlowOK:
			renegotiated = false
		case outputpad.FlowNotReady:
			s.log.Debug().Uint64("frame", s.frame).Msg("Consumer not ready, dropping frame")
		case outputpad.FlowEOS, outputpad.FlowFlushing:
			s.log.Info().Str("flow", flow.String()).Uint64("frames", s.frame).Msg("Source stopped by consumer")
			return nil
		case outputpad.FlowNotNegotiated:
			if renegotiated {
				return errors.CombineErrors(ErrNegotiation, err)
			}
			renegotiated = true
			s.log.Warn().Msg("Consumer not negotiated, renegotiating")
			if !s.port.Negotiate(s.Caps()) {
				return ErrNegotiation
			}
		default:
			if err == nil {
				err = &outputpad.StatusError{Flow: flow}
			}
			return errors.Wrapf(err, "frame %d", s.frame)
		}
	}

	s.log.Info().Uint64("frames", s.frame).Msg("Source finished")
	return nil
}

// Step renders and pushes one frame
func (s *Source) Step() (outputpad.FlowReturn, error) {
	buf, err := s.port.AcquireOutputBuffer()
	if err != nil {
		return outputpad.FlowOf(err), err
	}

	img := image.NewRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	paintFrame(img, s.frame)
	if s.cfg.Label != "" {
		drawLabel(img, fmt.Sprintf("%s #%d", s.cfg.Label, s.frame), 8, 8)
	}
	if err := buf.Upload(vdp.FromRGBA(img, buf.Format)); err != nil {
		buf.Release()
		return outputpad.FlowError, errors.Wrap(err, "upload test pattern")
	}

	meta := buf.Meta()
	if s.cfg.FPS > 0 {
		meta.Duration = time.Second / time.Duration(s.cfg.FPS)
		meta.Timestamp = time.Duration(s.frame) * meta.Duration
	}
	meta.Offset = s.frame
	meta.OffsetEnd = s.frame + 1
	if s.frame == 0 {
		meta.Flags |= buffer.FlagDiscont
	}

	flow, err := s.port.PushOutputBuffer(buf)
	if flow == outputpad.FlowOK {
		s.frame++
	}
	return flow, err
}
