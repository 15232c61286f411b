// Package pipeline assembles a software device, an output pad, a sink and a
// test-pattern source from configuration.
package pipeline

import (
	"context"

	"github.com/bryanchriswhite/vdpout/internal/config"
	"github.com/bryanchriswhite/vdpout/internal/gstcaps"
	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/bryanchriswhite/vdpout/internal/sink"
	"github.com/bryanchriswhite/vdpout/internal/source"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/cockroachdb/errors"
)

// Pipeline is a linked source, pad and sink
type Pipeline struct {
	Device vdp.Device
	// Pool is nil when surface pooling is disabled
	Pool   *vdp.SurfacePool
	Pad    *outputpad.OutputPort
	Sink   *sink.Sink
	Source *source.Source
	// MJPEG is nil unless the mjpeg renderer is selected
	MJPEG *sink.MJPEGRenderer
}

// Algebra returns the caps algebra selected by backend
func Algebra(backend config.CapsBackend) vdp.Algebra {
	if backend == config.CapsBackendGStreamer {
		return vdp.NewAlgebra(gstcaps.New())
	}
	return vdp.NewAlgebra(nil)
}

// Build creates every stage and links the pad to the sink. Extra options,
// such as observers, are passed to the pad.
func Build(cfg *config.Config, opts ...outputpad.Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get()

	limits, err := cfg.Device.Limits()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Device: vdp.NewSoftwareDevice(limits...)}
	if cfg.Device.PoolSize > 0 {
		p.Pool = vdp.NewSurfacePool(p.Device, cfg.Device.PoolSize)
		p.Device = p.Pool
	}

	renderers, err := p.renderers(cfg)
	if err != nil {
		return nil, err
	}

	sinkCfg := sink.Config{Caps: cfg.Sink.Caps, Width: cfg.Sink.Width, Height: cfg.Sink.Height}
	if cfg.Sink.DeviceAlloc {
		sinkCfg.Device = p.Device
	}
	if p.Sink, err = sink.New(sinkCfg, *log, renderers...); err != nil {
		return nil, err
	}

	padOpts := append([]outputpad.Option{
		outputpad.WithLogger(*logger.WithComponent("outputpad")),
		outputpad.WithAlgebra(Algebra(cfg.CapsBackend)),
	}, opts...)
	p.Pad = outputpad.New("src", nil, padOpts...)
	if err := p.Pad.Link(p.Sink); err != nil {
		return nil, err
	}
	if err := p.Pad.Bind(p.Device); err != nil {
		return nil, errors.Wrap(err, "bind device")
	}

	aspect, err := cfg.Source.Aspect()
	if err != nil {
		return nil, err
	}
	p.Source, err = source.New(p.Pad, source.Config{
		Width:       cfg.Source.Width,
		Height:      cfg.Source.Height,
		FPS:         cfg.Source.FPS,
		ChromaType:  cfg.Source.ChromaType,
		PixelAspect: aspect,
		Frames:      cfg.Source.Frames,
		Label:       cfg.Source.Label,
	}, *log)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Pipeline) renderers(cfg *config.Config) ([]sink.Renderer, error) {
	rc := sink.RenderConfig{Width: cfg.Sink.Width, Height: cfg.Sink.Height, FPS: cfg.Source.FPS}
	switch cfg.Sink.Renderer {
	case "mjpeg":
		p.MJPEG = sink.NewMJPEGRenderer(rc)
		return []sink.Renderer{p.MJPEG}, nil
	case "x11":
		x, err := sink.NewX11Renderer(rc, "vdpout")
		if err != nil {
			return nil, err
		}
		return []sink.Renderer{x}, nil
	default:
		return nil, nil
	}
}

// Run starts the sink, activates the pad and drives the source until ctx
// is done or the stream ends. Everything is stopped again on return.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Sink.Start(); err != nil {
		return err
	}
	defer func() {
		if err := p.Sink.Stop(); err != nil {
			logger.WithComponent("pipeline").Warn().Err(err).Msg("Failed to stop sink")
		}
	}()

	if err := p.Pad.Activate(); err != nil {
		return err
	}
	defer p.Pad.Deactivate()

	return p.Source.Run(ctx)
}

// Close releases the pad and any pooled surfaces
func (p *Pipeline) Close() error {
	p.Pad.Close()
	if p.Pool != nil {
		return p.Pool.Drain()
	}
	return nil
}
