package sink

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Renderer displays frames the sink receives. Implementations:
// - MJPEG HTTP stream
// - X11 window
type Renderer interface {
	// Start initializes the renderer
	Start() error

	// Stop cleanly shuts down the renderer
	Stop() error

	// WriteFrame displays one frame
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this renderer
	Name() string

	// IsRunning returns true if the renderer is currently active
	IsRunning() bool
}

// RenderConfig holds common configuration for all renderers
type RenderConfig struct {
	// Width and Height are the output size; zero keeps the frame size
	Width  int
	Height int
	FPS    int
}

// fitFrame scales src into a width x height canvas, keeping the aspect
// ratio and centering on black. Zero dimensions return src unchanged.
func fitFrame(src *image.RGBA, width, height int) *image.RGBA {
	b := src.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return src
	}

	scale := float64(width) / float64(b.Dx())
	if s := float64(height) / float64(b.Dy()); s < scale {
		scale = s
	}
	dw, dh := int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)
	ox, oy := (width-dw)/2, (height-dh)/2

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: image.Black}, image.Point{}, draw.Src)
	xdraw.BiLinear.Scale(out, image.Rect(ox, oy, ox+dw, oy+dh), src, b, xdraw.Src, nil)
	return out
}
