package sink

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/vdpout/internal/logger"
)

// X11Renderer shows frames in a plain X11 window
type X11Renderer struct {
	conn    *xgb.Conn
	screen  *xproto.ScreenInfo
	window  xproto.Window
	gc      xproto.Gcontext
	width   int
	height  int
	title   string
	running bool
	mu      sync.RWMutex
}

// NewX11Renderer connects to the X server named by $DISPLAY
func NewX11Renderer(config RenderConfig, title string) (*X11Renderer, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	width, height := config.Width, config.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}

	return &X11Renderer{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		width:  width,
		height: height,
		title:  title,
	}, nil
}

// Start creates and maps the window
func (x *X11Renderer) Start() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.running {
		return fmt.Errorf("X11 renderer already running")
	}

	windowID, err := xproto.NewWindowId(x.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	x.window = windowID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(
		x.conn,
		x.screen.RootDepth,
		x.window,
		x.screen.Root,
		0, 0,
		uint16(x.width), uint16(x.height),
		0,
		xproto.WindowClassInputOutput,
		x.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	log := logger.WithComponent("x11")
	if err := x.setWindowTitle(x.title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := x.setWindowClass("vdpout", "vdpout"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(x.conn, x.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(x.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	x.gc = gc
	err = xproto.CreateGCChecked(
		x.conn,
		x.gc,
		xproto.Drawable(x.window),
		xproto.GcForeground|xproto.GcBackground,
		[]uint32{0xffffffff, 0x00000000},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	x.conn.Sync()

	x.running = true
	log.Info().
		Int("width", x.width).
		Int("height", x.height).
		Uint32("window_id", uint32(x.window)).
		Msg("Output window created")
	return nil
}

// Stop destroys the window and closes the connection
func (x *X11Renderer) Stop() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.running {
		return nil
	}
	if x.gc != 0 {
		xproto.FreeGC(x.conn, x.gc)
	}
	if x.window != 0 {
		xproto.DestroyWindow(x.conn, x.window)
		x.conn.Sync()
	}
	x.conn.Close()
	x.running = false

	logger.WithComponent("x11").Info().Msg("Output window closed")
	return nil
}

// Name returns the renderer name
func (x *X11Renderer) Name() string { return "X11 Window" }

// IsRunning returns whether the window is shown
func (x *X11Renderer) IsRunning() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.running
}

// WriteFrame letterboxes the frame into the window and uploads it
func (x *X11Renderer) WriteFrame(frame *image.RGBA) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.running {
		return fmt.Errorf("X11 renderer not running")
	}
	return x.putImage(fitFrame(frame, x.width, x.height))
}

// putImage converts to the screen's ZPixmap layout and sends it
func (x *X11Renderer) putImage(img *image.RGBA) error {
	depth := x.screen.RootDepth
	setup := xproto.Setup(x.conn)

	var bitsPerPixel, scanlinePad uint8
	for _, format := range setup.PixmapFormats {
		if format.Depth == depth {
			bitsPerPixel = format.BitsPerPixel
			scanlinePad = format.ScanlinePad
			break
		}
	}
	if bitsPerPixel == 0 {
		return fmt.Errorf("no format found for depth %d", depth)
	}

	data, err := packZPixmap(img, int(bitsPerPixel)/8, int(scanlinePad)/8, depth == 32)
	if err != nil {
		return err
	}

	err = xproto.PutImageChecked(
		x.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(x.window),
		x.gc,
		uint16(x.width),
		uint16(x.height),
		0, 0,
		0,
		depth,
		data,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to put image: %w", err)
	}
	x.conn.Sync()
	return nil
}

// packZPixmap lays out img as BGR(x) rows padded to padBytes
func packZPixmap(img *image.RGBA, bytesPerPixel, padBytes int, keepAlpha bool) ([]byte, error) {
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, fmt.Errorf("unsupported bytes per pixel: %d", bytesPerPixel)
	}
	if padBytes <= 0 {
		padBytes = 1
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	unpadded := w * bytesPerPixel
	stride := ((unpadded + padBytes - 1) / padBytes) * padBytes
	data := make([]byte, stride*h)

	for y := 0; y < h; y++ {
		for xx := 0; xx < w; xx++ {
			src := img.PixOffset(b.Min.X+xx, b.Min.Y+y)
			dst := y*stride + xx*bytesPerPixel
			data[dst] = img.Pix[src+2]
			data[dst+1] = img.Pix[src+1]
			data[dst+2] = img.Pix[src]
			if bytesPerPixel == 4 && keepAlpha {
				data[dst+3] = img.Pix[src+3]
			}
		}
	}
	return data, nil
}

func (x *X11Renderer) setWindowTitle(title string) error {
	titleAtom, err := x.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := x.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		x.conn,
		xproto.PropModeReplace,
		x.window,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

// setWindowClass writes WM_CLASS as instance\0class\0
func (x *X11Renderer) setWindowClass(instance, class string) error {
	classAtom, err := x.getAtom("WM_CLASS")
	if err != nil {
		return err
	}
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(
		x.conn,
		xproto.PropModeReplace,
		x.window,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

func (x *X11Renderer) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
