package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/logger"
)

// MJPEGRenderer streams frames as Motion JPEG over HTTP so the output of
// the pad can be watched in a browser
type MJPEGRenderer struct {
	config  RenderConfig
	quality int
	running bool
	mu      sync.RWMutex

	frameMu    sync.RWMutex
	lastUpdate time.Time
	lastSize   image.Point

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGRenderer creates a new MJPEG stream renderer
func NewMJPEGRenderer(config RenderConfig) *MJPEGRenderer {
	return &MJPEGRenderer{
		config:  config,
		quality: 90,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start marks the renderer running. The HTTP handlers are mounted
// separately via StreamHandler.
func (m *MJPEGRenderer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG renderer already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Msg("MJPEG renderer started")
	return nil
}

// Stop disconnects all clients
func (m *MJPEGRenderer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().Uint64("frames", m.frameCount).Msg("MJPEG renderer stopped")
	return nil
}

// WriteFrame encodes a frame and sends it to all connected clients
func (m *MJPEGRenderer) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG renderer not running")
	}

	frame = fitFrame(frame, m.config.Width, m.config.Height)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastUpdate = time.Now()
	m.lastSize = frame.Bounds().Size()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// slow client, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the renderer name
func (m *MJPEGRenderer) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the renderer is active
func (m *MJPEGRenderer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Clients returns the number of connected stream clients
func (m *MJPEGRenderer) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// StreamHandler serves the multipart MJPEG stream
func (m *MJPEGRenderer) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Msg("Stream client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Stream client disconnected")
		}()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
					return
				}
				if _, err := w.Write(jpegData); err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}
}

// MJPEGStats is the JSON body served by StatsHandler
type MJPEGStats struct {
	Running    bool    `json:"running"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	Frames     uint64  `json:"frames"`
	Clients    int     `json:"clients"`
	LastUpdate string  `json:"last_update"`
	Uptime     string  `json:"uptime"`
}

// Stats returns a snapshot of the stream statistics
func (m *MJPEGRenderer) Stats() MJPEGStats {
	m.mu.RLock()
	running := m.running
	frameCount := m.frameCount
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	size := m.lastSize
	m.frameMu.RUnlock()

	st := MJPEGStats{
		Running:    running,
		Width:      size.X,
		Height:     size.Y,
		Frames:     frameCount,
		Clients:    m.Clients(),
		LastUpdate: "never",
		Uptime:     "n/a",
	}
	if running && !startTime.IsZero() {
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			st.FPS = float64(frameCount) / elapsed
		}
		st.Uptime = time.Since(startTime).Round(time.Second).String()
	}
	if !lastUpdate.IsZero() {
		st.LastUpdate = time.Since(lastUpdate).Round(time.Millisecond).String() + " ago"
	}
	return st
}

// StatsHandler serves stream statistics as JSON
func (m *MJPEGRenderer) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}

// ViewerHandler serves a minimal page showing the stream and pad status
func (m *MJPEGRenderer) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>vdpout</title>
    <style>
        body { margin: 0; background: #000; color: #ccc; font-family: monospace; }
        img { width: 100vw; height: 90vh; object-fit: contain; display: block; }
        pre { margin: 0; padding: 8px 16px; font-size: 12px; white-space: pre-wrap; }
    </style>
</head>
<body>
    <img src="/stream" alt="output stream">
    <pre id="status">connecting...</pre>
    <script>
        const status = document.getElementById('status');
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/pad/events');
        ws.onmessage = (msg) => {
            const ev = JSON.parse(msg.data);
            status.textContent = ev.type + ': ' + ev.status.mode + ' ' + ev.status.width + 'x' + ev.status.height + '\n' + (ev.status.contract || '');
        };
        ws.onclose = () => { status.textContent += '\n(disconnected)'; };
    </script>
</body>
</html>`
