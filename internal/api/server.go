package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/config"
	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/bryanchriswhite/vdpout/internal/sink"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// PadView is the read-only side of an output pad the API exposes
type PadView interface {
	Status() outputpad.Status
	Template() *caps.Caps
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	pad       PadView
	sink      *sink.Sink
	mjpeg     *sink.MJPEGRenderer
	configMgr *config.Manager
	hub       *Hub
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server. mjpeg may be nil when the sink does
// not stream over HTTP.
func NewServer(pad PadView, snk *sink.Sink, mjpeg *sink.MJPEGRenderer, configMgr *config.Manager, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{
		router:    mux.NewRouter(),
		pad:       pad,
		sink:      snk,
		mjpeg:     mjpeg,
		configMgr: configMgr,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Pad state
	api.HandleFunc("/pad", s.handlePadStatus).Methods("GET")
	api.HandleFunc("/pad/caps", s.handlePadCaps).Methods("GET")
	api.HandleFunc("/pad/events", s.handlePadEvents)

	// Sink
	api.HandleFunc("/sink/stats", s.handleSinkStats).Methods("GET")
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.mjpeg != nil {
		s.router.HandleFunc("/stream", s.mjpeg.StreamHandler())
		s.router.HandleFunc("/stats", s.mjpeg.StatsHandler()).Methods("GET")
		s.router.HandleFunc("/", s.mjpeg.ViewerHandler()).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithComponent("api").Warn().Err(err).Msg("Server shutdown")
		}
	}()

	logger.WithComponent("api").Info().
		Str("addr", srv.Addr).
		Msgf("Starting server on http://localhost%s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

// HTTP Handlers

func (s *Server) handlePadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pad.Status())
}

func (s *Server) handlePadCaps(w http.ResponseWriter, r *http.Request) {
	st := s.pad.Status()
	writeJSON(w, map[string]string{
		"template": s.pad.Template().String(),
		"caps":     st.Caps,
		"contract": st.Contract,
		"upstream": st.Upstream,
	})
}

func (s *Server) handlePadEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)
	log := logger.WithComponent("api").With().Str("session", id).Logger()
	log.Debug().Msg("Event subscriber connected")

	// The client never sends; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current state first
	initial := outputpad.Event{Type: "status", Pad: s.pad.Status().Name, Status: s.pad.Status(), Time: time.Now()}
	if err := conn.WriteJSON(initial); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			log.Debug().Msg("Event subscriber disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleSinkStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sink.Stats())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.sink.Snapshot(r.URL.Query().Get("format"))
	switch {
	case errors.Is(err, sink.ErrNoFrame):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.configMgr.Get())
}

// handleUpdateConfig persists a new configuration; it takes effect on the
// next start
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := config.Defaults()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":      "healthy",
		"version":     Version,
		"active":      s.pad.Status().Active,
		"subscribers": s.hub.Subscribers(),
	})
}
