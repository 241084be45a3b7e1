package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/bryanchriswhite/CloakStreamer/internal/output"
	"github.com/bryanchriswhite/CloakStreamer/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Version is reported by the health endpoint
var Version = "0.1.0"

// Controller is the part of the session controller the API drives
type Controller interface {
	Start() (bool, error)
	Stop() (bool, error)
	CaptureBackground(ctx context.Context) error
	Status() session.Status
	Subscribe() <-chan session.Status
	Unsubscribe(ch <-chan session.Status)
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	ctrl       Controller
	stream     *output.Publisher
	configMgr  *config.Manager
	upgrader   websocket.Upgrader
	httpServer *http.Server
	log        *zerolog.Logger
}

// Response is the body of every control endpoint
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(ctrl Controller, stream *output.Publisher, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		ctrl:      ctrl,
		stream:    stream,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Same policy as CORS below
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()

	// Request contexts are cancelled on shutdown so open streams end
	baseCtx, cancel := context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	s.httpServer.RegisterOnShutdown(cancel)
	return s
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	// Camera control
	s.router.HandleFunc("/start_camera", s.handleStartCamera).Methods("POST")
	s.router.HandleFunc("/stop_camera", s.handleStopCamera).Methods("POST")
	s.router.HandleFunc("/capture_background", s.handleCaptureBackground).Methods("POST")

	// Stream
	s.router.Handle("/video_feed", s.stream).Methods("GET")
	s.router.HandleFunc("/", output.ViewerHandler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/session/events", s.handleSessionEvents)
	api.HandleFunc("/stream/stats", s.handleStreamStats).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	s.log.Info().Str("addr", addr).Msgf("Starting server on http://%s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, ends open streams and waits for
// handlers until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func success(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: message})
}

func failure(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Response{Status: "error", Message: message})
}

// HTTP Handlers

func (s *Server) handleStartCamera(w http.ResponseWriter, r *http.Request) {
	started, err := s.ctrl.Start()
	switch {
	case err != nil:
		s.log.Error().Err(err).Msg("Start camera failed")
		failure(w, http.StatusInternalServerError, "Failed to open camera: "+err.Error())
	case started:
		success(w, "Camera started")
	default:
		success(w, "Camera already running")
	}
}

func (s *Server) handleStopCamera(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.ctrl.Stop()
	switch {
	case err != nil:
		s.log.Error().Err(err).Msg("Stop camera failed")
		failure(w, http.StatusInternalServerError, "Camera thread did not stop cleanly. Manual check may be required.")
	case stopped:
		success(w, "Camera stopped and resources released")
	default:
		success(w, "Camera already stopped")
	}
}

func (s *Server) handleCaptureBackground(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.CaptureBackground(r.Context())
	switch {
	case err == nil:
		success(w, "Background captured")
	case errors.Is(err, session.ErrNotRunning):
		failure(w, http.StatusBadRequest, "Camera not running or not initialized. Start camera first.")
	case errors.Is(err, session.ErrNoFrame):
		failure(w, http.StatusInternalServerError, "Failed to capture background (no raw frame)")
	default:
		s.log.Warn().Err(err).Msg("Capture background failed")
		failure(w, http.StatusInternalServerError, "Failed to capture background: "+err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.ctrl.Subscribe()
	defer s.ctrl.Unsubscribe(updates)

	// Notice client disconnects; incoming messages are ignored
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send initial status
	if err := conn.WriteJSON(s.ctrl.Status()); err != nil {
		s.log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stream.Stats())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		failure(w, http.StatusNotFound, "no configuration loaded")
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
