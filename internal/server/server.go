package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/christopherjohns/parley/internal/registry"
	"github.com/christopherjohns/parley/internal/signaling"
)

// Server is the HTTP surface of the coordinator: room creation and listing,
// the WebSocket upgrade path, health, metrics, and the static single-page
// client. All room state lives behind the signaling hub; the handlers here
// are thin wrappers over its request channels.
type Server struct {
	addr       string
	router     chi.Router
	hub        *signaling.Hub
	staticDir  string
	gatherer   prometheus.Gatherer
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStaticDir sets the directory the single-page client is served from.
// Unknown paths fall back to its index.html so client-side routing works.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithGatherer sets the Prometheus gatherer backing /metrics.
// Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a new Server listening on addr, dispatching into hub.
func New(addr string, hub *signaling.Hub, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		router:   chi.NewRouter(),
		hub:      hub,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.router}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP makes the Server usable directly as an http.Handler in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/create-room", s.handleCreateRoom)
	s.router.Get("/rooms", s.handleListRooms)
	s.router.Method(http.MethodGet, "/ws", signaling.NewHandler(s.hub))
	s.router.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.NotFound(s.handleStatic)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleCreateRoom creates an empty room and returns its id as plain text.
// Creating through the hub means every connected session sees the new-room
// broadcast, the same as a room created implicitly by a join.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room := s.hub.CreateRoom()
	if room == nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(room.ID))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.hub.Rooms()
	if rooms == nil {
		rooms = []*registry.Room{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rooms)
}

// handleStatic serves the single-page client. Paths that do not map to a
// file fall back to index.html so the client router can handle them.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.staticDir == "" {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.staticDir, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		http.ServeFile(w, r, path)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
}
