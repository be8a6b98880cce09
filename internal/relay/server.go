package relay

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ServerOptions configures the relay HTTP surface.
type ServerOptions struct {
	// AllowedOrigins restricts browser clients. Empty or "*" allows all.
	AllowedOrigins  []string
	MaxMessageBytes int64
	Logger          zerolog.Logger
}

// Server upgrades HTTP requests to relay connections.
type Server struct {
	hub             *Hub
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	logger          zerolog.Logger
}

// NewServer creates a server feeding hub.
func NewServer(hub *Hub, opts ServerOptions) *Server {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 * 1024
	}
	return &Server{
		hub:             hub,
		upgrader:        makeUpgrader(opts.AllowedOrigins),
		maxMessageBytes: opts.MaxMessageBytes,
		logger:          opts.Logger,
	}
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// Router returns the relay's HTTP routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/", s.ServeWS)
	r.Get("/ws", s.ServeWS)
	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ServeWS upgrades the request and runs the connection until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("relay websocket upgrade failed")
		return
	}

	c := newConn(s.hub, ws, s.logger)
	if !s.hub.Register(c) {
		_ = ws.Close()
		return
	}
	c.logger.Info().Str("remote", r.RemoteAddr).Msg("relay client connected")

	go c.writeLoop()
	c.readLoop(s.maxMessageBytes)
	c.logger.Info().Msg("relay client disconnected")
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
	Stats
}

// Health reports hub counters.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		OK:     true,
		Status: "healthy",
		Stats:  s.hub.Stats(),
	})
}
