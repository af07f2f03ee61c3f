// Package server exposes the sync engine over HTTP.
//
// Routes:
//   - GET  /data    full snapshot of tasks and dependencies
//   - POST /api     apply a change batch, returns the reconciliation payload
//   - GET  /ws      websocket change feed (when broadcasting is enabled)
//   - GET  /health  liveness and connected client count
//
// /data and /api always answer 200 with an in-band success flag.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	gsync "github.com/acme/ganttsync/internal/sync"
)

// Processor applies change batches.
type Processor interface {
	Process(ctx context.Context, b *gsync.Batch) *gsync.Result
}

// Loader serves full snapshots.
type Loader interface {
	Load(ctx context.Context) *gsync.LoadResponse
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default ":8010"). Use ":0" for an ephemeral port.
	Addr string

	// AllowedOrigin is the single browser origin admitted by CORS, or "*".
	AllowedOrigin string

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxBodyBytes caps the size of a change batch.
	MaxBodyBytes int64

	// Broadcast enables the /ws change feed.
	Broadcast     bool
	BroadcastRate int

	// Logger for server activity. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:          ":8010",
		AllowedOrigin: "https://localhost:53000",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
		MaxBodyBytes:  1 << 20,
		Broadcast:     true,
		BroadcastRate: 20,
	}
}

// Server serves the sync endpoints.
type Server struct {
	config    Config
	processor Processor
	loader    Loader
	hub       *Hub
	router    *mux.Router
	logger    zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// New creates a server. Start must be called to begin listening; Handler
// may be used directly for tests.
func New(config *Config, processor Processor, loader Loader) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{
		config:    *config,
		processor: processor,
		loader:    loader,
		logger:    zerolog.Nop(),
	}
	if s.config.MaxBodyBytes <= 0 {
		s.config.MaxBodyBytes = 1 << 20
	}
	if config.Logger != nil {
		s.logger = config.Logger.With().Str("component", "server").Logger()
	}
	if s.config.Broadcast {
		s.hub = NewHub(s.config.BroadcastRate, wsOrigins(s.config.AllowedOrigin), s.logger.With().Str("component", "hub").Logger())
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/data", s.handleData).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api", s.handleAPI).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.hub != nil {
		r.Handle("/ws", s.hub).Methods(http.MethodGet)
	}

	r.Use(logMiddleware(s.logger))
	r.Use(mux.CORSMethodMiddleware(r))
	r.Use(corsMiddleware(s.config.AllowedOrigin))
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the change feed, or nil when broadcasting is disabled.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening. It returns once the listener is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	if s.hub != nil {
		s.hub.Start()
	}

	tls := s.config.TLSCert != "" && s.config.TLSKey != ""
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Str("addr", ln.Addr().String()).Bool("tls", tls).Msg("listening")

		var err error
		if tls {
			err = s.server.ServeTLS(ln, s.config.TLSCert, s.config.TLSKey)
		} else {
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if s.hub != nil {
		s.hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()

	s.logger.Info().Msg("server stopped")
	return nil
}

// Addr returns the bound listen address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// wsOrigins converts the CORS origin into websocket host patterns.
func wsOrigins(origin string) []string {
	if origin == "" {
		return nil
	}
	if origin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return []string{origin}
	}
	return []string{u.Host}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
