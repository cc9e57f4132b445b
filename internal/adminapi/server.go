// Package adminapi provides the optional read-only admin/status REST
// surface for netio: health and Transceiver/host statistics over
// gin-gonic, documented with swaggo/swag. It is a genuinely optional
// side-channel — the Transceiver itself has no HTTP dependency, and this
// package only ever reads a statistics snapshot the Transceiver already
// exposes.
package adminapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wavecast/netio/internal/adminapi/handlers"
	"github.com/wavecast/netio/internal/adminapi/middleware"
)

// Server is the admin REST API server.
//
// Security note: do not expose this to untrusted networks without an API
// key; it defaults to binding 127.0.0.1 (see internal/config's admin
// defaults).
type Server struct {
	logger     *slog.Logger
	handler    *handlers.Handler
	engine     *gin.Engine
	httpServer *http.Server
}

// New constructs a Server bound to host:port. apiKey protects every
// endpoint under /api/v1 when non-empty.
func New(host string, port int, apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(logger)
	RegisterRoutes(engine, h, apiKey)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, handler: h, engine: engine, httpServer: httpServer}
}

// Handler returns the server's handler, for wiring SetStatsFunc once the
// Transceiver it reports on has been constructed.
func (s *Server) Handler() *handlers.Handler {
	return s.handler
}

// Addr returns the server's bind address.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Engine returns the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe blocks serving the admin API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
