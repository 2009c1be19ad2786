package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/arkilian/csvreduce/internal/observability"
	"github.com/arkilian/csvreduce/internal/query"
	"github.com/arkilian/csvreduce/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Options configures a Server.
type Options struct {
	// Defaults are the execution options applied before per-request overrides
	Defaults query.Options

	// PoolSize sizes pool dispatchers requested per query
	PoolSize int

	// Stats receives one record per query (nil = a private tracker)
	Stats *observability.QueryStats

	// Shutdown, when set, gates requests during graceful shutdown
	Shutdown *server.ShutdownManager

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger zerolog.Logger
}

// Server serves queries against one analyzer.
type Server struct {
	Echo *echo.Echo

	runner   query.Runner
	defaults query.Options
	poolSize int
	stats    *observability.QueryStats
	logger   zerolog.Logger
}

// NewServer builds the echo instance and registers the routes.
func NewServer(runner query.Runner, opts Options) *Server {
	stats := opts.Stats
	if stats == nil {
		stats = observability.NewQueryStats(time.Hour)
	}

	s := &Server{
		Echo:     echo.New(),
		runner:   runner,
		defaults: opts.Defaults,
		poolSize: opts.PoolSize,
		stats:    stats,
		logger:   opts.Logger,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Validator = NewValidator()
	s.Echo.HTTPErrorHandler = ErrorHandler
	s.Echo.Server.ReadTimeout = opts.ReadTimeout
	s.Echo.Server.WriteTimeout = opts.WriteTimeout
	s.Echo.Server.IdleTimeout = opts.IdleTimeout

	s.Echo.Use(CreateReqContext(opts.Logger))
	s.Echo.Use(LoggerMiddleware)
	s.Echo.Use(RecoveryMiddleware)

	s.Echo.GET("/health", s.handleHealth)

	v1 := s.Echo.Group("/v1")
	if opts.Shutdown != nil {
		v1.Use(ShutdownMiddleware(opts.Shutdown))
	}
	v1.POST("/query", s.handleQuery)
	v1.GET("/table", s.handleTable)
	v1.GET("/stats", s.handleStats)

	return s
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.Echo.Listener = listener

	go func() {
		s.logger.Info().Str("addr", listener.Addr().String()).Msg("starting query server")
		if err := s.Echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("query server stopped")
		}
	}()
	return listener.Addr(), nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// Stats returns the per-kind query statistics tracker.
func (s *Server) Stats() *observability.QueryStats {
	return s.stats
}
