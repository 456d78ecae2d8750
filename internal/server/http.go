package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/librus_mcp/internal/middleware"
	"github.com/lewisedginton/librus_mcp/pkg/httpmiddleware"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/unrolled/secure"
)

// mcpRouter serves the streamable MCP transport behind the middleware stack.
func (s *Server) mcpRouter() http.Handler {
	router := chi.NewRouter()

	cors := httpmiddleware.DefaultCORSConfig()
	if len(s.cfg.Security.CORSAllowedOrigins) > 0 {
		cors.AllowedOrigins = s.cfg.Security.CORSAllowedOrigins
	}
	mw := httpmiddleware.DefaultConfig()
	mw.Logger = s.log
	mw.EnableLogging = true
	mw.Streaming = true
	// replaced by the JSON-RPC aware recovery below
	mw.EnableRecovery = false
	mw.CORS = &cors
	mw.Security = &secure.Options{
		AllowedHosts:       s.cfg.Security.AllowedHosts,
		FrameDeny:          true,
		ContentTypeNosniff: true,
	}
	httpmiddleware.ApplyToRouter(router, mw)
	router.Use(middleware.Recovery(middleware.DefaultRecoveryConfig(s.log)))
	router.Use(s.metrics.HTTPMiddleware())

	handler := s.mcp.HTTPHandler()
	if s.cfg.Security.MaxRequestSize > 0 {
		handler = http.MaxBytesHandler(handler, s.cfg.Security.MaxRequestSize)
	}
	router.Handle(s.cfg.MCP.Path, handler)
	return router
}

func (s *Server) mcpServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:           s.mcpRouter(),
		ReadTimeout:       s.cfg.HTTP.ReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		// streamed responses stay open, so no WriteTimeout here
		IdleTimeout:    s.cfg.HTTP.IdleTimeout(),
		MaxHeaderBytes: s.cfg.HTTP.MaxHeaderBytes,
	}
}

func (s *Server) healthServer() *http.Server {
	router := chi.NewRouter()
	s.health.Mount(router, s.cfg.Health.LivenessPath, s.cfg.Health.ReadinessPath)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Health.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveHTTP runs srv until ctx ends. The returned channel carries a listen
// failure and is closed once the server stopped.
func (s *Server) serveHTTP(ctx context.Context, name string, srv *http.Server) <-chan error {
	errc := make(chan error, 1)
	log := s.log.WithFields(logger.StringField("listener", name))

	go func() {
		defer close(errc)
		log.Info("HTTP server listening", logger.StringField("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("%s server: %w", name, err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout) //nolint:contextcheck // New context needed for shutdown
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // Using new context for graceful shutdown
			log.Error("HTTP server shutdown error", logger.ErrorField(err))
			return
		}
		log.Info("HTTP server stopped")
	}()
	return errc
}

// serveStdio always sends the transport's result, nil when the client disconnected.
func (s *Server) serveStdio(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		err := s.mcp.RunStdio(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			errc <- fmt.Errorf("stdio transport: %w", err)
			return
		}
		errc <- nil
	}()
	return errc
}
