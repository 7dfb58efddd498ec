// Package api exposes device management and power actions over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fgeck/landalf/internal/models"
	"github.com/fgeck/landalf/internal/services/devices"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// BasePath is the prefix of every device route.
const BasePath = "/api/v1/pc-devices"

// Server serves the device API.
type Server struct {
	devices     devices.Service
	cfg         models.ServerConfig
	logger      zerolog.Logger
	handler     http.Handler
	shutdownMax time.Duration
}

// NewServer creates a new API server.
func NewServer(logger zerolog.Logger, svc devices.Service, cfg models.ServerConfig) *Server {
	s := &Server{
		devices:     svc,
		cfg:         cfg,
		logger:      logger,
		shutdownMax: 10 * time.Second,
	}
	s.handler = logRequests(logger, s.routes())
	return s
}

func (s *Server) routes() *httprouter.Router {
	router := httprouter.New()

	router.GET(BasePath+"/", s.listDevices)
	router.GET(BasePath+"/:id", s.getDevice)
	// httprouter cannot mix a static "add" segment with the :id wildcard,
	// so both POST shapes dispatch on the captured segment.
	router.POST(BasePath+"/:id", s.postDevice)
	router.POST(BasePath+"/:id/:action", s.postDeviceAction)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, fmt.Sprintf("%s is not allowed on %s", r.Method, r.URL.Path))
	})
	router.PanicHandler = recoverPanics(s.logger)

	return router
}

// Handler returns the HTTP handler including request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on l until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	s.logger.Info().Str("addr", l.Addr().String()).Msg("API server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownMax)
	defer cancel()

	s.logger.Info().Msg("shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, l)
}
