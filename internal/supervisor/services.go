package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer is the subset of *http.Server the service needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server as a suture service with graceful
// shutdown on context cancellation.
type HTTPService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

// NewHTTPService wraps srv. addr is used for logging only.
func NewHTTPService(srv HTTPServer, addr string, shutdownTimeout time.Duration, logger zerolog.Logger) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{
		server:          srv,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Serve runs the server until ctx is cancelled or ListenAndServe fails.
// Shutdown gets its own timeout context since ctx is already done.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("http server shutdown")
			return err
		}
		s.logger.Info().Msg("http server stopped")
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }

// ModelReloader picks up newer model artifacts from storage. The bool
// reports whether a newer version was swapped in.
type ModelReloader interface {
	Reload() (bool, error)
}

// ModelReloadService polls the artifact store for newer CF models.
type ModelReloadService struct {
	reloader ModelReloader
	interval time.Duration
	logger   zerolog.Logger
}

// NewModelReloadService builds the polling service. A zero or negative
// interval disables polling; Serve then just waits for cancellation.
func NewModelReloadService(r ModelReloader, interval time.Duration, logger zerolog.Logger) *ModelReloadService {
	return &ModelReloadService{reloader: r, interval: interval, logger: logger}
}

// Serve polls until ctx is cancelled. Reload failures are logged and
// retried on the next tick; the last good model stays active.
func (s *ModelReloadService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			swapped, err := s.reloader.Reload()
			if err != nil {
				s.logger.Warn().Err(err).Msg("model reload failed")
				continue
			}
			if swapped {
				s.logger.Info().Msg("model reloaded")
			}
		}
	}
}

func (s *ModelReloadService) String() string { return "model-reload" }
