package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// defaultBindAddress defines the localhost-first serve default.
const defaultBindAddress = "127.0.0.1:8091"

// defaultShutdownTimeout bounds graceful shutdown time once context
// cancellation starts.
const defaultShutdownTimeout = 5 * time.Second

// ServeConfig defines serve-mode endpoint configuration.
type ServeConfig struct {
	Bind string
}

// NewMux composes one root handler containing health endpoints and the MCP
// surface.
func NewMux(cfg Config, reader QueueReader) (http.Handler, error) {
	cfg = normalizeConfig(cfg)
	mcpHandler, err := NewHandler(cfg, reader)
	if err != nil {
		return nil, fmt.Errorf("configure mcp handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", writeHealthStatus)
	mux.HandleFunc("/readyz", writeHealthStatus)
	mux.Handle(cfg.EndpointPath, mcpHandler)
	return mux, nil
}

// Run starts the composed HTTP server and blocks until shutdown or startup
// failure.
func Run(ctx context.Context, serveCfg ServeConfig, cfg Config, reader QueueReader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	bind := strings.TrimSpace(serveCfg.Bind)
	if bind == "" {
		bind = defaultBindAddress
	}

	handler, err := NewMux(cfg, reader)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	httpServer := &http.Server{
		Addr:    bind,
		Handler: handler,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		serveErr := <-serveErrCh
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) {
			return fmt.Errorf("shutdown server: %w", shutdownErr)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve after shutdown: %w", serveErr)
		}
		return nil
	}
}

// writeHealthStatus responds with a deterministic readiness payload.
func writeHealthStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
