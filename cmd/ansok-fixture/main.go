// Command ansok-fixture runs a local stand-in for the remote review service.
// It serves the same wire contract the console's client consumes, backed by a
// sqlite file, so the console can run without network access to the real
// service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/ansok/internal/adapters/fixture"
	"github.com/hylla/ansok/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

const shutdownTimeout = 5 * time.Second

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("ansok-fixture", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		addr    string
		dbPath  string
		seed    bool
		showVer bool
	)
	fs.StringVar(&addr, "addr", "127.0.0.1:8090", "listen address")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database (defaults to the app data dir)")
	fs.BoolVar(&seed, "seed", true, "seed demo submissions when the database is empty")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "ansok-fixture %s\n", version)
		return nil
	}

	logger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           charmLog.InfoLevel,
		Prefix:          "ansok-fixture",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})

	if strings.TrimSpace(dbPath) == "" {
		paths, err := platform.DefaultPaths()
		if err != nil {
			return fmt.Errorf("resolve default paths: %w", err)
		}
		dbPath = paths.DBPath
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	logger.Info("opening fixture database", "db_path", dbPath)
	db, err := fixture.Open(dbPath)
	if err != nil {
		logger.Error("fixture database open failed", "db_path", dbPath, "err", err)
		return fmt.Errorf("open fixture database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("fixture database close failed", "err", closeErr)
		}
	}()

	if seed {
		if err := fixture.Seed(db, time.Now()); err != nil {
			logger.Error("fixture seed failed", "err", err)
			return fmt.Errorf("seed fixture database: %w", err)
		}
		logger.Info("fixture database seeded")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", fixture.NewHandler(db, nil)))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("fixture api listening", "addr", addr, "base_url", "http://"+addr+"/api")
		serveErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down fixture api")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown fixture api: %w", err)
		}
		if err := <-serveErrCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve after shutdown: %w", err)
		}
		return nil
	}
}
