package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/s1natex/tasktracker/internal/config"
	"github.com/s1natex/tasktracker/internal/middleware"
	"github.com/s1natex/tasktracker/internal/tasks"
	"github.com/s1natex/tasktracker/internal/telemetry"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		addr     string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "tasktracker",
		Short:         "Personal task tracker with completion statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = strings.ToLower(logLevel)
			}
			return serve(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")
	root.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	root.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

// serve runs the HTTP server until a shutdown signal or a serve error. Logs
// and stdout-exported spans go to out.
func serve(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.Log.Level, out)
	slog.SetDefault(logger) // for third-party packages that use slog

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, out)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return errors.Join(err, shutdownTracing(ctx))
	}
	// release flushes spans and closes the store; every exit path after this point calls it.
	release := func(ctx context.Context) error {
		return errors.Join(closeStore(), shutdownTracing(ctx))
	}

	r, err := newRouter(store, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return errors.Join(err, release(ctx))
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return errors.Join(fmt.Errorf("listen on %s: %w", cfg.HTTP.Addr, err), release(ctx))
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", ln.Addr().String()), slog.String("store", cfg.Store.Driver))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.HTTP.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			logger.Info("server_shutdown")
			return errors.Join(srv.Shutdown(ctx), release(ctx))
		},
	})

	select {
	case code := <-wait:
		if code != 0 {
			return fmt.Errorf("shutdown finished with exit code %d", code)
		}
		return nil
	case err := <-serveErr:
		logger.Error("server_error", slog.String("error", err.Error()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, release(shutdownCtx))
	}
}

// sessionStore is what the router needs: the store operations plus change events.
type sessionStore interface {
	tasks.Store
	tasks.Subscriber
}

// openStore creates the single store for this process session.
func openStore(ctx context.Context, cfg *config.Config) (sessionStore, func() error, error) {
	opts := []tasks.Option{tasks.WithRecentWindow(cfg.Stats.RecentWindow)}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		return tasks.NewMemoryStore(opts...), func() error { return nil }, nil
	case config.DriverSQLite:
		s, err := tasks.NewSQLiteStore(ctx, cfg.Store.DSN, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newRouter wires the health endpoint, metrics, task surfaces, and middleware stack
func newRouter(store sessionStore, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*chi.Mux, error) {
	if store == nil {
		return nil, tasks.ErrNilStore
	}

	collector, err := telemetry.NewStoreCollector(store, logger)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(collector); err != nil {
		return nil, fmt.Errorf("register store metrics: %w", err)
	}
	store.Subscribe(collector.Observe)
	store.Subscribe(telemetry.LogObserver(logger))

	r := chi.NewRouter()

	// ---- Middleware stack (order matters a bit) ----
	// RequestID first so downstream can include it (logger, errors, etc.)
	r.Use(chimw.RequestID)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(cfg.HTTP.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Trace-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RateLimitMiddleware(
		middleware.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		http.MethodPost, http.MethodDelete,
	))

	// ---- Routes ----

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	if err := tasks.RegisterRoutes(r, telemetry.NewTracedStore(store), logger); err != nil {
		return nil, err
	}

	return r, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: l,
	})
	return slog.New(handler)
}
