package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/s1natex/tasktracker/internal/config"
	"github.com/s1natex/tasktracker/internal/tasks"
)

func newTestRouter(t *testing.T, store sessionStore) http.Handler {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	r, err := newRouter(store, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, tasks.NewMemoryStore())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	expected := `{"status":"ok"}`
	if got := strings.TrimSpace(w.Body.String()); got != expected {
		t.Errorf("expected body %s, got %s", expected, got)
	}
}

func TestNewRouter_NilStore(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	_, err = newRouter(nil, cfg, slog.Default(), prometheus.NewRegistry())
	if !errors.Is(err, tasks.ErrNilStore) {
		t.Fatalf("expected ErrNilStore, got %v", err)
	}
}

func TestRouter_AddThenStats(t *testing.T) {
	r := newTestRouter(t, tasks.NewMemoryStore())

	for _, title := range []string{"one", "two", "three"} {
		body := strings.NewReader(`{"title":"` + title + `"}`)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", body))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	var list []tasks.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 3 || list[0].Title != "three" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/"+list[2].ID+"/toggle", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var st tasks.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.TotalTasks != 3 || st.CompletedTasks != 1 || st.PendingTasks != 2 || st.CompletionRate != 33 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg, err := config.Load("")
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			cfg.Store.Driver = driver

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			defer closeStore()

			if _, err := store.Add(ctx, "hello", ""); err != nil {
				t.Fatalf("add: %v", err)
			}
			st, err := store.Stats(ctx)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if st.TotalTasks != 1 {
				t.Fatalf("expected 1 task, got %d", st.TotalTasks)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Fatalf("expected %q, got %q", version, got)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("WARN", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should be logged")
	}
}

// tracingShutDown reports whether the global tracer provider has been shut
// down: a stopped sdk provider hands out non-recording spans.
func tracingShutDown(t *testing.T) bool {
	t.Helper()
	_, span := otel.Tracer("test").Start(context.Background(), "after-serve")
	defer span.End()
	return !span.IsRecording()
}

func TestServe_ListenFailureReleasesResources(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer busy.Close()

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.HTTP.Addr = busy.Addr().String()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Tracing.Exporter = config.ExporterStdout

	err = serve(context.Background(), cfg, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "listen on") {
		t.Fatalf("expected a listen error, got %v", err)
	}
	if !tracingShutDown(t) {
		t.Fatalf("tracer provider should be shut down after a listen failure")
	}
}

func TestServe_StoreFailureShutsDownTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Store.Driver = "bogus"
	cfg.Tracing.Exporter = config.ExporterStdout

	err = serve(context.Background(), cfg, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown store driver") {
		t.Fatalf("expected a store error, got %v", err)
	}
	if !tracingShutDown(t) {
		t.Fatalf("tracer provider should be shut down when the store cannot open")
	}
}
