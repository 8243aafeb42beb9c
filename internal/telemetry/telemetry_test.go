package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/s1natex/tasktracker/internal/config"
	"github.com/s1natex/tasktracker/internal/tasks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestStoreCollector(t *testing.T) {
	ctx := context.Background()
	store := tasks.NewMemoryStore()
	c, err := NewStoreCollector(store, discardLogger())
	require.NoError(t, err)
	store.Subscribe(c.Observe)

	a, err := store.Add(ctx, "a", "")
	require.NoError(t, err)
	_, err = store.Add(ctx, "b", "")
	require.NoError(t, err)
	_, err = store.Add(ctx, "c", "")
	require.NoError(t, err)
	require.NoError(t, store.Toggle(ctx, a.ID))

	expected := `
# HELP tasktracker_completion_rate_percent Rounded share of completed tasks.
# TYPE tasktracker_completion_rate_percent gauge
tasktracker_completion_rate_percent 33
# HELP tasktracker_recent_completion_rate_percent Rounded share of completed tasks within the recent window.
# TYPE tasktracker_recent_completion_rate_percent gauge
tasktracker_recent_completion_rate_percent 33
# HELP tasktracker_tasks Tasks currently held, by state.
# TYPE tasktracker_tasks gauge
tasktracker_tasks{state="completed"} 1
tasktracker_tasks{state="pending"} 2
`
	err = testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tasktracker_completion_rate_percent", "tasktracker_recent_completion_rate_percent", "tasktracker_tasks")
	assert.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.events.WithLabelValues(string(tasks.EventAdded))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(string(tasks.EventToggled))))
}

func TestNewStoreCollector_NilStore(t *testing.T) {
	_, err := NewStoreCollector(nil, nil)
	assert.ErrorIs(t, err, tasks.ErrNilStore)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	store := tasks.NewMemoryStore()
	store.Subscribe(LogObserver(slog.New(slog.NewJSONHandler(&buf, nil))))

	task, err := store.Add(context.Background(), "logged", "")
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "task_added", line["msg"])
	assert.Equal(t, task.ID, line["id"])
}

func TestTracedStore(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	s := NewTracedStore(tasks.NewMemoryStore())

	task, err := s.Add(ctx, "traced", "")
	require.NoError(t, err)
	require.NoError(t, s.Toggle(ctx, task.ID))
	_, err = s.List(ctx, tasks.FilterAll)
	require.NoError(t, err)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, task.ID))

	assert.Equal(t, 1, st.CompletedTasks)

	var names []string
	for _, span := range rec.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"tasks.Add", "tasks.Toggle", "tasks.List", "tasks.Stats", "tasks.Delete"}, names)
}

func TestSetupTracing(t *testing.T) {
	ctx := context.Background()

	shutdown, err := SetupTracing(ctx, config.TracingConfig{Exporter: config.ExporterNone}, io.Discard)
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))

	_, err = SetupTracing(ctx, config.TracingConfig{Exporter: "zipkin"}, io.Discard)
	assert.Error(t, err)

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err = SetupTracing(ctx, config.TracingConfig{
		Exporter:    config.ExporterStdout,
		ServiceName: "tasktracker-test",
	}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "exported")
	span.End()
	require.NoError(t, shutdown(ctx))

	assert.Contains(t, buf.String(), `"Name":"exported"`)
}
