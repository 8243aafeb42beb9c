package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/s1natex/tasktracker/internal/tasks"
)

// LogObserver logs each store change as a task_<kind> event.
func LogObserver(logger *slog.Logger) tasks.Observer {
	return func(e tasks.Event) {
		logger.Info("task_"+string(e.Kind),
			slog.String("id", e.Task.ID),
			slog.Bool("completed", e.Task.Completed),
		)
	}
}

// TracedStore wraps a Store with one span per operation.
type TracedStore struct {
	next   tasks.Store
	tracer trace.Tracer
}

func NewTracedStore(next tasks.Store) *TracedStore {
	return &TracedStore{next: next, tracer: otel.Tracer("tasktracker/tasks")}
}

func (s *TracedStore) Add(ctx context.Context, title, description string) (tasks.Task, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.Add")
	defer span.End()

	t, err := s.next.Add(ctx, title, description)
	span.SetAttributes(attribute.String("task.id", t.ID))
	record(span, err)
	return t, err
}

func (s *TracedStore) Toggle(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "tasks.Toggle", trace.WithAttributes(attribute.String("task.id", id)))
	defer span.End()

	err := s.next.Toggle(ctx, id)
	record(span, err)
	return err
}

func (s *TracedStore) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "tasks.Delete", trace.WithAttributes(attribute.String("task.id", id)))
	defer span.End()

	err := s.next.Delete(ctx, id)
	record(span, err)
	return err
}

func (s *TracedStore) List(ctx context.Context, f tasks.Filter) ([]tasks.Task, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.List", trace.WithAttributes(attribute.String("tasks.filter", string(f))))
	defer span.End()

	out, err := s.next.List(ctx, f)
	span.SetAttributes(attribute.Int("tasks.count", len(out)))
	record(span, err)
	return out, err
}

func (s *TracedStore) Stats(ctx context.Context) (tasks.Stats, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.Stats")
	defer span.End()

	st, err := s.next.Stats(ctx)
	span.SetAttributes(
		attribute.Int("tasks.total", st.TotalTasks),
		attribute.Int("tasks.completed", st.CompletedTasks),
	)
	record(span, err)
	return st, err
}

func record(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
