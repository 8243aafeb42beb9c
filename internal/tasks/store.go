package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNilStore is returned when a consumer is built without a store.
var ErrNilStore = errors.New("tasks: store is required")

// Store owns the ordered task sequence, newest first. Toggle and Delete on an
// unknown id are no-ops and return nil. Title validation is the caller's job.
type Store interface {
	Add(ctx context.Context, title, description string) (Task, error)
	Toggle(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Task, error)
	Stats(ctx context.Context) (Stats, error)
}

type EventKind string

const (
	EventAdded   EventKind = "added"
	EventToggled EventKind = "toggled"
	EventDeleted EventKind = "deleted"
)

// Event describes one change to the sequence. Task holds the state after the
// change, or the removed task for EventDeleted.
type Event struct {
	Kind EventKind
	Task Task
}

type Observer func(Event)

// Subscriber is implemented by stores that publish change events.
type Subscriber interface {
	Subscribe(o Observer) (unsubscribe func())
}

type notifier struct {
	mu   sync.Mutex
	next int
	obs  map[int]Observer
}

func (n *notifier) Subscribe(o Observer) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.obs == nil {
		n.obs = make(map[int]Observer)
	}
	key := n.next
	n.next++
	n.obs[key] = o

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.obs, key)
	}
}

// notify must be called without the store lock held so observers may read the store.
func (n *notifier) notify(e Event) {
	n.mu.Lock()
	obs := make([]Observer, 0, len(n.obs))
	for _, o := range n.obs {
		obs = append(obs, o)
	}
	n.mu.Unlock()

	for _, o := range obs {
		o(e)
	}
}

type options struct {
	now    func() time.Time
	newID  func() string
	window time.Duration
}

type Option func(*options)

// WithClock overrides the time source used for CreatedAt and the recent window.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides how task ids are minted. Generated ids must be unique.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// WithRecentWindow changes the trailing window used by Stats. Non-positive values are ignored.
func WithRecentWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newID,
		window: RecentWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newID returns a time-ordered UUIDv7, falling back to a random v4.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (o options) newTask(title, description string) Task {
	return Task{
		ID:          o.newID(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Completed:   false,
		CreatedAt:   o.now(),
	}
}
