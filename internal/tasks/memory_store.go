package tasks

import (
	"context"
	"sync"
)

// MemoryStore keeps the sequence in process memory for the lifetime of the session.
type MemoryStore struct {
	notifier

	mu    sync.Mutex
	opts  options
	tasks []Task
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:  buildOptions(opts),
		tasks: []Task{},
	}
}

func (s *MemoryStore) Add(_ context.Context, title, description string) (Task, error) {
	s.mu.Lock()
	t := s.opts.newTask(title, description)
	s.tasks = append([]Task{t}, s.tasks...)
	s.mu.Unlock()

	s.notify(Event{Kind: EventAdded, Task: t})
	return t, nil
}

func (s *MemoryStore) Toggle(_ context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.tasks[i].Completed = !s.tasks[i].Completed
	t := s.tasks[i]
	s.mu.Unlock()

	s.notify(Event{Kind: EventToggled, Task: t})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	t := s.tasks[i]
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.mu.Unlock()

	s.notify(Event{Kind: EventDeleted, Task: t})
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return applyFilter(s.tasks, f), nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ComputeStats(s.tasks, s.opts.now(), s.opts.window), nil
}

func (s *MemoryStore) indexOf(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
