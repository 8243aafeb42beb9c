package tasks

import (
	"fmt"
	"strings"
	"time"
)

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats is derived from the task sequence on every read and never cached.
type Stats struct {
	TotalTasks           int    `json:"total_tasks"`
	CompletedTasks       int    `json:"completed_tasks"`
	PendingTasks         int    `json:"pending_tasks"`
	CompletionRate       int    `json:"completion_rate"`
	RecentTasks          []Task `json:"recent_tasks"`
	RecentCompleted      int    `json:"recent_completed"`
	RecentCompletionRate int    `json:"recent_completion_rate"`
}

// Filter selects tasks by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterCompleted Filter = "completed"
	FilterPending   Filter = "pending"
)

// ParseFilter maps a query value to a Filter. The empty string means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterCompleted, FilterPending:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

func (f Filter) Match(t Task) bool {
	switch f {
	case FilterCompleted:
		return t.Completed
	case FilterPending:
		return !t.Completed
	default:
		return true
	}
}

func applyFilter(in []Task, f Filter) []Task {
	out := make([]Task, 0, len(in))
	for _, t := range in {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
