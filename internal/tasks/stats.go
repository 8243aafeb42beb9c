package tasks

import (
	"math"
	"time"
)

// RecentWindow is the default trailing period counted as recent activity.
const RecentWindow = 7 * 24 * time.Hour

// ComputeStats derives Stats from tasks as of now. A task is recent when its
// CreatedAt is at or after now-window.
func ComputeStats(tasks []Task, now time.Time, window time.Duration) Stats {
	s := Stats{
		TotalTasks:  len(tasks),
		RecentTasks: []Task{},
	}

	cutoff := now.Add(-window)
	for _, t := range tasks {
		if t.Completed {
			s.CompletedTasks++
		}
		if !t.CreatedAt.Before(cutoff) {
			s.RecentTasks = append(s.RecentTasks, t)
			if t.Completed {
				s.RecentCompleted++
			}
		}
	}

	s.PendingTasks = s.TotalTasks - s.CompletedTasks
	s.CompletionRate = percent(s.CompletedTasks, s.TotalTasks)
	s.RecentCompletionRate = percent(s.RecentCompleted, len(s.RecentTasks))
	return s
}

// percent rounds part/whole to an integer percentage; 0 when whole is 0.
func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
