package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/s1natex/tasktracker/internal/tasks"
)

const namespace = "tasktracker"

// StoreCollector exposes task counts computed from the store at scrape time,
// and counts change events it observes.
type StoreCollector struct {
	store  tasks.Store
	logger *slog.Logger

	events *prometheus.CounterVec

	tasksDesc      *prometheus.Desc
	rateDesc       *prometheus.Desc
	recentRateDesc *prometheus.Desc
	recentDesc     *prometheus.Desc
	scrapeErrsDesc *prometheus.Desc
}

func NewStoreCollector(store tasks.Store, logger *slog.Logger) (*StoreCollector, error) {
	if store == nil {
		return nil, tasks.ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreCollector{
		store:  store,
		logger: logger,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Task store changes by kind.",
		}, []string{"kind"}),
		tasksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tasks"),
			"Tasks currently held, by state.",
			[]string{"state"}, nil,
		),
		rateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "completion_rate_percent"),
			"Rounded share of completed tasks.",
			nil, nil,
		),
		recentRateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "recent_completion_rate_percent"),
			"Rounded share of completed tasks within the recent window.",
			nil, nil,
		),
		recentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "recent_tasks"),
			"Tasks created within the recent window, by state.",
			[]string{"state"}, nil,
		),
		scrapeErrsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stats_scrape_error"),
			"1 when the last scrape could not read stats.",
			nil, nil,
		),
	}, nil
}

// Observe is a tasks.Observer.
func (c *StoreCollector) Observe(e tasks.Event) {
	c.events.WithLabelValues(string(e.Kind)).Inc()
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	c.events.Describe(ch)
	ch <- c.tasksDesc
	ch <- c.rateDesc
	ch <- c.recentRateDesc
	ch <- c.recentDesc
	ch <- c.scrapeErrsDesc
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	c.events.Collect(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.store.Stats(ctx)
	if err != nil {
		c.logger.Warn("stats_scrape_failed", slog.String("error", err.Error()))
		ch <- prometheus.MustNewConstMetric(c.scrapeErrsDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErrsDesc, prometheus.GaugeValue, 0)
	ch <- prometheus.MustNewConstMetric(c.tasksDesc, prometheus.GaugeValue, float64(st.CompletedTasks), "completed")
	ch <- prometheus.MustNewConstMetric(c.tasksDesc, prometheus.GaugeValue, float64(st.PendingTasks), "pending")
	ch <- prometheus.MustNewConstMetric(c.rateDesc, prometheus.GaugeValue, float64(st.CompletionRate))
	ch <- prometheus.MustNewConstMetric(c.recentRateDesc, prometheus.GaugeValue, float64(st.RecentCompletionRate))
	ch <- prometheus.MustNewConstMetric(c.recentDesc, prometheus.GaugeValue, float64(st.RecentCompleted), "completed")
	ch <- prometheus.MustNewConstMetric(c.recentDesc, prometheus.GaugeValue,
		float64(len(st.RecentTasks)-st.RecentCompleted), "pending")
}
