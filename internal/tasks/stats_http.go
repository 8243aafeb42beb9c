package tasks

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatsHandler is the read-only dashboard surface.
type StatsHandler struct {
	store  Store
	logger *slog.Logger
}

func NewStatsHandler(store Store, logger *slog.Logger) (*StatsHandler, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{store: store, logger: logger}, nil
}

func (h *StatsHandler) Routes(r chi.Router) {
	r.Get("/stats", h.getStats)
	r.Get("/stats/tasks", h.previewTasks)
}

func (h *StatsHandler) getStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stats_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// previewTasks backs the dashboard cards that list all, completed or pending tasks.
func (h *StatsHandler) previewTasks(w http.ResponseWriter, r *http.Request) {
	writeTaskList(w, r, h.store, h.logger)
}
