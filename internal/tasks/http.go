package tasks

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

// RegisterRoutes mounts the list surface and the stats surface on r.
func RegisterRoutes(r chi.Router, store Store, logger *slog.Logger) error {
	list, err := NewListHandler(store, logger)
	if err != nil {
		return err
	}
	stats, err := NewStatsHandler(store, logger)
	if err != nil {
		return err
	}
	list.Routes(r)
	stats.Routes(r)
	return nil
}

// ListHandler is the task list/editor surface. It owns input validation and
// delete confirmation; the store accepts whatever it is given.
type ListHandler struct {
	store  Store
	logger *slog.Logger
}

func NewListHandler(store Store, logger *slog.Logger) (*ListHandler, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ListHandler{store: store, logger: logger}, nil
}

func (h *ListHandler) Routes(r chi.Router) {
	r.Post("/tasks", h.createTask)
	r.Get("/tasks", h.listTasks)
	r.Post("/tasks/{id}/toggle", h.toggleTask)
	r.Delete("/tasks/{id}", h.deleteTask)
}

func (h *ListHandler) createTask(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
		return
	}

	if vErrs := validateCreateTask(req); len(vErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{
			Error:   "validation_error",
			Details: vErrs,
		})
		return
	}

	t, err := h.store.Add(r.Context(), req.Title, req.Description)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "task_add_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *ListHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	writeTaskList(w, r, h.store, h.logger)
}

func (h *ListHandler) toggleTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Toggle(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "task_toggle_failed",
			slog.String("id", id), slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, http.StatusPreconditionRequired, errResponse{
			Error: "confirmation_required",
			Details: []fieldError{
				{Field: "confirm", Message: "repeat the request with confirm=true to delete this task"},
			},
		})
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "task_delete_failed",
			slog.String("id", id), slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateCreateTask(req createTaskRequest) []fieldError {
	var errs []fieldError

	title := strings.TrimSpace(req.Title)
	if title == "" {
		errs = append(errs, fieldError{
			Field:   "title",
			Message: "title is required",
		})
	}

	if l := utf8.RuneCountInString(title); l > maxTitleLen {
		errs = append(errs, fieldError{
			Field:   "title",
			Message: fmt.Sprintf("title must be at most %d characters", maxTitleLen),
		})
	}

	if l := utf8.RuneCountInString(strings.TrimSpace(req.Description)); l > maxDescriptionLen {
		errs = append(errs, fieldError{
			Field:   "description",
			Message: fmt.Sprintf("description must be at most %d characters", maxDescriptionLen),
		})
	}

	return errs
}

// writeTaskList renders the filtered sequence named by the status query parameter.
func writeTaskList(w http.ResponseWriter, r *http.Request, store Store, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")

	f, err := ParseFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error:   "invalid_filter",
			Details: []fieldError{{Field: "status", Message: err.Error()}},
		})
		return
	}

	tasks, err := store.List(r.Context(), f)
	if err != nil {
		logger.ErrorContext(r.Context(), "task_list_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
