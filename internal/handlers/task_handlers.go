package handlers

import (
	"net/http"
	"time"

	"chatTracker/internal/handlers/dto"
	"chatTracker/internal/logger"

	"go.uber.org/zap"
)

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Service.ListTasks(r.Context())
	if err != nil {
		handleError(w, r, err, "list_tasks")
		return
	}

	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}

	t, err := h.Service.GetTask(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "get_task")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN: Создание задачи")

	var request dto.CreateTaskRequest
	if !decodeBody(w, r, &request) {
		return
	}

	created, err := h.Service.CreateTask(r.Context(), request.ToNewTask())
	if err != nil {
		handleError(w, r, err, "create_task")
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.Int64("task_id", created.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	writeJSON(w, http.StatusCreated, created)
}

// UpdateTask: PUT /tasks/{id}
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN: Обновление задачи")

	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}

	var request dto.UpdateTaskRequest
	if !decodeBody(w, r, &request) {
		return
	}

	updated, err := h.Service.UpdateTask(r.Context(), id, request.Options()...)
	if err != nil {
		handleError(w, r, err, "update_task")
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.Int64("task_id", id),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}

	if err := h.Service.DeleteTask(r.Context(), id); err != nil {
		handleError(w, r, err, "delete_task")
		return
	}

	logger.Info("HTTP_OUT: Задача удалена",
		zap.Int64("task_id", id),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

// ListTaskMessages: GET /tasks/{id}/messages
func (h *Handler) ListTaskMessages(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}

	msgs, err := h.Service.ListTaskMessages(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "list_task_messages")
		return
	}

	writeJSON(w, http.StatusOK, nonNil(msgs))
}
