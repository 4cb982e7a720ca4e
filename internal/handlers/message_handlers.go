package handlers

import (
	"net/http"
	"strconv"
	"time"

	"chatTracker/internal/handlers/dto"
	"chatTracker/internal/logger"

	"go.uber.org/zap"
)

// ListMessages: GET /messages?chatId=&limit=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			badRequest(w, r, "limit", "ожидается целое число больше 0")
			return
		}
		limit = parsed
	}

	msgs, err := h.Service.ListMessages(r.Context(), query.Get("chatId"), limit)
	if err != nil {
		handleError(w, r, err, "list_messages")
		return
	}

	logger.Debug("HTTP_OUT: Сообщения получены",
		zap.Int("count", len(msgs)),
		zap.Duration("ms", time.Since(start)))

	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}

	msg, err := h.Service.GetMessage(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "get_message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var request dto.CreateMessageRequest
	if !decodeBody(w, r, &request) {
		return
	}

	msg, err := h.Service.CreateMessage(r.Context(), request.ToNewMessage())
	if err != nil {
		handleError(w, r, err, "create_message")
		return
	}

	logger.Info("HTTP_OUT: Сообщение создано",
		zap.Int64("message_id", msg.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	writeJSON(w, http.StatusCreated, msg)
}

// UpdateMessage: PATCH /messages/{id}, меняются только переданные поля
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}

	var request dto.UpdateMessageRequest
	if !decodeBody(w, r, &request) {
		return
	}

	msg, err := h.Service.UpdateMessage(r.Context(), id, request.ToPatch())
	if err != nil {
		handleError(w, r, err, "update_message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// AssignTask: PATCH /messages/{id}/assignTask/{taskId}
func (h *Handler) AssignTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}
	taskID, err := parseID(r, "taskId")
	if err != nil {
		badRequest(w, r, "taskId", err.Error())
		return
	}

	msg, err := h.Service.AssignTask(r.Context(), id, taskID)
	if err != nil {
		handleError(w, r, err, "assign_task")
		return
	}

	logger.Info("HTTP_OUT: Сообщение привязано",
		zap.Int64("message_id", id),
		zap.Int64("task_id", taskID),
		zap.Duration("ms", time.Since(start)))

	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, "id", err.Error())
		return
	}

	if err := h.Service.DeleteMessage(r.Context(), id); err != nil {
		handleError(w, r, err, "delete_message")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
