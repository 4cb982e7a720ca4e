package handlers

import (
	"net/http"

	"chatTracker/internal/handlers/dto"
	"chatTracker/internal/logger"

	"go.uber.org/zap"
)

const ServiceName = "chat-tracker"

type Handler struct {
	Service ChatService
}

func NewHandler(svc ChatService) *Handler {
	return &Handler{
		Service: svc,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HealthCheck(r.Context()); err != nil {
		logger.Warn("HTTP: Health check не пройден", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, dto.HealthResponse{
			Status:  "unavailable",
			Service: ServiceName,
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Service: ServiceName})
}
