package handlers

import (
	"errors"
	"net/http"

	"chatTracker/internal/logger"
	"chatTracker/internal/middleware"
	"chatTracker/internal/service"

	"go.uber.org/zap"
)

// handleError переводит ошибку сервиса в ответ. Подробности INTERNAL и CONFLICT
// остаются в журнале, клиент получает только сводку.
func handleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	requestId := middleware.GetRequestID(r.Context())

	var businessErr *service.BusinessError
	if !errors.As(err, &businessErr) {
		businessErr = service.NewInternal(operation, err)
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)

	switch businessErr.Code {
	case service.CodeInternal, service.CodeConflict:
		logger.Error("HTTP: Ошибка Service", businessErr.Unwrap(),
			zap.String("operation", operation),
			zap.String("error_code", businessErr.Code),
			zap.String("request_id", requestId),
			zap.String("client_ip", r.RemoteAddr))
	default:
		logger.Warn("HTTP: Бизнес-ошибка",
			zap.String("operation", operation),
			zap.String("error_code", businessErr.Code),
			zap.Int("http_status", statusCode),
			zap.String("request_id", requestId))
	}

	responseWithJSON(w, statusCode,
		toPayload("error", businessErr.Code),
		toPayload("message", businessErr.Message),
		toPayload("details", businessErr.Details),
		toPayload("requestId", requestId),
	)
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, field, reason string) {
	handleError(w, r, service.NewValidationError(field, reason), "validate")
}
