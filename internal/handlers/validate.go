package handlers

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func checkContentType(r *http.Request, target string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == target
}

func parseID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("не удалось получить %s: %q не число", param, raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%s должен быть положительным", param)
	}
	return id, nil
}

// decodeBody проверяет Content-Type и разбирает JSON; ошибка уже записана в ответ
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !checkContentType(r, "application/json") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{
			"error":   "UNSUPPORTED_MEDIA_TYPE",
			"message": "Content-Type должен быть application/json",
		})
		return false
	}

	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, r, "body", "неверное тело запроса: "+err.Error())
		return false
	}
	return true
}
