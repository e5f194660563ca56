package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"blogCPT/internal/cache"
	"blogCPT/internal/repository"
	"blogCPT/internal/service"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func statusFor(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "TOO_LARGE"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	}
	return cache.StatusCustomError
}

// WriteError sends message with the status matching statusCode.
func WriteError(w http.ResponseWriter, message string, statusCode int) {
	writeSuccess(w, ErrorResponse{Status: statusFor(statusCode), Error: message}, statusCode)
}

func writeSuccess(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a data layer or service error onto a response.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *cache.Error
	switch {
	case cache.IsNotFound(err):
		WriteError(w, "Пост не найден", http.StatusNotFound)
	case errors.Is(err, repository.ErrInvalidCursor):
		WriteError(w, "Неверный курсор", http.StatusBadRequest)
	case errors.Is(err, service.ErrSignedOut):
		WriteError(w, "Требуется авторизация", http.StatusUnauthorized)
	case errors.Is(err, service.ErrStorageDisabled):
		WriteError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &ce):
		h.Log.WithError(err).WithField("path", r.URL.Path).Error("store request failed")
		writeSuccess(w, ErrorResponse{Status: ce.Status, Error: ce.Message}, http.StatusInternalServerError)
	default:
		h.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		WriteError(w, err.Error(), http.StatusInternalServerError)
	}
}
