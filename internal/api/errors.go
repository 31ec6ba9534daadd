package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"example.com/healthtrack/internal/domain"
)

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeDomainError maps a domain error kind to a status code. Store failures
// are logged and reported without their cause.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}

	switch kind {
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, string(kind), message)
	case domain.KindInvalidInput:
		writeError(w, http.StatusBadRequest, string(kind), message)
	case domain.KindSchedulingMismatch:
		writeError(w, http.StatusUnprocessableEntity, string(kind), message)
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(domain.KindStoreFailure), "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
