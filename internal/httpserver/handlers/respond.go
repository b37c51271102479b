package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps the domain error taxonomy onto HTTP.
func writeDomainError(w http.ResponseWriter, log logger.Logger, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid session")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "invalid_input", verr.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid input")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_failure", "a backing service failed, try again")
	default:
		log.Error("unhandled error", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
