package api

import (
	"encoding/json"
	"net/http"

	"golang-redflag-service/pkg/errors"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error      string `json:"error"`
	Category   string `json:"category,omitempty"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps err onto an HTTP status and writes its envelope.
func writeFailure(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	if rfErr, ok := errors.AsRedflagError(err); ok {
		resp.Category = string(rfErr.Category)
		resp.Code = string(rfErr.Code)
		resp.Suggestion = rfErr.Suggestion
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor maps error categories onto HTTP statuses.
func statusFor(err error) int {
	rfErr, ok := errors.AsRedflagError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if rfErr.Code == errors.CodeNotFound {
		return http.StatusNotFound
	}
	switch rfErr.Category {
	case errors.CategoryConfiguration, errors.CategoryValidation, errors.CategoryIngestion, errors.CategoryNormalization:
		return http.StatusBadRequest
	case errors.CategoryPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
