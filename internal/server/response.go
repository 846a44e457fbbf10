package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/easeaico/project-chara/internal/errs"
)

// apiResponse is the envelope every JSON endpoint returns.
type apiResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type apiError struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, apiResponse{Success: true, Data: data, Timestamp: time.Now()})
}

func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	writeJSON(w, statusOf(code), apiResponse{
		Success:   false,
		Error:     &apiError{Code: code, Message: err.Error()},
		Timestamp: time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// statusOf maps domain error codes onto HTTP statuses.
func statusOf(code errs.Code) int {
	switch code {
	case errs.CodeCharacterNotFound, errs.CodeSessionNotFound:
		return http.StatusNotFound
	case errs.CodeSessionExpired:
		return http.StatusGone
	case errs.CodeMessageTooLong, errs.CodeContentFiltered, errs.CodeValidationFailed, errs.CodeCharacterLoad:
		return http.StatusBadRequest
	case errs.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case errs.CodeLLMProvider, errs.CodeLLMTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
