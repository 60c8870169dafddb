package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/qr"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// statusFor maps domain errors to a status code and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "Request not found"
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrInvalidTenant):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, qr.ErrRender):
		return http.StatusInternalServerError, qr.ErrRender.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Sugar().Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}
