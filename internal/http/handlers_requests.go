package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/service"
)

type createRequestBody struct {
	TableID   core.TableID `json:"table_id" validate:"required"`
	TableName string       `json:"table_name" validate:"max=128"`
	Type      string       `json:"type" validate:"max=32"`
	TenantID  string       `json:"tenant_id"`
}

type requestResponse struct {
	Success bool         `json:"success"`
	Request core.Request `json:"request"`
	Message string       `json:"message,omitempty"`
}

type listRequestsResponse struct {
	Success  bool           `json:"success"`
	Requests []core.Request `json:"requests"`
}

type statusResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Requests  int    `json:"requests"`
}

func (s *Service) handleTest(w http.ResponseWriter, r *http.Request) {
	count, err := s.requests.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Message:   "TapCall backend is working!",
		Timestamp: s.now().Format(time.RFC3339Nano),
		Requests:  count,
	})
}

func (s *Service) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "table_id is required")
		return
	}
	req, err := s.requests.CreateRequest(r.Context(), service.CreateInput{
		TenantID:  body.TenantID,
		TableID:   body.TableID,
		TableName: body.TableName,
		Type:      core.RequestType(body.Type),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestResponse{Success: true, Request: req, Message: "Request sent successfully!"})
}

func (s *Service) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.requests.ListPending(r.Context(), strings.TrimSpace(r.URL.Query().Get("tenant_id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listRequestsResponse{Success: true, Requests: reqs})
}

func (s *Service) handleCompleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	req, err := s.requests.CompleteRequest(r.Context(), id)
	if errors.Is(err, core.ErrInvalidTransition) {
		writeError(w, http.StatusBadRequest, "Request cannot be completed")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestResponse{Success: true, Request: req})
}

func (s *Service) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	req, err := s.requests.CancelRequest(r.Context(), id)
	if errors.Is(err, core.ErrInvalidTransition) {
		writeError(w, http.StatusBadRequest, "Request cannot be cancelled")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestResponse{Success: true, Request: req, Message: "Request cancelled successfully"})
}

// requestID parses the {id} path segment. Anything non-numeric cannot name a
// request and is reported as not found.
func requestID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
