package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/seantiz/vantage/internal/dispatch"
	"github.com/seantiz/vantage/internal/function"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/store"
	"github.com/seantiz/vantage/internal/upstream"
)

const (
	maxBodySize = 1 << 20 // 1 MB

	// accountHeader carries the upstream account a request runs under.
	accountHeader = "X-Account-Id"

	defaultRange = time.Hour

	modeSync  = "sync"
	modeAsync = "async"
)

// queryRequest is the JSON body for POST /v1/query and /v1/query/async.
type queryRequest struct {
	Function   string          `json:"function"`
	Datasource string          `json:"datasource"`
	From       *time.Time      `json:"from"`
	To         *time.Time      `json:"to"`
	Input      json.RawMessage `json:"input"`
}

// queryResponse is the JSON response for a synchronous query.
type queryResponse struct {
	InvocationID  string         `json:"invocation_id"`
	Outputs       []model.Output `json:"outputs"`
	SubOperations int            `json:"sub_operations"`
	DurationMS    int            `json:"duration_ms"`
}

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error        string `json:"error"`
	InvocationID string `json:"invocation_id,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	inv, err := s.engine.Invoke(r.Context(), req)
	if err != nil {
		if inv == nil {
			s.logger.Error("invoke", "function", req.Function, "error", err)
			s.recordQuery(req.Function, modeSync, http.StatusInternalServerError)
			s.writeError(w, http.StatusInternalServerError, "failed to record invocation")
			return
		}
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("invocation failed", "invocation_id", inv.ID, "error", err)
		}
		s.recordQuery(req.Function, modeSync, status)
		s.writeJSON(w, status, errorResponse{Error: err.Error(), InvocationID: inv.ID})
		return
	}
	s.recordQuery(req.Function, modeSync, http.StatusOK)

	resp := queryResponse{
		InvocationID: inv.ID,
		Outputs:      inv.Outputs,
	}
	if resp.Outputs == nil {
		resp.Outputs = []model.Output{}
	}
	if inv.SubOperations != nil {
		resp.SubOperations = *inv.SubOperations
	}
	if inv.DurationMS != nil {
		resp.DurationMS = *inv.DurationMS
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAsyncQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	// Reject unknown functions before anything is recorded.
	if _, err := s.functions.Lookup(req.Function); err != nil {
		s.recordQuery(req.Function, modeAsync, http.StatusBadRequest)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := s.engine.Submit(r.Context(), req)
	if err != nil {
		s.logger.Error("submit async query", "error", err)
		s.recordQuery(req.Function, modeAsync, http.StatusInternalServerError)
		s.writeError(w, http.StatusInternalServerError, "failed to submit query")
		return
	}
	s.recordQuery(req.Function, modeAsync, http.StatusAccepted)

	w.Header().Set("Location", "/v1/invocations/"+inv.ID)
	s.writeJSON(w, http.StatusAccepted, inv)
}

// decodeQuery reads the request body into a model.Request. It writes the
// error response itself and reports whether the caller should continue.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (model.Request, bool) {
	var body queryRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return model.Request{}, false
	}

	if body.Function == "" {
		s.writeError(w, http.StatusBadRequest, "function is required")
		return model.Request{}, false
	}

	identity := model.ClientIdentity{
		Datasource: body.Datasource,
		Account:    strings.TrimSpace(r.Header.Get(accountHeader)),
	}
	if !identity.Valid() {
		s.writeError(w, http.StatusBadRequest, "datasource is required")
		return model.Request{}, false
	}

	to := time.Now().UTC()
	if body.To != nil {
		to = body.To.UTC()
	}
	from := to.Add(-defaultRange)
	if body.From != nil {
		from = body.From.UTC()
	}

	return model.Request{
		Function: body.Function,
		Identity: identity,
		Range:    model.TimeRange{From: from, To: to},
		Input:    body.Input,
	}, true
}

// errorStatus maps an invocation error to an HTTP status code.
func errorStatus(err error) int {
	var remote *upstream.RemoteError
	switch {
	case errors.Is(err, function.ErrInvalidInput), errors.Is(err, function.ErrUnknownFunction):
		return http.StatusBadRequest
	case errors.Is(err, upstream.ErrUnknownDatasource), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.Is(err, dispatch.ErrCompositeFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
