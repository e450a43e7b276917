package inbound

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/core/runner"
)

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusNotImplemented, "control API disabled")
		return
	}
	traceID := chi.URLParam(r, "traceID")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "test plan too large")
		return
	}
	p, err := plan.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := p.Validate(); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, errs[0].Error())
		return
	}

	counterpart := r.URL.Query().Get("dfspId")
	if err := s.controller.Start(p, traceID, counterpart); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info().Str("traceId", traceID).Str("counterpart", counterpart).Msg("run started")
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) terminateRun(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusNotImplemented, "control API disabled")
		return
	}
	traceID := chi.URLParam(r, "traceID")
	flagged := s.controller.Terminate(traceID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "terminating": flagged})
}

func (s *Server) runStatus(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusNotImplemented, "control API disabled")
		return
	}
	status, ok := s.controller.Status(chi.URLParam(r, "traceID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown trace id")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
