package inbound

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// receiveCallback hands any request outside the control API to the
// correlator. Unmatched callbacks are acknowledged all the same.
func (s *Server) receiveCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "callback body too large")
		return
	}

	counterpart := ""
	if s.hosting {
		counterpart = r.Header.Get(s.counterpartHeader)
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	matched := s.signaler.Signal(counterpart, r.Method, r.URL.Path, headers, decodeBody(body))
	s.logger.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("counterpart", counterpart).
		Bool("matched", matched).
		Msg("callback received")

	w.WriteHeader(http.StatusAccepted)
}

// decodeBody returns the JSON value of body, or the raw text when it is
// not JSON.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}
