package server

import (
	"encoding/json"
	"net/http"
	"time"

	gsync "github.com/acme/ganttsync/internal/sync"
)

// handleData returns every task and dependency.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.loader.Load(r.Context()))
}

// handleAPI applies a change batch.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	batch, err := gsync.DecodeBatch(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejected batch")
		writeJSON(w, gsync.ErrorResponse(err))
		return
	}

	res := s.processor.Process(r.Context(), batch)
	resp := res.Response()
	if !resp.Success {
		s.logger.Error().Err(resp.Err).Str("batch", batch.String()).Msg("batch failed")
	}
	writeJSON(w, resp)

	if s.hub != nil && res.Changed() {
		s.publish(resp)
	}
}

// publish announces a processed batch to websocket listeners. The request
// id belongs to the submitting client and is not forwarded.
func (s *Server) publish(resp *gsync.Response) {
	notice := *resp
	notice.RequestID = nil

	data, err := json.Marshal(&notice)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal change notice")
		return
	}
	s.hub.Publish(Message{
		Type:      MessageTypeSync,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, map[string]any{
		"status":  "ok",
		"clients": clients,
	})
}
