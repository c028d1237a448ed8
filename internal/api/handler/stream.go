package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/api/response"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/service"
)

// StreamHandler handles the reply streaming endpoint
type StreamHandler struct {
	streams *service.StreamService
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(streams *service.StreamService) *StreamHandler {
	return &StreamHandler{streams: streams}
}

// sseWriter starts the event stream lazily so that failures before the first
// fragment can still be answered with a plain status code.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) send(event string, payload any) error {
	s.start()
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := writeSSE(s.w, event, string(data)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Stream generates the assistant reply as server-sent events. Nothing is persisted.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}

	var input domain.StreamInput
	if !decode(w, r, &input, false) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	sse := &sseWriter{w: w, flusher: flusher}

	result, err := h.streams.Stream(r.Context(), userID, sessionID, input.Messages, func(text string) error {
		return sse.send("delta", map[string]string{"text": text})
	})
	if err != nil {
		if !sse.started {
			fail(w, r, err)
			return
		}
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Stream aborted after first fragment")
		if writeErr := sse.send("error", domain.NewErrorBody(err)); writeErr != nil {
			log.Debug().Err(writeErr).Msg("Failed to write SSE error event")
		}
		return
	}

	if err := sse.send("done", result); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("Failed to write SSE done event")
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
