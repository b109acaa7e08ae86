package proxy

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SSEWriter writes server-sent events and flushes after each one.
type SSEWriter struct {
	rw      http.ResponseWriter
	w       *bufio.Writer
	flusher http.Flusher
}

// NewSSEWriter returns a writer for w. It fails when w cannot flush. Nothing is
// written until Start.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &SSEWriter{rw: w, w: bufio.NewWriter(w), flusher: flusher}, nil
}

// Start sets the event-stream headers and commits the 200 status.
func (s *SSEWriter) Start() {
	h := s.rw.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.rw.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// WriteEvent writes one "event: <name>" frame carrying data as JSON.
func (s *SSEWriter) WriteEvent(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return s.flush()
}

func (s *SSEWriter) flush() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
