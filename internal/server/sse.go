package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

type resultEvent struct {
	Data models.ResultPayload `json:"data"`
}

type skipEvent struct {
	Index  int    `json:"index"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newEventStream writes the event-stream headers and flushes them.
func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, nil
}

// send writes one event. An empty name writes an unnamed message event.
func (s *eventStream) send(name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
