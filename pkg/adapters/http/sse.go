package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aretw0/quartet/pkg/domain"
)

// sseSink writes relay events as Server-Sent Events frames, flushing
// after each one so tokens reach the client as they are produced. A
// write failure (client gone) is returned to the relay, which then
// stops emitting.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter, flusher http.Flusher) *sseSink {
	return &sseSink{w: w, flusher: flusher}
}

// Emit implements ports.EventSink.
func (s *sseSink) Emit(_ context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
