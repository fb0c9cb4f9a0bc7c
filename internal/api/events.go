package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/vantage/internal/engine"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/store"
)

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before reading the record so that no status change falls
	// between the two. Subscribe on a finished invocation returns a closed
	// channel, causing the loop below to exit immediately.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()

	inv, err := s.store.GetInvocation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "invocation not found")
		return
	}
	if err != nil {
		s.logger.Error("get invocation for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get invocation")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	// The current state is always the first event.
	if err := writeSSEEvent(w, "status", snapshotEvent(inv)); err != nil {
		return
	}
	if model.Terminal(inv.Status) {
		_ = writeSSEEvent(w, "done", nil)
		if canFlush {
			flusher.Flush()
		}
		return
	}
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", nil)
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEEvent(w, "status", ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

func snapshotEvent(inv *model.Invocation) engine.Event {
	ev := engine.Event{
		InvocationID:  inv.ID,
		Status:        inv.Status,
		Time:          inv.CreatedAt,
		SubOperations: inv.SubOperations,
		DurationMS:    inv.DurationMS,
		Error:         inv.Error,
	}
	switch {
	case inv.FinishedAt != nil:
		ev.Time = *inv.FinishedAt
	case inv.StartedAt != nil:
		ev.Time = *inv.StartedAt
	}
	return ev
}

// writeSSEEvent writes a named SSE event with v encoded as JSON data. A nil v
// writes an empty JSON object.
func writeSSEEvent(w http.ResponseWriter, eventType string, v any) error {
	data := []byte("{}")
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = b
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}
