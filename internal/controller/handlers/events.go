package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"opsplane/internal/event"
	"opsplane/internal/store"
	"opsplane/pkg/api"

	"github.com/google/uuid"
)

// StreamEvents handles GET /jobs/{id}/events as a server-sent event
// stream. The stream carries lifecycle and log events published after the
// subscription; past events are not replayed. It ends when the job
// reaches a terminal state or the client disconnects.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	j, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to fetch job", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.httpError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := h.svc.Subscribe(id)
	defer h.svc.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A job that finished before the subscription produces no further
	// events; emit its terminal status once so watchers terminate.
	if j.Status.Terminal() {
		writeEvent(w, api.EventMessage{
			JobID:     j.ID.String(),
			Kind:      string(j.Status),
			Timestamp: *j.CompletedAt,
		})
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			msg := api.EventMessage{
				JobID:     ev.JobID.String(),
				Kind:      string(ev.Kind),
				Timestamp: ev.Timestamp,
			}
			if ev.Payload != nil {
				if data, err := json.Marshal(ev.Payload); err == nil {
					msg.Payload = data
				}
			}
			writeEvent(w, msg)
			flusher.Flush()

			if terminalKind(ev.Kind) {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, msg api.EventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func terminalKind(k event.Kind) bool {
	return k == event.KindCompleted || k == event.KindFailed || k == event.KindCancelled
}
