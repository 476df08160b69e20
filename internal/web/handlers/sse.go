package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// JobEvent is one server-sent update of an indexing job.
type JobEvent struct {
	Type      string    `json:"type"` // "progress" or the terminal job status
	Partition int       `json:"partition"`
	Progress  int       `json:"progress"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// isJobTerminal returns true if the job status is a terminal state
func isJobTerminal(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// setupSSEConnection sets the event-stream headers. On failure it writes an
// error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return flusher, true
}

// sendSSEEvent writes one event and flushes it to the client.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// streamJobEvents sends the current job state, then every update until the
// job finishes or the client disconnects.
func streamJobEvents(w http.ResponseWriter, r *http.Request, job *IndexJob) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := job.addListener()
	defer job.removeListener(eventCh)

	sendSSEEvent(w, flusher, "status", job.snapshot())
	if eventCh == nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if event.Type != "progress" && isJobTerminal(event.Status) {
				return
			}
		}
	}
}
