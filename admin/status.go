package admin

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/maxpert/fimsync/notify"
	"github.com/rs/zerolog/log"
)

// handleStatus returns agent-level counters
func (h *AdminHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.CountFiles(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	response := map[string]interface{}{
		"agent_id": strconv.FormatUint(h.agentID, 16),
		"files":    files,
	}
	if h.spool != nil {
		response["spool_last_seq"] = h.spool.LastSeq()
		response["spool_backlog"] = h.spool.Backlog()
	}
	if h.events != nil {
		response["subscribers"] = h.events.Subscribers()
	}

	writeJSONResponse(w, response)
}

type streamEvent struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"` // base64
}

// handleEvents streams live sync events as Server-Sent Events.
// ?events=file_*,integrity_* narrows the stream.
func (h *AdminHandlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeErrorResponse(w, http.StatusNotFound, "event stream not enabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var filter notify.Filter
	if raw := r.URL.Query().Get("events"); raw != "" {
		filter.Events = strings.Split(raw, ",")
	}

	events, cancel, err := h.events.Subscribe(filter)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(streamEvent{
				Name:    ev.Name,
				Payload: base64.StdEncoding.EncodeToString(ev.Payload),
			})
			if err != nil {
				log.Warn().Err(err).Msg("Failed to encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
