package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/maxpert/fimsync/fimdb"
)

// handleListFiles returns entries matching ?pattern= (default "**"), capped by ?limit=
func (h *AdminHandlers) handleListFiles(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "**"
	}

	entries, err := h.files.SearchFiles(r.Context(), pattern)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []fimdb.FileEntry{}
	}

	writeJSONResponse(w, map[string]interface{}{
		"files":    entries,
		"has_more": hasMore,
	})
}

func (h *AdminHandlers) handleCountFiles(w http.ResponseWriter, r *http.Request) {
	n, err := h.files.CountFiles(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, map[string]int64{"count": n})
}

func (h *AdminHandlers) handleGetFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeErrorResponse(w, http.StatusBadRequest, "path is required")
		return
	}

	entry, err := h.files.GetFile(r.Context(), path)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, entry)
}

// handlePutFile reports an observed file state; the body is a FileEntry
func (h *AdminHandlers) handlePutFile(w http.ResponseWriter, r *http.Request) {
	var entry fimdb.FileEntry
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid file entry: "+err.Error())
		return
	}

	change, err := h.files.UpdateFile(r.Context(), entry)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, map[string]string{"change": change.String()})
}

func (h *AdminHandlers) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeErrorResponse(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.files.RemoveFile(r.Context(), path); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, map[string]string{"removed": path})
}

func (h *AdminHandlers) handleBeginScan(w http.ResponseWriter, r *http.Request) {
	if err := h.files.BeginScan(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, map[string]bool{"started": true})
}

func (h *AdminHandlers) handleEndScan(w http.ResponseWriter, r *http.Request) {
	removed, err := h.files.EndScan(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, map[string]int{"removed": removed})
}

func (h *AdminHandlers) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	res, err := h.files.RunIntegrity(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONResponse(w, map[string]interface{}{
		"event":    res.Event,
		"id":       res.Payload.ID,
		"begin":    res.Payload.Begin,
		"end":      res.Payload.End,
		"checksum": res.Payload.Checksum,
		"count":    res.Payload.Count,
	})
}

// writeStoreError maps fimdb errors to HTTP status codes
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fimdb.ErrNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fimdb.ErrInvalidEntry), errors.Is(err, fimdb.ErrInvalidPathFilter):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fimdb.ErrFileLimitReached):
		writeErrorResponse(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, fimdb.ErrClosed):
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
	}
}
