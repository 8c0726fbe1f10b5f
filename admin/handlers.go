package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/maxpert/fimsync/fimdb"
	"github.com/maxpert/fimsync/notify"
	"github.com/rs/zerolog/log"
)

// FileStore is the part of fimdb.DB the admin API drives
type FileStore interface {
	UpdateFile(ctx context.Context, entry fimdb.FileEntry) (fimdb.Change, error)
	RemoveFile(ctx context.Context, path string) error
	GetFile(ctx context.Context, path string) (fimdb.FileEntry, error)
	CountFiles(ctx context.Context) (int64, error)
	SearchFiles(ctx context.Context, pattern string) ([]fimdb.FileEntry, error)
	BeginScan(ctx context.Context) error
	EndScan(ctx context.Context) (int, error)
	RunIntegrity(ctx context.Context) (fimdb.IntegrityResult, error)
}

// SpoolStats reports spool progress
type SpoolStats interface {
	LastSeq() uint64
	Backlog() uint64
}

// EventSource hands out live sync event subscriptions
type EventSource interface {
	Subscribe(filter notify.Filter) (<-chan notify.Event, func(), error)
	Subscribers() int
}

// AdminHandlers serves the admin API
type AdminHandlers struct {
	agentID uint64
	files   FileStore
	spool   SpoolStats
	events  EventSource
}

// NewAdminHandlers creates a new AdminHandlers instance. spool and events may be nil.
func NewAdminHandlers(agentID uint64, files FileStore, spool SpoolStats, events EventSource) *AdminHandlers {
	return &AdminHandlers{
		agentID: agentID,
		files:   files,
		spool:   spool,
		events:  events,
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 256, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}
	if limit > 4096 {
		return 0, fmt.Errorf("limit cannot exceed 4096")
	}
	return limit, nil
}
