package fimdb

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/doug-martin/goqu/v9"

	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/telemetry"
)

// BeginScan clears the seen mark on every entry. Entries not touched by
// UpdateFile before EndScan are treated as deleted.
func (d *DB) BeginScan(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	_, err := d.gdb.Update(tableFileEntry).Prepared(true).
		Set(goqu.Record{"scanned": false}).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin scan: %w", err)
	}
	if d.cache != nil {
		d.cache.Purge()
	}
	d.notify.Logf(callback.LevelDebug, "scan started")
	return nil
}

// EndScan removes every entry not seen since BeginScan, emitting file_removed
// for each in path order, and returns how many were removed.
func (d *DB) EndScan(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}

	var stale []FileEntry
	err := d.gdb.From(tableFileEntry).Prepared(true).
		Where(goqu.C("scanned").Eq(false)).
		Order(goqu.C("path").Asc()).
		ScanStructsContext(ctx, &stale)
	if err != nil {
		return 0, fmt.Errorf("failed to list unscanned entries: %w", err)
	}
	if len(stale) == 0 {
		d.notify.Logf(callback.LevelDebug, "scan finished, nothing removed")
		return 0, nil
	}

	tx, err := d.gdb.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	res, err := tx.Delete(tableFileEntry).Prepared(true).
		Where(goqu.C("scanned").Eq(false)).
		Executor().ExecContext(ctx)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to delete unscanned entries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to count deleted entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan: %w", err)
	}
	d.entries -= deleted

	for _, old := range stale {
		d.cacheRemove(old.Path)
		d.emitRemovedLocked(old)
	}
	d.notify.Logf(callback.LevelInfo, "scan finished, %d entries removed", len(stale))
	return len(stale), nil
}

type checksumRow struct {
	Path     string `db:"path"`
	Checksum string `db:"checksum"`
}

// IntegrityResult summarises one integrity pass.
type IntegrityResult struct {
	Event   string
	Payload IntegrityPayload
}

// RunIntegrity computes the global checksum over all entries and emits
// integrity_check_global, or integrity_clear when the database is empty.
// The checksum is xxhash64 over entry checksums in path order.
func (d *DB) RunIntegrity(ctx context.Context) (IntegrityResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return IntegrityResult{}, ErrClosed
	}

	var rows []checksumRow
	err := d.gdb.From(tableFileEntry).
		Select("path", "checksum").
		Order(goqu.C("path").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return IntegrityResult{}, fmt.Errorf("failed to read checksums: %w", err)
	}

	payload := IntegrityPayload{
		Component: Component,
		ID:        d.nextIntegrityIDLocked(),
		Count:     len(rows),
	}

	event := EventIntegrityClear
	if len(rows) > 0 {
		event = EventIntegrityCheckGlobal
		h := xxhash.New()
		for _, r := range rows {
			h.WriteString(r.Checksum)
		}
		payload.Begin = rows[0].Path
		payload.End = rows[len(rows)-1].Path
		payload.Checksum = fmt.Sprintf("%016x", h.Sum64())
	}
	payload.Type = event

	d.emitLocked(event, &payload)
	telemetry.IntegrityChecksTotal.With(event).Inc()
	d.notify.Logf(callback.LevelDebug, "integrity %s sent for %d entries", event, len(rows))
	return IntegrityResult{Event: event, Payload: payload}, nil
}

// nextIntegrityIDLocked returns the current unix time, bumped if needed so ids
// are strictly increasing.
func (d *DB) nextIntegrityIDLocked() int64 {
	id := d.now().Unix()
	if id <= d.lastIntegrityID {
		id = d.lastIntegrityID + 1
	}
	d.lastIntegrityID = id
	return id
}
