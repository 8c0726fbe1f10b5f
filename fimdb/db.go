// Package fimdb stores the state of monitored files in SQLite and reports every
// change to the host through callback.Notifiers.
//
// Thread Safety: DB is safe for concurrent use. Writes and the sync notifications
// they produce are serialised, so a SyncNotifier sees events in commit order.
// Sync payloads are encoded into a buffer owned by the DB and reused on the next
// event.
package fimdb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/encoding"
)

// MemoryPath keeps the database in memory
const MemoryPath = ":memory:"

// Config configures Open.
type Config struct {
	Path      string // File path or MemoryPath
	FileLimit int    // Max entries, 0 = unlimited
	CacheSize int    // Entry read cache, 0 disables it
	Notifiers callback.Notifiers
	Clock     func() time.Time // Defaults to time.Now
}

// DB is the file integrity database.
type DB struct {
	sqlDB     *sql.DB
	gdb       *goqu.Database
	cache     *lru.Cache[string, FileEntry]
	notify    callback.Notifiers
	fileLimit int
	now       func() time.Time

	mu              sync.Mutex
	scratch         bytes.Buffer
	entries         int64 // row count, kept in step with inserts and deletes
	lastIntegrityID int64
	closed          bool
}

// Open opens (creating if needed) the database at cfg.Path.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("fim database path is required")
	}

	dsn := cfg.Path
	if !strings.Contains(dsn, MemoryPath) {
		if strings.Contains(dsn, "?") {
			dsn += "&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
		} else {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
		}
	}

	sqlDB, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open fim database: %w", err)
	}

	// One connection: an in-memory database lives and dies with its connection,
	// and all writes are serialised by DB.mu anyway.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	for _, stmt := range schemaStatements {
		if _, err := sqlDB.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to create fim schema: %w", err)
		}
	}

	d := &DB{
		sqlDB:     sqlDB,
		gdb:       goqu.New("sqlite3", sqlDB),
		notify:    cfg.Notifiers.Bind(),
		fileLimit: cfg.FileLimit,
		now:       cfg.Clock,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if cfg.CacheSize > 0 {
		d.cache, err = lru.New[string, FileEntry](cfg.CacheSize)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to create entry cache: %w", err)
		}
	}

	d.entries, err = d.countLocked(context.Background())
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	d.notify.Logf(callback.LevelDebug, "fim database opened at '%s' with %d entries", cfg.Path, d.entries)
	return d, nil
}

// Close releases the underlying database. Further calls return ErrClosed.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sqlDB.Close()
}

// UpdateFile inserts or updates entry. It emits file_added or file_modified when
// the stored state changes and nothing when the checksum is unchanged. The
// entry is marked as seen by the current scan either way.
func (d *DB) UpdateFile(ctx context.Context, entry FileEntry) (Change, error) {
	if err := entry.normalize(); err != nil {
		return ChangeNone, err
	}
	entry.Checksum = entry.ComputeChecksum()
	entry.Scanned = true

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ChangeNone, ErrClosed
	}

	old, found, err := d.lookupLocked(ctx, entry.Path)
	if err != nil {
		return ChangeNone, err
	}

	if found && old.Checksum == entry.Checksum && old.Mode == entry.Mode {
		if !old.Scanned {
			if err := d.markScannedLocked(ctx, entry.Path); err != nil {
				return ChangeNone, err
			}
			old.Scanned = true
			d.cachePut(old)
		}
		return ChangeNone, nil
	}

	entry.LastEvent = d.now().Unix()

	payload := StatePayload{
		Component: Component,
		Type:      "state",
		Timestamp: entry.LastEvent,
		Data:      entry,
	}

	var change Change
	var event string
	if !found {
		if err := d.checkLimitLocked(entry.Path); err != nil {
			return ChangeNone, err
		}
		if _, err := d.gdb.Insert(tableFileEntry).Prepared(true).Rows(entry).Executor().ExecContext(ctx); err != nil {
			return ChangeNone, fmt.Errorf("failed to insert '%s': %w", entry.Path, err)
		}
		d.entries++
		change, event, payload.Operation = ChangeAdded, EventFileAdded, OpInsert
	} else {
		if _, err := d.gdb.Update(tableFileEntry).Prepared(true).
			Set(entry).
			Where(goqu.C("path").Eq(entry.Path)).
			Executor().ExecContext(ctx); err != nil {
			return ChangeNone, fmt.Errorf("failed to update '%s': %w", entry.Path, err)
		}
		change, event, payload.Operation = ChangeModified, EventFileModified, OpModify
		payload.Changed = changedAttributes(&old, &entry)
	}

	d.cachePut(entry)
	d.emitLocked(event, &payload)
	d.notify.Logf(callback.LevelDebug, "file '%s' %s", entry.Path, change)
	return change, nil
}

// RemoveFile deletes the entry for path and emits file_removed.
func (d *DB) RemoveFile(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	old, found, err := d.lookupLocked(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if _, err := d.gdb.Delete(tableFileEntry).Prepared(true).
		Where(goqu.C("path").Eq(path)).
		Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to delete '%s': %w", path, err)
	}
	d.entries--

	d.cacheRemove(path)
	d.emitRemovedLocked(old)
	d.notify.Logf(callback.LevelDebug, "file '%s' removed", path)
	return nil
}

// GetFile returns the stored entry for path or ErrNotFound.
func (d *DB) GetFile(ctx context.Context, path string) (FileEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return FileEntry{}, ErrClosed
	}

	entry, found, err := d.lookupLocked(ctx, path)
	if err != nil {
		return FileEntry{}, err
	}
	if !found {
		return FileEntry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return entry, nil
}

// CountFiles returns the number of stored entries.
func (d *DB) CountFiles(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	return d.countLocked(ctx)
}

// SearchFiles returns entries whose path matches pattern, ordered by path.
// '*' matches within one path segment and '**' across segments.
func (d *DB) SearchFiles(ctx context.Context, pattern string) ([]FileEntry, error) {
	if _, err := compileGlob(pattern); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPathFilter, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	var entries []FileEntry
	err := d.gdb.From(tableFileEntry).Prepared(true).
		Where(goqu.L("path_glob(?, ?)", pattern, goqu.C("path"))).
		Order(goqu.C("path").Asc()).
		ScanStructsContext(ctx, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to search '%s': %w", pattern, err)
	}
	return entries, nil
}

func (d *DB) lookupLocked(ctx context.Context, path string) (FileEntry, bool, error) {
	if d.cache != nil {
		if e, ok := d.cache.Get(path); ok {
			return e, true, nil
		}
	}

	var entry FileEntry
	found, err := d.gdb.From(tableFileEntry).Prepared(true).
		Where(goqu.C("path").Eq(path)).
		ScanStructContext(ctx, &entry)
	if err != nil {
		return FileEntry{}, false, fmt.Errorf("failed to read '%s': %w", path, err)
	}
	if found {
		d.cachePut(entry)
	}
	return entry, found, nil
}

func (d *DB) countLocked(ctx context.Context) (int64, error) {
	n, err := d.gdb.From(tableFileEntry).CountContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (d *DB) checkLimitLocked(path string) error {
	if d.fileLimit <= 0 {
		return nil
	}
	if d.entries >= int64(d.fileLimit) {
		d.notify.Logf(callback.LevelWarning,
			"file limit of %d entries reached, '%s' will not be monitored", d.fileLimit, path)
		return ErrFileLimitReached
	}
	return nil
}

func (d *DB) markScannedLocked(ctx context.Context, path string) error {
	_, err := d.gdb.Update(tableFileEntry).Prepared(true).
		Set(goqu.Record{"scanned": true}).
		Where(goqu.C("path").Eq(path)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark '%s' scanned: %w", path, err)
	}
	return nil
}

func (d *DB) cachePut(e FileEntry) {
	if d.cache != nil {
		d.cache.Add(e.Path, e)
	}
}

func (d *DB) cacheRemove(path string) {
	if d.cache != nil {
		d.cache.Remove(path)
	}
}

func (d *DB) emitRemovedLocked(old FileEntry) {
	d.emitLocked(EventFileRemoved, &StatePayload{
		Component: Component,
		Type:      "state",
		Operation: OpDelete,
		Timestamp: d.now().Unix(),
		Data:      old,
	})
}

// emitLocked encodes v into the scratch buffer and hands it to the sync notifier.
// The buffer is reused by the next event.
func (d *DB) emitLocked(name string, v interface{}) {
	if err := encoding.MarshalTo(&d.scratch, v); err != nil {
		d.notify.Logf(callback.LevelError, "failed to encode %s payload: %v", name, err)
		return
	}
	d.notify.Sync.NotifySync(name, d.scratch.Bytes())
	d.scratch.Reset()
}
