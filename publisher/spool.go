package publisher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/fimsync/encoding"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble storage
const (
	prefixSpool       = "/spool/"       // /spool/{16-digit-zero-padded-seq}
	prefixSpoolCursor = "/spoolcursor/" // /spoolcursor/{sinkName}
	keySpoolSeq       = "/spoolseq"     // /spoolseq -> uint64 (last sequence)
)

// Pebble configuration constants. Sync events are small and bursty (a full
// rescan), so the memtable is much smaller than a database-sized log would need.
const (
	memTableSize                = 16 << 20 // 16MB
	memTableStopWritesThreshold = 4
	l0CompactionThreshold       = 2
	l0StopWritesThreshold       = 12
	lBaseMaxBytes               = 64 << 20 // 64MB
	maxConcurrentCompactions    = 2
)

// Read and cleanup constants
const (
	defaultReadLimit    = 100  // Default limit for ReadFrom
	cleanupIntervalMask = 0x7F // Cleanup every 128 sequences (newSeq & cleanupIntervalMask == 0)
)

// ErrSpoolClosed is returned by every operation after Close
var ErrSpoolClosed = errors.New("spool is closed")

// Spool provides a Pebble-backed append-only log of sync events
type Spool struct {
	db         *pebble.DB
	path       string
	compressor *encoding.Compressor

	// In-memory cursor map for fast lookups
	cursors   map[string]uint64
	cursorsMu sync.RWMutex

	// Last assigned sequence number; appendMu keeps numbering in call order
	lastSeq  atomic.Uint64
	appendMu sync.Mutex

	// Cleanup tracking
	cleanupMu      sync.Mutex
	cleanupRunning atomic.Bool
	cleanupWg      sync.WaitGroup

	closed atomic.Bool
}

// NewSpool creates or opens the spool under dataDir/spool. A nil compressor
// stores payloads uncompressed.
func NewSpool(dataDir string, compressor *encoding.Compressor) (*Spool, error) {
	spoolPath := filepath.Join(dataDir, "spool")

	opts := &pebble.Options{
		MemTableSize:                memTableSize,
		MemTableStopWritesThreshold: memTableStopWritesThreshold,
		L0CompactionThreshold:       l0CompactionThreshold,
		L0StopWritesThreshold:       l0StopWritesThreshold,
		LBaseMaxBytes:               lBaseMaxBytes,
		MaxConcurrentCompactions:    func() int { return maxConcurrentCompactions },
	}

	db, err := pebble.Open(spoolPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool at %s: %w", spoolPath, err)
	}

	s := &Spool{
		db:         db,
		path:       spoolPath,
		compressor: compressor,
		cursors:    make(map[string]uint64),
	}

	if err := s.loadLastSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sequence number: %w", err)
	}

	if err := s.loadCursors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}

	return s, nil
}

func (s *Spool) loadLastSeq() error {
	val, closer, err := s.db.Get([]byte(keySpoolSeq))
	if err == pebble.ErrNotFound {
		s.lastSeq.Store(0)
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()

	if len(val) != 8 {
		return fmt.Errorf("invalid sequence value length: %d", len(val))
	}

	s.lastSeq.Store(binary.LittleEndian.Uint64(val))
	return nil
}

func (s *Spool) loadCursors() error {
	prefix := []byte(prefixSpoolCursor)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	count := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		name := string(iter.Key()[len(prefixSpoolCursor):])
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if len(val) != 8 {
			return fmt.Errorf("corrupted cursor data for sink %s: invalid length %d", name, len(val))
		}

		s.cursors[name] = binary.LittleEndian.Uint64(val)
		count++
	}

	if err := iter.Error(); err != nil {
		return err
	}

	if count > 0 {
		log.Info().Int("cursors", count).Msg("Loaded spool cursors")
	}

	return nil
}

// Append stores events and assigns their sequence numbers.
// Note: This function modifies the input slice by setting SeqNum on each event.
func (s *Spool) Append(events []SyncEvent) error {
	if len(events) == 0 {
		return nil
	}

	if s.closed.Load() {
		return ErrSpoolClosed
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	if s.closed.Load() {
		return ErrSpoolClosed
	}

	seq := s.lastSeq.Load()

	batch := s.db.NewBatch()
	defer batch.Close()

	for i := range events {
		seq++
		events[i].SeqNum = seq

		stored := events[i]
		if s.compressor != nil && stored.Payload != nil {
			stored.Payload, stored.Codec = s.compressor.Compress(stored.Payload)
		}

		val, err := encoding.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		if err := batch.Set([]byte(formatSpoolKey(seq)), val, nil); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}

	seqBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqBuf, seq)
	if err := batch.Set([]byte(keySpoolSeq), seqBuf, nil); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	// Only publish the new sequence AFTER successful commit
	s.lastSeq.Store(seq)

	return nil
}

// ReadFrom reads events after cursor, up to limit events, with payloads decoded
func (s *Spool) ReadFrom(cursor uint64, limit int) ([]SyncEvent, error) {
	if s.closed.Load() {
		return nil, ErrSpoolClosed
	}

	if limit <= 0 {
		limit = defaultReadLimit
	}

	// Start from cursor + 1 (cursor is the last processed event)
	startKey := []byte(formatSpoolKey(cursor + 1))

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: startKey,
		UpperBound: prefixUpperBound([]byte(prefixSpool)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	events := make([]SyncEvent, 0, limit)
	for iter.SeekGE(startKey); iter.Valid() && len(events) < limit; iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var event SyncEvent
		if err := encoding.Unmarshal(val, &event); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Failed to unmarshal spooled event")
			continue
		}

		if event.Codec != encoding.CodecNone {
			if s.compressor == nil {
				log.Warn().Uint64("seq", event.SeqNum).Msg("Compressed event in spool opened without compressor")
				continue
			}
			event.Payload, err = s.compressor.Decompress(event.Payload, event.Codec)
			if err != nil {
				log.Warn().Err(err).Uint64("seq", event.SeqNum).Msg("Failed to decompress spooled event")
				continue
			}
			event.Codec = encoding.CodecNone
		}

		events = append(events, event)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return events, nil
}

// LastSeq returns the highest sequence number assigned so far
func (s *Spool) LastSeq() uint64 {
	return s.lastSeq.Load()
}

// Backlog returns how many events the slowest known sink has not acknowledged
func (s *Spool) Backlog() uint64 {
	last := s.lastSeq.Load()

	s.cursorsMu.RLock()
	defer s.cursorsMu.RUnlock()
	if len(s.cursors) == 0 {
		return last
	}

	minCursor := ^uint64(0)
	for _, c := range s.cursors {
		if c < minCursor {
			minCursor = c
		}
	}
	if minCursor >= last {
		return 0
	}
	return last - minCursor
}

// GetCursor returns the current cursor for a sink
func (s *Spool) GetCursor(sinkName string) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrSpoolClosed
	}

	s.cursorsMu.RLock()
	cursor, exists := s.cursors[sinkName]
	s.cursorsMu.RUnlock()

	if exists {
		return cursor, nil
	}

	val, closer, err := s.db.Get([]byte(prefixSpoolCursor + sinkName))
	if err == pebble.ErrNotFound {
		return 0, nil // New sink - start from beginning
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, fmt.Errorf("invalid cursor value length: %d", len(val))
	}
	cursor = binary.LittleEndian.Uint64(val)

	s.cursorsMu.Lock()
	defer s.cursorsMu.Unlock()
	if existing, exists := s.cursors[sinkName]; exists {
		return existing, nil
	}
	s.cursors[sinkName] = cursor
	return cursor, nil
}

// AdvanceCursor updates the cursor for a sink and triggers cleanup periodically
func (s *Spool) AdvanceCursor(sinkName string, newSeq uint64) error {
	if s.closed.Load() {
		return ErrSpoolClosed
	}

	s.cursorsMu.Lock()
	s.cursors[sinkName] = newSeq
	s.cursorsMu.Unlock()

	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, newSeq)
	if err := s.db.Set([]byte(prefixSpoolCursor+sinkName), val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	if newSeq&cleanupIntervalMask == 0 {
		if s.cleanupRunning.CompareAndSwap(false, true) {
			s.cleanupWg.Add(1)
			go s.cleanupAsync()
		}
	}

	return nil
}

// cleanup deletes spooled events at or below the minimum cursor.
// Safe to call directly from tests.
func (s *Spool) cleanup() {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	if s.closed.Load() {
		return
	}

	s.cursorsMu.RLock()
	if len(s.cursors) == 0 {
		s.cursorsMu.RUnlock()
		return
	}
	minCursor := ^uint64(0)
	for _, c := range s.cursors {
		if c < minCursor {
			minCursor = c
		}
	}
	s.cursorsMu.RUnlock()

	if minCursor == 0 {
		return
	}

	// DeleteRange end is exclusive, so minCursor itself goes too
	start := []byte(prefixSpool)
	end := []byte(formatSpoolKey(minCursor + 1))
	if err := s.db.DeleteRange(start, end, pebble.Sync); err != nil {
		log.Warn().Err(err).Uint64("min_cursor", minCursor).Msg("Failed to cleanup spool")
		return
	}

	log.Debug().Uint64("min_cursor", minCursor).Msg("Cleaned up spool entries")
}

func (s *Spool) cleanupAsync() {
	defer s.cleanupWg.Done()
	defer s.cleanupRunning.Store(false)
	s.cleanup()
}

// Close closes the Pebble database and waits for in-flight cleanup goroutines
func (s *Spool) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrSpoolClosed
	}

	s.cleanupWg.Wait()

	// Serialise with a concurrent Append that passed the closed check
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	return s.db.Close()
}

func formatSpoolKey(seq uint64) string {
	return fmt.Sprintf("%s%016x", prefixSpool, seq)
}

// prefixUpperBound returns the upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil
}
