package callback

import "sync"

// SyncRecord is one captured NotifySync call.
type SyncRecord struct {
	Name    string
	Payload []byte
}

// LogRecord is one captured NotifyLog call.
type LogRecord struct {
	Level   Level
	Message string
}

// Recorder implements both notifiers by keeping copies of every call in memory.
// It is safe for concurrent use and intended for tests.
type Recorder struct {
	mu   sync.Mutex
	sync []SyncRecord
	logs []LogRecord
}

// NotifySync records a copy of the event.
func (r *Recorder) NotifySync(name string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync = append(r.sync, SyncRecord{Name: name, Payload: Clone(payload)})
}

// NotifyLog records the log line.
func (r *Recorder) NotifyLog(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, LogRecord{Level: level, Message: message})
}

// SyncEvents returns a snapshot of captured sync events in arrival order.
func (r *Recorder) SyncEvents() []SyncRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SyncRecord, len(r.sync))
	copy(out, r.sync)
	return out
}

// Logs returns a snapshot of captured log lines in arrival order.
func (r *Recorder) Logs() []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogRecord, len(r.logs))
	copy(out, r.logs)
	return out
}

// LogsAt returns captured log lines with the given level.
func (r *Recorder) LogsAt(level Level) []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LogRecord
	for _, l := range r.logs {
		if l.Level == level {
			out = append(out, l)
		}
	}
	return out
}

// Reset clears everything captured so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync = nil
	r.logs = nil
}
