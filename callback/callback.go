// Package callback defines the boundary between the FIM database engine and the
// host agent. The engine reports synchronization events and log lines through two
// capabilities, SyncNotifier and LogNotifier, without knowing which transport or
// logging sink sits behind them.
//
// # Calling convention
//
// Both notifiers are fire-and-forget: they return nothing and the caller proceeds
// once the call returns. Invocation is synchronous, so any latency inside an
// implementation is paid by the caller's goroutine. Queueing, retries and
// timeouts belong to the implementation.
//
// # Payload lifetime
//
// The payload passed to NotifySync is borrowed. It is only valid until NotifySync
// returns and the producer may reuse the backing array right after. An
// implementation that needs the bytes later must copy them (see Clone).
//
// # Thread safety
//
// Implementations must be safe for concurrent use. A single fimdb.DB serialises
// its own sync notifications, but several producers may share one notifier and
// log lines can come from any goroutine.
package callback

import "fmt"

// SyncNotifier receives synchronization-relevant events from the engine.
type SyncNotifier interface {
	// NotifySync delivers an event named name with an opaque, borrowed payload.
	NotifySync(name string, payload []byte)
}

// LogNotifier receives log lines from the engine.
type LogNotifier interface {
	// NotifyLog delivers one log line at the given severity.
	NotifyLog(level Level, message string)
}

// SyncFunc adapts a plain function to SyncNotifier.
type SyncFunc func(name string, payload []byte)

// NotifySync calls f(name, payload).
func (f SyncFunc) NotifySync(name string, payload []byte) {
	f(name, payload)
}

// LogFunc adapts a plain function to LogNotifier.
type LogFunc func(level Level, message string)

// NotifyLog calls f(level, message).
func (f LogFunc) NotifyLog(level Level, message string) {
	f(level, message)
}

// NopSync discards every event.
type NopSync struct{}

func (NopSync) NotifySync(string, []byte) {}

// NopLog discards every log line.
type NopLog struct{}

func (NopLog) NotifyLog(Level, string) {}

// Notifiers is the pair of collaborators a producer receives at construction.
// Either field may be nil; Bind replaces nil slots with no-ops.
type Notifiers struct {
	Sync SyncNotifier
	Log  LogNotifier
}

// Bind returns the notifiers a producer should hold for its lifetime: nil slots
// become no-ops and both slots are wrapped so a panicking implementation cannot
// unwind into the producer. The returned value is never modified afterwards, which
// makes concurrent invocation safe without locking the slots themselves.
func (n Notifiers) Bind() Notifiers {
	logger := n.Log
	if logger == nil {
		logger = NopLog{}
	}
	syncer := n.Sync
	if syncer == nil {
		syncer = NopSync{}
	}

	guardedLog := GuardLog(logger)
	if t, ok := syncer.(*tee); ok {
		syncer = t.withLogger(guardedLog)
	}
	return Notifiers{
		Sync: GuardSync(syncer, guardedLog),
		Log:  guardedLog,
	}
}

// Logf formats and sends a log line through n.Log. It is a no-op when n.Log is nil.
func (n Notifiers) Logf(level Level, format string, args ...interface{}) {
	if n.Log == nil {
		return
	}
	n.Log.NotifyLog(level, fmt.Sprintf(format, args...))
}

// Clone copies a borrowed payload so it can outlive the NotifySync call.
// A nil payload stays nil; an empty one becomes a non-nil empty slice.
func Clone(payload []byte) []byte {
	if payload == nil {
		return nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
