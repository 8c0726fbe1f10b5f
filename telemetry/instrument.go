package telemetry

import "github.com/maxpert/fimsync/callback"

type syncCounter struct {
	next callback.SyncNotifier
}

// InstrumentSync counts every sync notification by name before passing it on.
func InstrumentSync(next callback.SyncNotifier) callback.SyncNotifier {
	return &syncCounter{next: next}
}

func (s *syncCounter) NotifySync(name string, payload []byte) {
	SyncEventsTotal.With(name).Inc()
	s.next.NotifySync(name, payload)
}

type logCounter struct {
	next callback.LogNotifier
}

// InstrumentLog counts every log notification by level before passing it on.
func InstrumentLog(next callback.LogNotifier) callback.LogNotifier {
	return &logCounter{next: next}
}

func (l *logCounter) NotifyLog(level callback.Level, message string) {
	LogLinesTotal.With(level.String()).Inc()
	l.next.NotifyLog(level, message)
}
