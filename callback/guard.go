package callback

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

type guardedSync struct {
	next   SyncNotifier
	logger LogNotifier
}

// GuardSync wraps s so that a panic raised by the implementation is recovered and
// reported through logger at LevelError instead of propagating to the caller.
// logger may be nil, in which case the panic is only written to the process log.
func GuardSync(s SyncNotifier, logger LogNotifier) SyncNotifier {
	if g, ok := s.(*guardedSync); ok {
		return g
	}
	return &guardedSync{next: s, logger: logger}
}

func (g *guardedSync) NotifySync(name string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			reportSyncPanic(g.logger, name, r)
		}
	}()
	g.next.NotifySync(name, payload)
}

func reportSyncPanic(logger LogNotifier, name string, r interface{}) {
	if logger != nil {
		logger.NotifyLog(LevelError, fmt.Sprintf("sync callback panicked on event %q: %v", name, r))
		return
	}
	log.Error().Str("event", name).Interface("panic", r).Msg("Sync callback panicked")
}

type guardedLog struct {
	next LogNotifier
}

// GuardLog wraps l so that a panic raised while logging is recovered and written
// to the process logger. Logging failures never reach the caller.
func GuardLog(l LogNotifier) LogNotifier {
	if g, ok := l.(*guardedLog); ok {
		return g
	}
	return &guardedLog{next: l}
}

func (g *guardedLog) NotifyLog(level Level, message string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("level", level.String()).
				Interface("panic", r).
				Msg("Log callback panicked")
		}
	}()
	g.next.NotifyLog(level, message)
}

type tee struct {
	targets []SyncNotifier
	logger  LogNotifier
}

// Tee returns a SyncNotifier that forwards each call to every target in order.
// Nil targets are skipped. Each target sees exactly one call per event, and a
// target that panics does not keep the event from the targets after it; the
// panic is reported at LevelError through the bound log notifier when the tee
// is bound directly, otherwise to the process logger.
func Tee(targets ...SyncNotifier) SyncNotifier {
	out := make([]SyncNotifier, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			out = append(out, t)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return &tee{targets: out}
}

func (t *tee) withLogger(logger LogNotifier) *tee {
	return &tee{targets: t.targets, logger: logger}
}

func (t *tee) NotifySync(name string, payload []byte) {
	for _, target := range t.targets {
		t.deliver(target, name, payload)
	}
}

func (t *tee) deliver(target SyncNotifier, name string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			reportSyncPanic(t.logger, name, r)
		}
	}()
	target.NotifySync(name, payload)
}
