package publisher

import (
	"errors"
	"time"

	"github.com/maxpert/fimsync/telemetry"
	"github.com/rs/zerolog/log"
)

// Notifier is a callback.SyncNotifier that spools every accepted event.
// The borrowed payload is encoded into the spool batch before NotifySync
// returns, so it is never retained.
type Notifier struct {
	spool   *Spool
	filter  Filter
	agentID uint64
}

// NewNotifier creates a notifier writing to spool. A nil filter accepts everything.
func NewNotifier(spool *Spool, filter Filter, agentID uint64) *Notifier {
	return &Notifier{spool: spool, filter: filter, agentID: agentID}
}

// NotifySync appends the event to the spool. Failures are logged and counted,
// never returned to the producer.
func (n *Notifier) NotifySync(name string, payload []byte) {
	if n.filter != nil && !n.filter.Match(name) {
		telemetry.SyncEventsDroppedTotal.With("filtered").Inc()
		return
	}

	events := []SyncEvent{{
		Name:      name,
		Payload:   payload,
		AgentID:   n.agentID,
		Timestamp: time.Now().UnixMilli(),
	}}

	if err := n.spool.Append(events); err != nil {
		reason := "spool_error"
		if errors.Is(err, ErrSpoolClosed) {
			reason = "closed"
		}
		telemetry.SyncEventsDroppedTotal.With(reason).Inc()
		log.Error().Err(err).Str("event", name).Msg("Failed to spool sync event")
		return
	}

	telemetry.SpoolAppendsTotal.Inc()
}
