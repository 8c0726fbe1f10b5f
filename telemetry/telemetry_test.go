package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/cfg"
)

func scrape(t *testing.T) string {
	t.Helper()
	handler := GetMetricsHandler()
	require.NotNil(t, handler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func enableTelemetry(t *testing.T) {
	t.Helper()
	original := *cfg.Config
	cfg.Config.Prometheus.Enabled = true
	cfg.Config.AgentID = 7
	InitializeTelemetry()
	InitMetrics()

	t.Cleanup(func() {
		*cfg.Config = original
		registry = nil
		InitMetrics()
	})
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	original := *cfg.Config
	defer func() { *cfg.Config = original }()

	cfg.Config.Prometheus.Enabled = false
	InitializeTelemetry()
	InitMetrics()

	assert.Nil(t, GetMetricsHandler())
	assert.NotPanics(t, func() {
		SyncEventsTotal.With("file_added").Inc()
		FileEntries.Set(3)
		PublishDurationSeconds.With("kafka").Observe(0.1)
	})
}

func TestInstrumentedNotifiersCount(t *testing.T) {
	enableTelemetry(t)

	rec := &callback.Recorder{}
	syncer := InstrumentSync(rec)
	logger := InstrumentLog(rec)

	syncer.NotifySync("file_added", []byte("a"))
	syncer.NotifySync("file_added", []byte("b"))
	syncer.NotifySync("file_removed", nil)
	logger.NotifyLog(callback.LevelWarning, "disk usage high")

	assert.Len(t, rec.SyncEvents(), 3)
	assert.Len(t, rec.Logs(), 1)

	body := scrape(t)
	assert.Contains(t, body, `fimsync_sync_events_total{agent_id="7",name="file_added"} 2`)
	assert.Contains(t, body, `fimsync_sync_events_total{agent_id="7",name="file_removed"} 1`)
	assert.Contains(t, body, `fimsync_log_lines_total{agent_id="7",level="warning"} 1`)
}

type fakeCounter struct{ n int64 }

func (f fakeCounter) CountFiles(context.Context) (int64, error) { return f.n, nil }

type fakeBacklog struct{ n uint64 }

func (f fakeBacklog) Backlog() uint64 { return f.n }

func TestMetricsCollectorUpdatesGauges(t *testing.T) {
	enableTelemetry(t)

	mc := NewMetricsCollector(fakeCounter{n: 42}, fakeBacklog{n: 5}, time.Hour)
	mc.Start()
	mc.Stop()

	body := scrape(t)
	assert.Contains(t, body, `fimsync_file_entries{agent_id="7"} 42`)
	assert.Contains(t, body, `fimsync_spool_backlog{agent_id="7"} 5`)
}
