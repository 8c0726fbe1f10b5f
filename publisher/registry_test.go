package publisher_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/cfg"
	"github.com/maxpert/fimsync/publisher"
	"github.com/maxpert/fimsync/publisher/sink"
	_ "github.com/maxpert/fimsync/publisher/transformer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRequiresDataDir(t *testing.T) {
	_, err := publisher.NewRegistry(publisher.RegistryConfig{})
	assert.Error(t, err)
}

func TestRegistryRejectsUnknownSinkAndFormat(t *testing.T) {
	_, err := publisher.NewRegistry(publisher.RegistryConfig{
		DataDir:     t.TempDir(),
		SinkConfigs: []cfg.SinkConfiguration{{Name: "x", Type: "carrier-pigeon", Format: "json"}},
	})
	assert.Error(t, err)

	_, err = publisher.NewRegistry(publisher.RegistryConfig{
		DataDir:     t.TempDir(),
		SinkConfigs: []cfg.SinkConfiguration{{Name: "reg-bad-format", Type: "mock", Format: "avro"}},
	})
	assert.Error(t, err)
	assert.True(t, sink.RegisterMock("reg-bad-format").Closed())
}

func TestRegistryEndToEnd(t *testing.T) {
	jsonSink := sink.RegisterMock("reg-e2e-json")
	rawSink := sink.RegisterMock("reg-e2e-raw")
	jsonSink.Reset()
	rawSink.Reset()

	registry, err := publisher.NewRegistry(publisher.RegistryConfig{
		DataDir: t.TempDir(),
		AgentID: 0x10,
		Spool: cfg.SpoolConfiguration{
			CompressionLevel:     1,
			CompressionThreshold: 16,
			FilterEvents:         []string{"file_*", "integrity_*"},
		},
		SinkConfigs: []cfg.SinkConfiguration{
			{Name: "reg-e2e-json", Type: "mock", Format: "json", TopicPrefix: "fimsync", PollIntervalMS: 5},
			{Name: "reg-e2e-raw", Type: "mock", Format: "raw", FilterEvents: []string{"file_removed"}, PollIntervalMS: 5},
		},
	})
	require.NoError(t, err)
	require.NoError(t, registry.Start())
	assert.Error(t, registry.Start())

	var notifier callback.SyncNotifier = registry.Notifier()
	notifier.NotifySync("file_added", []byte("/etc/passwd"))
	notifier.NotifySync("registry_value_added", []byte("HKLM"))
	notifier.NotifySync("file_removed", []byte("/tmp/x"))

	require.Eventually(t, func() bool {
		return len(jsonSink.Messages()) == 2 && len(rawSink.Messages()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	msgs := jsonSink.Messages()
	assert.Equal(t, "fimsync.file_added", msgs[0].Topic)
	assert.Equal(t, "10", msgs[0].Key)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[1].Value, &env))
	assert.Equal(t, "file_removed", env["event"])

	raw := rawSink.Messages()
	assert.Equal(t, "file_removed", raw[0].Topic)
	assert.Equal(t, "/tmp/x", string(raw[0].Value))

	registry.Stop()
	registry.Stop()
	assert.True(t, jsonSink.Closed())

	// Events after Stop are dropped without panicking
	assert.NotPanics(t, func() { notifier.NotifySync("file_added", []byte("late")) })
}

func TestRegistryAddSinkWhileRunning(t *testing.T) {
	late := sink.RegisterMock("reg-late")
	late.Reset()

	registry, err := publisher.NewRegistry(publisher.RegistryConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, registry.Start())
	defer registry.Stop()

	registry.Notifier().NotifySync("file_added", []byte("a"))
	require.NoError(t, registry.AddSink(cfg.SinkConfiguration{
		Name: "reg-late", Type: "mock", Format: "raw", PollIntervalMS: 5,
	}))

	require.Eventually(t, func() bool { return len(late.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), registry.Spool().LastSeq())
}
