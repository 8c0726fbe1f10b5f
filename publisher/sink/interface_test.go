package sink

import (
	"errors"
	"strings"
	"testing"

	"github.com/maxpert/fimsync/cfg"
	"github.com/maxpert/fimsync/publisher"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface verification
var (
	_ publisher.Sink = (*KafkaSink)(nil)
	_ publisher.Sink = (*NatsSink)(nil)
	_ publisher.Sink = (*MockSink)(nil)
)

func TestDefaultKafkaConfig(t *testing.T) {
	config := DefaultKafkaConfig([]string{"localhost:9092", "localhost:9093"})

	assert.Len(t, config.Brokers, 2)
	assert.Equal(t, DefaultKafkaBatchSize, config.BatchSize)
	assert.Equal(t, int64(DefaultKafkaBatchBytes), config.BatchBytes)
	assert.Equal(t, kafka.RequireAll, config.RequiredAcks)
	assert.Equal(t, DefaultKafkaWriteTimeout, config.WriteTimeout)
}

func TestNewKafkaSink(t *testing.T) {
	s, err := NewKafkaSink(KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		BatchSize:    50,
		RequiredAcks: kafka.RequireOne,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 50, s.writer.BatchSize)
	assert.Equal(t, int64(DefaultKafkaBatchBytes), s.writer.BatchBytes)
	assert.Equal(t, kafka.RequireOne, s.writer.RequiredAcks)
	assert.False(t, s.writer.Async)
	assert.Equal(t, DefaultKafkaWriteTimeout, s.writeTimeout)
}

func TestNewKafkaSinkRequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{})
	assert.Error(t, err)
}

func TestKafkaFactoryAppliesBatchSize(t *testing.T) {
	snk, err := publisher.NewSink(cfg.SinkConfiguration{
		Name:      "k",
		Type:      "kafka",
		Brokers:   []string{"localhost:9092"},
		BatchSize: 7,
	})
	require.NoError(t, err)
	defer snk.Close()

	ks, ok := snk.(*KafkaSink)
	require.True(t, ok)
	assert.Equal(t, 7, ks.writer.BatchSize)
}

func TestSanitizeStreamName(t *testing.T) {
	assert.Equal(t, "plain", sanitizeStreamName("plain"))
	assert.Equal(t, "fimsync_file_added", sanitizeStreamName("fimsync_file_added"))

	dotted := sanitizeStreamName("fimsync.file_added")
	assert.True(t, strings.HasPrefix(dotted, "fimsync_file_added_"), dotted)
	assert.Len(t, dotted, len("fimsync_file_added_")+8)
	assert.Equal(t, dotted, sanitizeStreamName("fimsync.file_added"))

	wild := sanitizeStreamName("a.*.c")
	assert.True(t, strings.HasPrefix(wild, "a___c_"), wild)
	assert.NotContains(t, wild, ".")
	assert.NotContains(t, wild, "*")
}

func TestSanitizeStreamNameKeepsSubjectsApart(t *testing.T) {
	subjects := []string{
		"fimsync.file_added",
		"fimsync_file_added",
		"fimsync.file.added",
		"fimsync_file.added",
	}
	seen := make(map[string]string, len(subjects))
	for _, subject := range subjects {
		name := sanitizeStreamName(subject)
		if prev, ok := seen[name]; ok {
			t.Fatalf("subjects %q and %q share stream %q", prev, subject, name)
		}
		seen[name] = subject
	}
}

func TestNatsFactoryRequiresURL(t *testing.T) {
	_, err := publisher.NewSink(cfg.SinkConfiguration{Name: "n", Type: "nats"})
	assert.Error(t, err)
}

func TestMockSinkRecordsCopies(t *testing.T) {
	m := &MockSink{}
	value := []byte("payload")
	require.NoError(t, m.Publish("fimsync.file_added", "1", value))
	value[0] = 'X'

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "payload", string(msgs[0].Value))

	m.SetPublishError(errors.New("down"))
	assert.Error(t, m.Publish("t", "k", nil))
	m.SetPublishError(nil)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	m.Reset()
	assert.Empty(t, m.Messages())
	assert.False(t, m.Closed())
}

func TestRegisterMockSharesInstance(t *testing.T) {
	a := RegisterMock("shared")
	b := RegisterMock("shared")
	assert.Same(t, a, b)
	assert.NotSame(t, a, RegisterMock("other"))
}
