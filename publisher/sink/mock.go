package sink

import (
	"sync"

	"github.com/maxpert/fimsync/cfg"
	"github.com/maxpert/fimsync/publisher"
)

func init() {
	publisher.RegisterSink("mock", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		return RegisterMock(config.Name), nil
	})
}

var (
	mocks   = make(map[string]*MockSink)
	mocksMu sync.Mutex
)

// RegisterMock returns the MockSink registered under name, creating it if needed.
// Sinks of type "mock" built by the registry resolve to the same instance.
func RegisterMock(name string) *MockSink {
	mocksMu.Lock()
	defer mocksMu.Unlock()
	if m, ok := mocks[name]; ok {
		return m
	}
	m := &MockSink{}
	mocks[name] = m
	return m
}

// MockSink is an in-memory Sink for tests
type MockSink struct {
	mu         sync.Mutex
	messages   []MockMessage
	publishErr error
	closed     bool
}

// MockMessage represents a published message for testing
type MockMessage struct {
	Topic string
	Key   string
	Value []byte
}

// Publish records a copy of the message
func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishErr != nil {
		return m.publishErr
	}

	m.messages = append(m.messages, MockMessage{
		Topic: topic,
		Key:   key,
		Value: append([]byte(nil), value...),
	})
	return nil
}

// SetPublishError makes subsequent Publish calls fail with err (nil clears it)
func (m *MockSink) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// Messages returns a snapshot of published messages
func (m *MockSink) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Closed reports whether Close was called
func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the sink closed
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Reset clears all recorded messages
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.closed = false
}
