package publisher

import "github.com/maxpert/fimsync/encoding"

// SyncEvent is one spooled sync notification
type SyncEvent struct {
	SeqNum    uint64         `msgpack:"seq"`   // Monotonic sequence
	Name      string         `msgpack:"name"`  // Event name, e.g. file_added
	Payload   []byte         `msgpack:"data"`  // Owned copy of the producer payload
	Codec     encoding.Codec `msgpack:"codec"` // Payload encoding at rest
	AgentID   uint64         `msgpack:"agent"` // Originating agent
	Timestamp int64          `msgpack:"ts"`    // Spool time (unix ms)
}

// Sink represents a destination for sync events (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends an event to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Transformer converts sync events to sink-specific formats
type Transformer interface {
	// Transform converts an event to bytes for publishing
	Transform(event SyncEvent) ([]byte, error)
}

// Filter determines whether an event should be spooled or published
type Filter interface {
	// Match returns true if the event name is accepted
	Match(name string) bool
}
