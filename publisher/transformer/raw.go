package transformer

import "github.com/maxpert/fimsync/publisher"

func init() {
	publisher.RegisterTransformer("raw", func() publisher.Transformer {
		return RawTransformer{}
	})
}

// RawTransformer publishes the producer payload unchanged
type RawTransformer struct{}

// Transform returns event.Payload as-is
func (RawTransformer) Transform(event publisher.SyncEvent) ([]byte, error) {
	return event.Payload, nil
}
