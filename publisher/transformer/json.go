// Package transformer provides implementations of the publisher.Transformer interface
// for converting spooled sync events to sink-specific formats.
package transformer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/maxpert/fimsync/publisher"
	"github.com/vmihailenco/msgpack/v5"
)

func init() {
	publisher.RegisterTransformer("json", func() publisher.Transformer {
		return NewJSONTransformer()
	})
}

// JSONTransformer wraps each event in a JSON envelope. Payloads that are a
// complete msgpack map are decoded into the "data" object; anything else is
// carried base64-encoded in "raw".
type JSONTransformer struct{}

// NewJSONTransformer creates a new JSON transformer
func NewJSONTransformer() *JSONTransformer {
	return &JSONTransformer{}
}

type jsonEnvelope struct {
	Event   string                 `json:"event"`
	Seq     uint64                 `json:"seq"`
	AgentID string                 `json:"agent_id"`
	TsMs    int64                  `json:"ts_ms"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Raw     string                 `json:"raw,omitempty"`
}

// Transform converts an event to its JSON envelope
func (j *JSONTransformer) Transform(event publisher.SyncEvent) ([]byte, error) {
	env := jsonEnvelope{
		Event:   event.Name,
		Seq:     event.SeqNum,
		AgentID: strconv.FormatUint(event.AgentID, 16),
		TsMs:    event.Timestamp,
	}

	if len(event.Payload) > 0 {
		if data, ok := decodeMsgpackMap(event.Payload); ok {
			env.Data = data
		} else {
			env.Raw = base64.StdEncoding.EncodeToString(event.Payload)
		}
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return out, nil
}

// decodeMsgpackMap decodes payload as one msgpack map with string keys and
// nothing trailing.
func decodeMsgpackMap(payload []byte) (map[string]interface{}, bool) {
	r := bytes.NewReader(payload)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil || r.Len() != 0 || out == nil {
		return nil, false
	}
	return out, true
}
