package transformer

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/maxpert/fimsync/encoding"
	"github.com/maxpert/fimsync/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface verification
var (
	_ publisher.Transformer = (*JSONTransformer)(nil)
	_ publisher.Transformer = RawTransformer{}
)

func TestJSONTransformerDecodesMsgpackPayload(t *testing.T) {
	payload, err := encoding.Marshal(map[string]interface{}{
		"component": "fim_file",
		"op":        "insert",
		"data": map[string]interface{}{
			"path": "/etc/passwd",
			"size": 1024,
		},
	})
	require.NoError(t, err)

	out, err := NewJSONTransformer().Transform(publisher.SyncEvent{
		SeqNum:    9,
		Name:      "file_added",
		Payload:   payload,
		AgentID:   255,
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &env))

	assert.Equal(t, "file_added", env["event"])
	assert.Equal(t, float64(9), env["seq"])
	assert.Equal(t, "ff", env["agent_id"])
	assert.Equal(t, float64(1700000000000), env["ts_ms"])
	assert.NotContains(t, env, "raw")

	data := env["data"].(map[string]interface{})
	assert.Equal(t, "insert", data["op"])
	inner := data["data"].(map[string]interface{})
	assert.Equal(t, "/etc/passwd", inner["path"])
	assert.Equal(t, float64(1024), inner["size"])
}

func TestJSONTransformerFallsBackToRaw(t *testing.T) {
	tr := NewJSONTransformer()

	for _, payload := range [][]byte{
		[]byte("/etc/passwd"),
		{0xc1},
	} {
		out, err := tr.Transform(publisher.SyncEvent{Name: "file_added", Payload: payload})
		require.NoError(t, err)

		var env map[string]interface{}
		require.NoError(t, json.Unmarshal(out, &env))
		assert.NotContains(t, env, "data")

		raw, err := base64.StdEncoding.DecodeString(env["raw"].(string))
		require.NoError(t, err)
		assert.Equal(t, payload, raw)
	}
}

func TestJSONTransformerEmptyPayload(t *testing.T) {
	out, err := NewJSONTransformer().Transform(publisher.SyncEvent{Name: "integrity_clear"})
	require.NoError(t, err)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, "integrity_clear", env["event"])
	assert.NotContains(t, env, "data")
	assert.NotContains(t, env, "raw")
}

func TestRawTransformerPassesThrough(t *testing.T) {
	payload := []byte{0x81, 0xa1, 'a', 0x01}
	out, err := RawTransformer{}.Transform(publisher.SyncEvent{Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
