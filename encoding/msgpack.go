// Package encoding provides centralized serialization for fimsync.
// Every msgpack payload that crosses the sync boundary or lands in the spool goes
// through this package so field tags and decoding options stay consistent.
//
// Thread Safety: Marshal, MarshalTo and Unmarshal are safe for concurrent use.
// MarshalTo writes into a caller-owned buffer, which the caller must not share.
package encoding

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes a value to msgpack format.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := MarshalTo(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalTo resets buf and encodes v into it. The engine uses this to build sync
// payloads in a reusable scratch buffer, so the bytes are only valid until the
// next call.
func MarshalTo(buf *bytes.Buffer, v interface{}) error {
	buf.Reset()
	enc := msgpack.NewEncoder(buf)
	return enc.Encode(v)
}

// Unmarshal decodes msgpack data using loose interface decoding.
// When decoding into interface{}, strings stay Go strings instead of []byte.
func Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}
