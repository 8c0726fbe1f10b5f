package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor_BelowThreshold(t *testing.T) {
	c, err := NewCompressor(1, 64)
	require.NoError(t, err)

	in := []byte("/etc/passwd")
	out, codec := c.Compress(in)
	assert.Equal(t, CodecNone, codec)
	assert.Equal(t, in, out)

	// Never aliases the input
	in[0] = 'X'
	assert.Equal(t, byte('/'), out[0])

	back, err := c.Decompress(out, codec)
	require.NoError(t, err)
	assert.Equal(t, "/etc/passwd", string(back))
}

func TestCompressor_RoundTrip(t *testing.T) {
	for level := 1; level <= 4; level++ {
		c, err := NewCompressor(level, 16)
		require.NoError(t, err)

		in := bytes.Repeat([]byte("integrity_check_global;"), 200)
		out, codec := c.Compress(in)
		assert.Equal(t, CodecZstd, codec)
		assert.Less(t, len(out), len(in))

		back, err := c.Decompress(out, codec)
		require.NoError(t, err)
		assert.Equal(t, in, back)
	}
}

func TestCompressor_UnknownCodec(t *testing.T) {
	_, err := DefaultCompressor().Decompress([]byte{1}, Codec(9))
	assert.Error(t, err)
}

func TestCompressor_CorruptData(t *testing.T) {
	_, err := DefaultCompressor().Decompress([]byte("not zstd"), CodecZstd)
	assert.Error(t, err)
}
