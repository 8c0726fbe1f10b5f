package encoding

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec identifies how a stored payload is encoded
type Codec uint8

const (
	CodecNone Codec = 0
	CodecZstd Codec = 1
)

// Compressor zstd-compresses payloads above a size threshold.
// EncodeAll/DecodeAll on a shared encoder/decoder are safe for concurrent use.
type Compressor struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

var (
	defaultCompressor     *Compressor
	defaultCompressorOnce sync.Once
)

// DefaultCompressor returns a process-wide compressor at the fastest level with a
// 1KB threshold.
func DefaultCompressor() *Compressor {
	defaultCompressorOnce.Do(func() {
		c, err := NewCompressor(1, 1024)
		if err != nil {
			panic("failed to create zstd compressor: " + err.Error())
		}
		defaultCompressor = c
	})
	return defaultCompressor
}

// NewCompressor creates a compressor. level is 1-4 (fastest to best);
// payloads shorter than threshold bytes are stored as-is.
func NewCompressor(level, threshold int) (*Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(levelToZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Compressor{threshold: threshold, enc: enc, dec: dec}, nil
}

// Compress returns the encoded form of data and the codec used.
// The returned slice never aliases data.
func (c *Compressor) Compress(data []byte) ([]byte, Codec) {
	if len(data) < c.threshold {
		out := make([]byte, len(data))
		copy(out, data)
		return out, CodecNone
	}
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2)), CodecZstd
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecZstd:
		out, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown payload codec: %d", codec)
	}
}

// levelToZstd maps config levels (1-4) to zstd.EncoderLevel
func levelToZstd(level int) zstd.EncoderLevel {
	switch level {
	case 2:
		return zstd.SpeedDefault
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedFastest
	}
}
