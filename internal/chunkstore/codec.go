package chunkstore

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// codec encodes chunk payloads. zstd encoders and decoders are safe for
// concurrent EncodeAll/DecodeAll, so one pair serves the whole store.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) encode(comp Compression, raw []byte) ([]byte, error) {
	switch comp {
	case CompressionZstd:
		return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case CompressionNone, "":
		return bytes.Clone(raw), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", comp)
	}
}

func (c *codec) decode(comp Compression, data []byte, rawSize int) ([]byte, error) {
	switch comp {
	case CompressionZstd:
		out, err := c.dec.DecodeAll(data, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: decompress chunk: %v", ErrCorrupt, err)
		}
		return out, nil
	case CompressionNone, "":
		return data, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", comp)
	}
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
