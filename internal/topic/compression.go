package topic

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/FairForge/streamkeg/internal/wire"
)

// Compression identifies the algorithm a topic's stored payloads use.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionSnappy
	CompressionZstd
)

func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, wire.New(wire.KindInvalidPayload, "unknown compression algorithm %q", s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// Compress encodes payload under c. Used to shrink a batch's on-disk
// footprint before it reaches the segment append path.
func Compress(c Compression, payload []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionSnappy:
		return snappy.Encode(nil, payload), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, nil), nil
	default:
		return payload, nil
	}
}

// ValidateCompressionChoice rejects requested when it differs from deflt and
// allowOverride is false. Used both to gate a topic's own default at create
// time against the broker-wide default, and by Topic.ValidateCompression.
func ValidateCompressionChoice(requested, deflt Compression, allowOverride bool) error {
	if requested == deflt {
		return nil
	}
	if !allowOverride {
		return wire.New(wire.KindInvalidPayload, "compression algorithm %s is not the default and overriding is not allowed", requested)
	}
	return nil
}

// Decompress reverses Compress.
func Decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionSnappy:
		return snappy.Decode(nil, data)
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}
