// Package message defines the on-disk/wire record format shared by segments,
// partitions, topics and the command codec: Message record.
package message

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/FairForge/streamkeg/internal/wire"
)

// State tags a stored message's lifecycle. Only Available is produced today;
// Tombstone is reserved for a future compaction pass and is never written by
// the current append path.
type State uint8

const (
	Available State = 1
	Tombstone State = 2
)

// ID is the producer-chosen 128-bit message id. The zero value means "none",
// and dedup only ever considers non-zero ids.
type ID [16]byte

// IsZero reports whether the id is the "none" sentinel.
func (id ID) IsZero() bool { return id == ID{} }

// Header is a single message header entry.
type Header struct {
	Key   string
	Value string
}

// Message is one record appended to a partition.
type Message struct {
	Offset    uint64
	State     State
	Timestamp uint64 // microseconds since epoch
	ID        ID
	Headers   []Header
	Payload   []byte
}

// fixedHeaderSize is the size, in bytes, of every field up to and including
// headers_length: offset(8) + state(1) + timestamp(8) + id(16) + checksum(4) + headers_length(4).
const fixedHeaderSize = 8 + 1 + 8 + 16 + 4 + 4

// EncodedSize returns the exact number of bytes Encode will produce.
func (m *Message) EncodedSize() int {
	headersLen := encodedHeadersLen(m.Headers)
	return fixedHeaderSize + headersLen + 4 + len(m.Payload)
}

func encodedHeadersLen(headers []Header) int {
	n := 0 // the 4-byte header count is headers_length, already in fixedHeaderSize
	for _, h := range headers {
		n += 1 + len(h.Key) + 4 + len(h.Value)
	}
	return n
}

func appendHeaders(dst []byte, headers []Header) []byte {
	dst = wire.AppendUint32(dst, uint32(len(headers)))
	for _, h := range headers {
		// Header keys reuse the short-string convention; values use the
		// long-bytes convention since header values are closer in spirit
		// to payload bytes than to metadata names.
		dst, _ = wire.AppendShortString(dst, h.Key)
		dst = wire.AppendLongBytes(dst, []byte(h.Value))
	}
	return dst
}

func readHeaders(b []byte) ([]Header, int, error) {
	count, err := wire.ReadUint32(b)
	if err != nil {
		return nil, 0, err
	}
	off := 4
	headers := make([]Header, 0, count)
	for i := uint32(0); i < count; i++ {
		key, n, err := wire.ReadShortString(b[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		val, n, err := wire.ReadLongBytes(b[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		headers = append(headers, Header{Key: key, Value: string(val)})
	}
	return headers, off, nil
}

// Encode appends the on-disk/wire form of m to dst. The checksum covers every
// byte written after the checksum field itself (headers_length onward).
func (m *Message) Encode(dst []byte) []byte {
	start := len(dst)
	dst = wire.AppendUint64(dst, m.Offset)
	dst = append(dst, byte(m.State))
	dst = wire.AppendUint64(dst, m.Timestamp)
	dst = append(dst, m.ID[:]...)
	checksumPos := len(dst)
	dst = wire.AppendUint32(dst, 0) // placeholder, patched below
	tailStart := len(dst)
	dst = appendHeaders(dst, m.Headers)
	dst = wire.AppendLongBytes(dst, m.Payload)
	checksum := crc32.ChecksumIEEE(dst[tailStart:])
	binary.LittleEndian.PutUint32(dst[checksumPos:checksumPos+4], checksum)
	_ = start
	return dst
}

// Decode reads a single Message from the front of b, returning the message
// and the number of bytes consumed. A checksum mismatch is reported via
// *wire.Error with KindChecksumMismatch; the caller (segment.read) decides
// whether to skip the record and keep scanning.
func Decode(b []byte) (*Message, int, error) {
	if len(b) < fixedHeaderSize {
		return nil, 0, wire.New(wire.KindInvalidPayload, "truncated message header")
	}
	m := &Message{}
	off := 0
	offset, err := wire.ReadUint64(b[off:])
	if err != nil {
		return nil, 0, err
	}
	m.Offset = offset
	off += 8
	m.State = State(b[off])
	off++
	ts, err := wire.ReadUint64(b[off:])
	if err != nil {
		return nil, 0, err
	}
	m.Timestamp = ts
	off += 8
	copy(m.ID[:], b[off:off+16])
	off += 16
	wantChecksum, err := wire.ReadUint32(b[off:])
	if err != nil {
		return nil, 0, err
	}
	off += 4
	tailStart := off

	headers, n, err := readHeaders(b[off:])
	if err != nil {
		return nil, 0, err
	}
	m.Headers = headers
	off += n

	payload, n, err := wire.ReadLongBytes(b[off:])
	if err != nil {
		return nil, 0, err
	}
	m.Payload = append([]byte(nil), payload...)
	off += n

	gotChecksum := crc32.ChecksumIEEE(b[tailStart:off])
	if gotChecksum != wantChecksum {
		return nil, off, wire.New(wire.KindChecksumMismatch, "message at offset %d: checksum mismatch", m.Offset)
	}

	return m, off, nil
}
