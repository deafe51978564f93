package wire

import "encoding/binary"

// Little-endian integer helpers. Every multi-byte integer on the wire and
// in on-disk records is little-endian.

func appendUint32LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendUint64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendUint32 appends a little-endian u32.
func AppendUint32(dst []byte, v uint32) []byte { return appendUint32LE(dst, v) }

// AppendUint64 appends a little-endian u64.
func AppendUint64(dst []byte, v uint64) []byte { return appendUint64LE(dst, v) }

func readUint32LE(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func readUint64LE(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// ReadUint32 reads a little-endian u32 from the front of b.
func ReadUint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, New(KindInvalidPayload, "need 4 bytes for u32, have %d", len(b))
	}
	return readUint32LE(b), nil
}

// ReadUint64 reads a little-endian u64 from the front of b.
func ReadUint64(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, New(KindInvalidPayload, "need 8 bytes for u64, have %d", len(b))
	}
	return readUint64LE(b), nil
}

const maxShortString = 255

// AppendShortString appends a metadata string as `u8 length | utf8`. This
// applies to every string field except message payloads/headers, which use
// u32 lengths.
func AppendShortString(dst []byte, s string) ([]byte, error) {
	if len(s) > maxShortString {
		return nil, New(KindInvalidPayload, "string exceeds %d bytes", maxShortString)
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...), nil
}

// ReadShortString reads a `u8 length | utf8` string from the front of b,
// returning the string and the number of bytes consumed.
func ReadShortString(b []byte) (string, int, error) {
	if len(b) < 1 {
		return "", 0, New(KindInvalidPayload, "truncated string length")
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", 0, New(KindInvalidPayload, "truncated string payload")
	}
	return string(b[1 : 1+n]), 1 + n, nil
}

// AppendLongBytes appends a `u32 length | bytes` field, used for message
// payloads and headers.
func AppendLongBytes(dst []byte, b []byte) []byte {
	dst = appendUint32LE(dst, uint32(len(b)))
	return append(dst, b...)
}

// ReadLongBytes reads a `u32 length | bytes` field from the front of b.
func ReadLongBytes(b []byte) ([]byte, int, error) {
	if len(b) < 4 {
		return nil, 0, New(KindInvalidPayload, "truncated bytes length")
	}
	n := int(readUint32LE(b))
	if len(b) < 4+n {
		return nil, 0, New(KindInvalidPayload, "truncated bytes payload")
	}
	return b[4 : 4+n], 4 + n, nil
}
