package segment

import (
	"encoding/binary"
	"os"
	"sort"
)

// indexEntrySize is the on-disk size of one (relative_offset, file_position)
// pair.
const indexEntrySize = 4 + 4

// timeIndexEntrySize is the on-disk size of one (relative_offset, timestamp)
// pair.
const timeIndexEntrySize = 4 + 8

type indexEntry struct {
	relativeOffset uint32
	filePosition   uint32
}

type timeIndexEntry struct {
	relativeOffset uint32
	timestamp      uint64
}

func encodeIndexEntry(e indexEntry) []byte {
	buf := make([]byte, indexEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.relativeOffset)
	binary.LittleEndian.PutUint32(buf[4:8], e.filePosition)
	return buf
}

func decodeIndexEntry(b []byte) indexEntry {
	return indexEntry{
		relativeOffset: binary.LittleEndian.Uint32(b[0:4]),
		filePosition:   binary.LittleEndian.Uint32(b[4:8]),
	}
}

func encodeTimeIndexEntry(e timeIndexEntry) []byte {
	buf := make([]byte, timeIndexEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.relativeOffset)
	binary.LittleEndian.PutUint64(buf[4:12], e.timestamp)
	return buf
}

func decodeTimeIndexEntry(b []byte) timeIndexEntry {
	return timeIndexEntry{
		relativeOffset: binary.LittleEndian.Uint32(b[0:4]),
		timestamp:      binary.LittleEndian.Uint64(b[4:12]),
	}
}

// loadIndex rebuilds the in-memory index slice from the on-disk file. Used on
// open when cache_indexes is enabled, and also to recover from a corrupt
// index by rebuilding it from the log.
func loadIndex(path string) ([]indexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data)%indexEntrySize != 0 {
		// Truncate to the last complete record; a partial trailing record
		// means a crash mid-write, handled the same way log truncation is.
		data = data[:len(data)-(len(data)%indexEntrySize)]
	}
	entries := make([]indexEntry, 0, len(data)/indexEntrySize)
	for off := 0; off < len(data); off += indexEntrySize {
		entries = append(entries, decodeIndexEntry(data[off:off+indexEntrySize]))
	}
	return entries, nil
}

func loadTimeIndex(path string) ([]timeIndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data)%timeIndexEntrySize != 0 {
		data = data[:len(data)-(len(data)%timeIndexEntrySize)]
	}
	entries := make([]timeIndexEntry, 0, len(data)/timeIndexEntrySize)
	for off := 0; off < len(data); off += timeIndexEntrySize {
		entries = append(entries, decodeTimeIndexEntry(data[off:off+timeIndexEntrySize]))
	}
	return entries, nil
}

// seekIndex finds the file position to start scanning from for a given
// relative offset: the nearest index entry with relativeOffset <= target, or
// position 0 if target precedes every indexed entry.
func seekIndex(entries []indexEntry, target uint32) uint32 {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].relativeOffset > target
	})
	if i == 0 {
		return 0
	}
	return entries[i-1].filePosition
}

// seekTimeIndex returns the relative offset of the first entry with
// timestamp >= target, or (0, false) if none qualifies (caller should scan
// from the start, or report NoMessages if the segment is also exhausted).
func seekTimeIndex(entries []timeIndexEntry, target uint64) (uint32, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].timestamp >= target
	})
	if i == len(entries) {
		return 0, false
	}
	return entries[i].relativeOffset, true
}

func appendFile(f *os.File, b []byte) error {
	_, err := f.Write(b)
	return err
}
