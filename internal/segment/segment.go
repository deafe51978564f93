// Package segment implements the append-only `.log` + `.index` + `.timeindex`
// triple that forms the lowest storage layer a partition manages.
package segment

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Config are the tunables a Segment needs, injected by the partition (which
// in turn gets them from the broker's config snapshot).
type Config struct {
	MaxSize      uint64
	IndexStride  uint32 // write an index entry every N appended messages; 1 = every message
	CacheIndexes bool   // keep the index in memory; otherwise read from disk on demand
}

// Segment is one contiguous chunk of a partition's log.
type Segment struct {
	mu sync.RWMutex

	startOffset   uint64
	messagesCount uint64
	currentSize   uint64
	cfg           Config

	logPath       string
	indexPath     string
	timeIndexPath string

	logFile       *os.File
	indexFile     *os.File
	timeIndexFile *os.File

	index     []indexEntry
	timeIndex []timeIndexEntry

	closed                 bool
	messagesSinceLastIndex uint32
}

// pathsFor returns the canonical log/index/timeindex paths for a segment
// starting at startOffset, using a 20-digit zero-padded filename.
func pathsFor(dir string, startOffset uint64) (logPath, indexPath, timeIndexPath string) {
	base := fmt.Sprintf("%020d", startOffset)
	return filepath.Join(dir, base+".log"),
		filepath.Join(dir, base+".index"),
		filepath.Join(dir, base+".timeindex")
}

// Create creates a brand-new active segment starting at startOffset.
func Create(dir string, startOffset uint64, cfg Config) (*Segment, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, wire.New(wire.KindIoError, "create partition dir: %v", err)
	}
	logPath, indexPath, timeIndexPath := pathsFor(dir, startOffset)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "create log file: %v", err)
	}
	indexFile, err := os.OpenFile(indexPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "create index file: %v", err)
	}
	timeIndexFile, err := os.OpenFile(timeIndexPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "create timeindex file: %v", err)
	}

	return &Segment{
		startOffset:   startOffset,
		cfg:           cfg,
		logPath:       logPath,
		indexPath:     indexPath,
		timeIndexPath: timeIndexPath,
		logFile:       logFile,
		indexFile:     indexFile,
		timeIndexFile: timeIndexFile,
	}, nil
}

// Open reopens an existing segment found on disk at boot, rebuilding the
// in-memory index when cfg.CacheIndexes is set. A corrupt index triggers a
// full rebuild from the log.
func Open(dir string, startOffset uint64, cfg Config, closed bool) (*Segment, error) {
	logPath, indexPath, timeIndexPath := pathsFor(dir, startOffset)

	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "open log file: %v", err)
	}
	indexFile, err := os.OpenFile(indexPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "open index file: %v", err)
	}
	timeIndexFile, err := os.OpenFile(timeIndexPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "open timeindex file: %v", err)
	}

	info, err := logFile.Stat()
	if err != nil {
		return nil, wire.New(wire.KindIoError, "stat log file: %v", err)
	}

	s := &Segment{
		startOffset:   startOffset,
		cfg:           cfg,
		logPath:       logPath,
		indexPath:     indexPath,
		timeIndexPath: timeIndexPath,
		logFile:       logFile,
		indexFile:     indexFile,
		timeIndexFile: timeIndexFile,
		currentSize:   uint64(info.Size()),
		closed:        closed,
	}

	messagesCount, rebuild, err := scanMessageCount(logPath)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "scan log for recovery: %v", err)
	}
	s.messagesCount = messagesCount

	if cfg.CacheIndexes {
		index, err := loadIndex(indexPath)
		if err != nil || rebuild || uint64(len(index)) > messagesCount {
			index, err = rebuildIndexFromLog(logPath)
			if err != nil {
				return nil, wire.New(wire.KindCorruptIndex, "rebuild index: %v", err)
			}
			if err := rewriteIndexFile(indexFile, index); err != nil {
				return nil, err
			}
		}
		s.index = index

		timeIndex, err := loadTimeIndex(timeIndexPath)
		if err != nil {
			timeIndex = nil
		}
		s.timeIndex = timeIndex
	}

	return s, nil
}

// scanMessageCount walks the log file counting valid, checksum-clean
// messages and truncates any trailing partial/corrupt record — the
// crash-safety property from item 7.
func scanMessageCount(logPath string) (count uint64, truncated bool, err error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return 0, false, err
	}
	off := 0
	for off < len(data) {
		m, n, decErr := message.Decode(data[off:])
		if decErr != nil {
			// Partial record (truncated write) or a checksum failure right
			// at the tail: stop here and truncate, recovering exactly the
			// last fully-written, checksum-valid message.
			truncated = true
			break
		}
		_ = m
		off += n
		count++
	}
	if truncated && off < len(data) {
		f, ferr := os.OpenFile(logPath, os.O_WRONLY, 0o640)
		if ferr != nil {
			return count, truncated, ferr
		}
		defer f.Close()
		if err := f.Truncate(int64(off)); err != nil {
			return count, truncated, err
		}
	}
	return count, truncated, nil
}

func rebuildIndexFromLog(logPath string) ([]indexEntry, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, err
	}
	var entries []indexEntry
	off := 0
	var rel uint32
	for off < len(data) {
		m, n, decErr := message.Decode(data[off:])
		if decErr != nil {
			break
		}
		entries = append(entries, indexEntry{relativeOffset: rel, filePosition: uint32(off)})
		off += n
		rel++
		_ = m
	}
	return entries, nil
}

func rewriteIndexFile(f *os.File, entries []indexEntry) error {
	if err := f.Truncate(0); err != nil {
		return wire.New(wire.KindIoError, "truncate index: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return wire.New(wire.KindIoError, "seek index: %v", err)
	}
	for _, e := range entries {
		if err := appendFile(f, encodeIndexEntry(e)); err != nil {
			return wire.New(wire.KindIoError, "rewrite index: %v", err)
		}
	}
	return nil
}

// StartOffset is the first offset stored in this segment.
func (s *Segment) StartOffset() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startOffset
}

// MessagesCount returns how many messages this segment holds.
func (s *Segment) MessagesCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesCount
}

// SizeOnDisk returns the current size in bytes of the log file.
func (s *Segment) SizeOnDisk() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// IsClosed reports whether the segment is sealed.
func (s *Segment) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// IsFull reports whether appending nextAppendSize more bytes would exceed
// max_size.
func (s *Segment) IsFull(nextAppendSize uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize+nextAppendSize > s.cfg.MaxSize
}

// Append writes messages to the active segment in a single write, after
// building the full encoded buffer in memory first — so a partial write
// never happens: either the whole batch lands or none of it does.
func (s *Segment) Append(messages []*message.Message) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, wire.New(wire.KindSegmentClosed, "segment starting at %d is closed", s.startOffset)
	}

	var buf []byte
	positions := make([]uint32, len(messages))
	timestamps := make([]uint64, len(messages))
	for i, m := range messages {
		positions[i] = uint32(s.currentSize) + uint32(len(buf))
		timestamps[i] = m.Timestamp
		buf = m.Encode(buf)
	}

	if err := appendFile(s.logFile, buf); err != nil {
		return 0, wire.New(wire.KindIoError, "append to log: %v", err)
	}

	var indexBuf, timeIndexBuf []byte
	for i, m := range messages {
		s.messagesSinceLastIndex++
		stride := s.cfg.IndexStride
		if stride == 0 {
			stride = 1
		}
		if s.messagesSinceLastIndex >= stride {
			s.messagesSinceLastIndex = 0
			rel := uint32(m.Offset - s.startOffset)
			entry := indexEntry{relativeOffset: rel, filePosition: positions[i]}
			indexBuf = append(indexBuf, encodeIndexEntry(entry)...)
			tentry := timeIndexEntry{relativeOffset: rel, timestamp: timestamps[i]}
			timeIndexBuf = append(timeIndexBuf, encodeTimeIndexEntry(tentry)...)
			if s.cfg.CacheIndexes {
				s.index = append(s.index, entry)
				s.timeIndex = append(s.timeIndex, tentry)
			}
		}
	}
	if len(indexBuf) > 0 {
		if err := appendFile(s.indexFile, indexBuf); err != nil {
			return 0, wire.New(wire.KindIoError, "append to index: %v", err)
		}
		if err := appendFile(s.timeIndexFile, timeIndexBuf); err != nil {
			return 0, wire.New(wire.KindIoError, "append to timeindex: %v", err)
		}
	}

	s.currentSize += uint64(len(buf))
	s.messagesCount += uint64(len(messages))
	return uint64(len(buf)), nil
}

// Read scans forward from the nearest indexed position at or before
// fromOffset (relative to this segment), decoding up to limit messages.
// A checksum mismatch is fatal for that one record only: it is skipped and
// scanning continues.
func (s *Segment) Read(fromOffset uint64, limit int) ([]*message.Message, error) {
	s.mu.RLock()
	index := s.index
	cacheIndexes := s.cfg.CacheIndexes
	indexPath := s.indexPath
	startOffset := s.startOffset
	s.mu.RUnlock()

	if fromOffset < startOffset {
		fromOffset = startOffset
	}
	rel := uint32(fromOffset - startOffset)

	if !cacheIndexes {
		var err error
		index, err = loadIndex(indexPath)
		if err != nil {
			return nil, wire.New(wire.KindCorruptIndex, "load index: %v", err)
		}
	}
	startPos := seekIndex(index, rel)

	s.mu.RLock()
	logPath := s.logPath
	s.mu.RUnlock()

	f, err := os.Open(logPath)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "open log for read: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(startPos), 0); err != nil {
		return nil, wire.New(wire.KindIoError, "seek log: %v", err)
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	data, err := readAll(reader)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "read log: %v", err)
	}

	var out []*message.Message
	off := 0
	for off < len(data) && len(out) < limit {
		m, n, decErr := message.Decode(data[off:])
		if decErr != nil {
			if wire.KindOf(decErr) == wire.KindChecksumMismatch && n > 0 {
				off += n
				continue
			}
			break
		}
		off += n
		if m.Offset >= fromOffset {
			out = append(out, m)
		}
	}
	return out, nil
}

func readAll(r *bufio.Reader) ([]byte, error) {
	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// Flush fsyncs the log, then the index, then the timeindex, in that order —
// the ordering matters because on-open recovery trusts the log over the
// index.
func (s *Segment) Flush() error {
	s.mu.RLock()
	logFile, indexFile, timeIndexFile := s.logFile, s.indexFile, s.timeIndexFile
	s.mu.RUnlock()

	if err := logFile.Sync(); err != nil {
		return wire.New(wire.KindIoError, "fsync log: %v", err)
	}
	if err := indexFile.Sync(); err != nil {
		return wire.New(wire.KindIoError, "fsync index: %v", err)
	}
	if err := timeIndexFile.Sync(); err != nil {
		return wire.New(wire.KindIoError, "fsync timeindex: %v", err)
	}
	return nil
}

// Close flushes and seals the segment. A sealed segment never accepts
// further appends.
func (s *Segment) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// FindByTimestamp returns the smallest offset whose message timestamp is >=
// target, using the time index; ok is false if every message in the segment
// predates target.
func (s *Segment) FindByTimestamp(target uint64) (offset uint64, ok bool) {
	s.mu.RLock()
	timeIndex := s.timeIndex
	cacheIndexes := s.cfg.CacheIndexes
	path := s.timeIndexPath
	start := s.startOffset
	s.mu.RUnlock()

	if !cacheIndexes {
		loaded, err := loadTimeIndex(path)
		if err != nil {
			return 0, false
		}
		timeIndex = loaded
	}
	rel, found := seekTimeIndex(timeIndex, target)
	if !found {
		return 0, false
	}
	return start + uint64(rel), true
}

// NewestTimestamp returns the timestamp of the most recently indexed
// message in this segment, used by retention to decide whether every
// message in a sealed segment has expired.
func (s *Segment) NewestTimestamp() (uint64, bool) {
	s.mu.RLock()
	timeIndex := s.timeIndex
	cacheIndexes := s.cfg.CacheIndexes
	path := s.timeIndexPath
	s.mu.RUnlock()

	if !cacheIndexes {
		loaded, err := loadTimeIndex(path)
		if err != nil {
			return 0, false
		}
		timeIndex = loaded
	}
	if len(timeIndex) == 0 {
		return 0, false
	}
	return timeIndex[len(timeIndex)-1].timestamp, true
}

// LogPath exposes the on-disk log path, used by retention to unlink sealed
// segments.
func (s *Segment) LogPath() string { return s.logPath }

// Paths returns all three files backing this segment, for deletion.
func (s *Segment) Paths() [3]string {
	return [3]string{s.logPath, s.indexPath, s.timeIndexPath}
}
