// Package partition implements the ordered sequence of
// segments that assigns offsets, rotates the active segment, maintains the
// message cache and dedup window, and answers poll requests.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/segment"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Strategy selects where a Poll starts reading from.
type Strategy int

const (
	StrategyOffset Strategy = iota
	StrategyTimestamp
	StrategyFirst
	StrategyLast
	StrategyNext
)

// PollRequest bundles the inputs to Poll.
type PollRequest struct {
	Strategy   Strategy
	Offset     uint64 // used when Strategy == StrategyOffset
	Timestamp  uint64 // used when Strategy == StrategyTimestamp
	Count      int
	Consumer   string // key under which committed offsets are tracked
	AutoCommit bool
}

// Config are the tunables a Partition needs, sourced from the broker's
// config snapshot.
type Config struct {
	Segment               segment.Config
	MessagesRequiredToSave uint64
	EnforceFsync           bool
	CacheCapacity          int // message count kept in the in-memory ring
	DedupEnabled           bool
	DedupMaxEntries        int
	DedupExpiry            time.Duration
}

// Partition is the ordered, offset-assigning collection of segments for one
// (stream, topic, partition) triple.
type Partition struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32

	dir string
	cfg Config
	now func() time.Time
	pool *diskio.Pool

	mu                   sync.RWMutex
	segments             []*segment.Segment
	currentOffset        uint64
	unsavedMessagesCount uint64
	dedup                *window

	cache *cache.Ring

	offsetsMu      sync.Mutex
	consumerOffsets map[string]uint64
}

// Open scans dir for existing segment files and reconstructs the partition
// in start_offset order.
func Open(dir string, streamID, topicID, partitionID uint32, cfg Config, pool *diskio.Pool, quota *cache.Quota) (*Partition, error) {
	p := &Partition{
		StreamID: streamID, TopicID: topicID, PartitionID: partitionID,
		dir: dir, cfg: cfg, now: time.Now, pool: pool,
		cache:           cache.NewRing(cfg.CacheCapacity, quota),
		consumerOffsets: make(map[string]uint64),
	}
	if cfg.DedupEnabled {
		p.dedup = newDedupWindow(cfg.DedupMaxEntries, cfg.DedupExpiry, nil)
	}

	starts, err := discoverSegmentStarts(dir)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "scan partition dir: %v", err)
	}

	if len(starts) == 0 {
		seg, err := segment.Create(dir, 0, cfg.Segment)
		if err != nil {
			return nil, err
		}
		p.segments = []*segment.Segment{seg}
		p.currentOffset = 0
		return p, p.loadOffsets()
	}

	for i, start := range starts {
		closed := i != len(starts)-1
		seg, err := segment.Open(dir, start, cfg.Segment, closed)
		if err != nil {
			return nil, err
		}
		p.segments = append(p.segments, seg)
	}
	last := p.segments[len(p.segments)-1]
	p.currentOffset = last.StartOffset() + last.MessagesCount()

	return p, p.loadOffsets()
}

func discoverSegmentStarts(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var starts []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".log")
		v, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		starts = append(starts, v)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

// CurrentOffset returns the next offset that will be assigned.
func (p *Partition) CurrentOffset() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentOffset
}

// EarliestOffset returns the first stored offset, i.e. the start of the
// oldest remaining segment.
func (p *Partition) EarliestOffset() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.segments) == 0 {
		return 0
	}
	return p.segments[0].StartOffset()
}

// Append validates and assigns offsets to a batch of messages.
func (p *Partition) Append(incoming []*message.Message) (first, last uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accepted := make([]*message.Message, 0, len(incoming))
	now := uint64(p.now().UnixMicro())
	for _, m := range incoming {
		if p.dedup != nil && !m.ID.IsZero() {
			if p.dedup.seenRecently(m.ID) {
				continue
			}
		}
		m.Offset = p.currentOffset
		m.Timestamp = now
		if m.State == 0 {
			m.State = message.Available
		}
		p.currentOffset++
		if p.dedup != nil && !m.ID.IsZero() {
			p.dedup.insert(m.ID)
		}
		accepted = append(accepted, m)
	}

	if len(accepted) == 0 {
		return 0, 0, nil
	}

	active := p.segments[len(p.segments)-1]
	batchSize := uint64(0)
	for _, m := range accepted {
		batchSize += uint64(m.EncodedSize())
	}

	if active.IsFull(batchSize) && active.MessagesCount() > 0 {
		active, err = p.rotateLocked()
		if err != nil {
			return 0, 0, err
		}
	}

	if _, err := active.Append(accepted); err != nil {
		return 0, 0, err
	}

	for _, m := range accepted {
		p.cache.Push(m)
	}

	p.unsavedMessagesCount += uint64(len(accepted))
	if p.unsavedMessagesCount >= p.cfg.MessagesRequiredToSave {
		p.unsavedMessagesCount = 0
		if p.cfg.EnforceFsync {
			if err := p.pool.Run(active.Flush); err != nil {
				return 0, 0, err
			}
		} else {
			p.pool.Go(active.Flush)
		}
	}

	return accepted[0].Offset, accepted[len(accepted)-1].Offset, nil
}

// rotateLocked seals the active segment and creates a new one starting
// right after it. Called with p.mu held.
func (p *Partition) rotateLocked() (*segment.Segment, error) {
	active := p.segments[len(p.segments)-1]
	if err := p.pool.Run(active.Close); err != nil {
		return nil, err
	}
	nextStart := active.StartOffset() + active.MessagesCount()
	seg, err := segment.Create(p.dir, nextStart, p.cfg.Segment)
	if err != nil {
		return nil, err
	}
	p.segments = append(p.segments, seg)
	return seg, nil
}

// Poll resolves a start position and reads messages forward from it.
func (p *Partition) Poll(req PollRequest) ([]*message.Message, error) {
	p.mu.RLock()
	start, err := p.resolveStartLocked(req)
	if err != nil {
		p.mu.RUnlock()
		return nil, err
	}

	var out []*message.Message
	if cached, ok := p.cache.Range(start, req.Count); ok {
		out = cached
	} else {
		out, err = p.readFromSegmentsLocked(start, req.Count)
	}
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if req.AutoCommit && len(out) > 0 {
		last := out[len(out)-1].Offset
		if err := p.commitOffset(req.Consumer, last); err != nil {
			return out, err
		}
	}
	return out, nil
}

// resolveStartLocked computes the effective start offset for a poll
// request. Called with p.mu held for reading.
func (p *Partition) resolveStartLocked(req PollRequest) (uint64, error) {
	earliest := uint64(0)
	if len(p.segments) > 0 {
		earliest = p.segments[0].StartOffset()
	}
	switch req.Strategy {
	case StrategyOffset:
		if req.Offset < earliest {
			return earliest, nil
		}
		if req.Offset > p.currentOffset {
			return p.currentOffset, nil
		}
		return req.Offset, nil
	case StrategyFirst:
		return earliest, nil
	case StrategyLast:
		if uint64(req.Count) > p.currentOffset {
			return earliest, nil
		}
		start := p.currentOffset - uint64(req.Count)
		if start < earliest {
			start = earliest
		}
		return start, nil
	case StrategyNext:
		p.offsetsMu.Lock()
		committed, ok := p.consumerOffsets[req.Consumer]
		p.offsetsMu.Unlock()
		if !ok {
			return earliest, nil
		}
		return committed + 1, nil
	case StrategyTimestamp:
		for _, seg := range p.segments {
			if offset, ok := seg.FindByTimestamp(req.Timestamp); ok {
				return offset, nil
			}
		}
		return p.currentOffset, nil
	default:
		return earliest, nil
	}
}

// readFromSegmentsLocked scans forward across segments starting at the
// segment containing startOffset. Called with p.mu held for reading.
func (p *Partition) readFromSegmentsLocked(startOffset uint64, limit int) ([]*message.Message, error) {
	idx := sort.Search(len(p.segments), func(i int) bool {
		return p.segments[i].StartOffset() > startOffset
	}) - 1
	if idx < 0 {
		idx = 0
	}

	var out []*message.Message
	for i := idx; i < len(p.segments) && len(out) < limit; i++ {
		got, err := p.segments[i].Read(startOffset, limit-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	if len(out) == 0 {
		return nil, wire.New(wire.KindNoMessages, "no messages available from offset %d", startOffset)
	}
	return out, nil
}

// GetOffset returns the committed offset for consumer, and whether one has
// ever been committed.
func (p *Partition) GetOffset(consumer string) (uint64, bool) {
	p.offsetsMu.Lock()
	defer p.offsetsMu.Unlock()
	v, ok := p.consumerOffsets[consumer]
	return v, ok
}

// StoreOffset commits an offset for consumer explicitly, outside of a poll's
// auto-commit.
func (p *Partition) StoreOffset(consumer string, offset uint64) error {
	return p.commitOffset(consumer, offset)
}

// commitOffset persists the committed offset atomically (write-temp +
// rename) and only then updates the in-memory map, so a poll with
// auto_commit is acknowledged only after the offset file is durable.
func (p *Partition) commitOffset(consumer string, offset uint64) error {
	offsetsDir := filepath.Join(p.dir, "offsets")
	if err := os.MkdirAll(offsetsDir, 0o750); err != nil {
		return wire.New(wire.KindIoError, "create offsets dir: %v", err)
	}
	path := filepath.Join(offsetsDir, consumer+".info")
	tmp := path + ".tmp"

	data := wire.AppendUint64(nil, offset)
	if err := p.pool.Run(func() error {
		if err := os.WriteFile(tmp, data, 0o640); err != nil {
			return err
		}
		f, err := os.OpenFile(tmp, os.O_RDWR, 0o640)
		if err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		f.Close()
		return os.Rename(tmp, path)
	}); err != nil {
		return wire.New(wire.KindIoError, "persist committed offset: %v", err)
	}

	p.offsetsMu.Lock()
	p.consumerOffsets[consumer] = offset
	p.offsetsMu.Unlock()
	return nil
}

func (p *Partition) loadOffsets() error {
	offsetsDir := filepath.Join(p.dir, "offsets")
	entries, err := os.ReadDir(offsetsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wire.New(wire.KindIoError, "read offsets dir: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".info") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(offsetsDir, e.Name()))
		if err != nil || len(data) < 8 {
			continue
		}
		offset, err := wire.ReadUint64(data)
		if err != nil {
			continue
		}
		consumer := strings.TrimSuffix(e.Name(), ".info")
		p.consumerOffsets[consumer] = offset
	}
	return nil
}

// Sweep enforces retention: segments whose every message has expired, and
// (once the active segment is excluded) the oldest sealed segments past
// maxTopicSize, are deleted. The active segment is never dropped.
func (p *Partition) Sweep(now time.Time, messageExpiry *time.Duration, maxTopicSize *uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if messageExpiry != nil {
		for len(p.segments) > 1 {
			oldest := p.segments[0]
			newest, ok := oldest.NewestTimestamp()
			if !ok {
				break
			}
			ts := time.UnixMicro(int64(newest))
			if now.Sub(ts) < *messageExpiry {
				break
			}
			if err := p.dropOldestLocked(); err != nil {
				return err
			}
		}
	}

	if maxTopicSize != nil {
		for len(p.segments) > 1 && p.totalSizeLocked() > *maxTopicSize {
			if err := p.dropOldestLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Partition) totalSizeLocked() uint64 {
	var total uint64
	for _, s := range p.segments {
		total += s.SizeOnDisk()
	}
	return total
}

func (p *Partition) dropOldestLocked() error {
	oldest := p.segments[0]
	paths := oldest.Paths()
	for _, path := range paths {
		if err := p.pool.Run(func() error {
			err := os.Remove(path)
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}); err != nil {
			return wire.New(wire.KindIoError, "remove segment file %s: %v", path, err)
		}
	}
	p.segments = p.segments[1:]
	return nil
}

// String implements fmt.Stringer for logging.
func (p *Partition) String() string {
	return fmt.Sprintf("partition(stream=%d,topic=%d,partition=%d)", p.StreamID, p.TopicID, p.PartitionID)
}
