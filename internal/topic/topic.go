// Package topic implements the owner of a topic's partitions,
// the producer-facing partitioning strategies, and message-expiry /
// max-topic-size retention.
package topic

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Config are the topic-level settings carried in its info file.
type Config struct {
	MessageExpiry        *time.Duration
	MaxTopicSize         *uint64
	ReplicationFactor    uint8
	CompressionDefault   Compression
	CompressionOverride  bool // allow_override
	Partition            partition.Config
}

// Details is the read-only snapshot returned by GetDetails.
type Details struct {
	ID              uint32
	Name            string
	PartitionsCount uint32
	Messages        uint64
	SizeBytes       uint64
}

// Topic owns a set of partitions plus the producer-facing routing logic
// that decides which partition a send lands on.
type Topic struct {
	ID       uint32
	Name     string
	StreamID uint32

	dir   string
	cfg   Config
	pool  *diskio.Pool
	quota *cache.Quota

	mu         sync.RWMutex
	partitions []*partition.Partition
	balancer   balancer
}

// Open reconstructs a Topic from its on-disk directory, opening every
// partition subdirectory it contains (named by 0-based partition index).
func Open(dir string, streamID, id uint32, name string, cfg Config, pool *diskio.Pool, quota *cache.Quota) (*Topic, error) {
	t := &Topic{ID: id, Name: name, StreamID: streamID, dir: dir, cfg: cfg, pool: pool, quota: quota}

	indexes, err := discoverPartitionIndexes(dir)
	if err != nil {
		return nil, wire.New(wire.KindIoError, "scan topic dir: %v", err)
	}
	for _, idx := range indexes {
		p, err := partition.Open(partitionDir(dir, idx), streamID, id, idx, cfg.Partition, pool, quota)
		if err != nil {
			return nil, err
		}
		t.partitions = append(t.partitions, p)
	}
	return t, nil
}

func partitionDir(topicDir string, idx uint32) string {
	return filepath.Join(topicDir, "partitions", strconv.FormatUint(uint64(idx), 10))
}

func discoverPartitionIndexes(dir string) ([]uint32, error) {
	partitionsDir := filepath.Join(dir, "partitions")
	entries, err := os.ReadDir(partitionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []uint32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CreatePartitions appends n new, empty partitions to the tail.
func (t *Topic) CreatePartitions(n uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := uint32(len(t.partitions))
	for i := uint32(0); i < n; i++ {
		idx := start + i
		p, err := partition.Open(partitionDir(t.dir, idx), t.StreamID, t.ID, idx, t.cfg.Partition, t.pool, t.quota)
		if err != nil {
			return err
		}
		t.partitions = append(t.partitions, p)
	}
	return nil
}

// DeletePartitions removes n partitions from the tail
// Their on-disk directories are removed entirely.
func (t *Topic) DeletePartitions(n uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint32(len(t.partitions)) < n {
		return wire.New(wire.KindInvalidTopicPartitions, "cannot delete %d partitions, only %d exist", n, len(t.partitions))
	}
	keep := uint32(len(t.partitions)) - n
	removed := t.partitions[keep:]
	t.partitions = t.partitions[:keep]
	for _, p := range removed {
		if err := os.RemoveAll(filepath.Join(t.dir, "partitions", strconv.FormatUint(uint64(p.PartitionID), 10))); err != nil {
			return wire.New(wire.KindIoError, "remove partition dir: %v", err)
		}
	}
	return nil
}

// PartitionsCount returns the current number of partitions.
func (t *Topic) PartitionsCount() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint32(len(t.partitions))
}

// Send routes messages to a single partition chosen by p and appends them
// there A batch is never split across partitions. Payloads are compressed
// under the topic's configured algorithm before they reach the partition.
func (t *Topic) Send(messages []*message.Message, p Partitioning) (partitionIdx uint32, first, last uint64, err error) {
	t.mu.RLock()
	count := uint32(len(t.partitions))
	if count == 0 {
		t.mu.RUnlock()
		return 0, 0, 0, wire.New(wire.KindPartitionNotFound, "topic %d has no partitions", t.ID)
	}
	idx := t.balancer.choose(p, count)
	target := t.partitions[idx]
	algorithm := t.cfg.CompressionDefault
	t.mu.RUnlock()

	if algorithm != CompressionNone {
		for _, m := range messages {
			compressed, err := Compress(algorithm, m.Payload)
			if err != nil {
				return 0, 0, 0, wire.New(wire.KindInvalidPayload, "compress message payload: %v", err)
			}
			m.Payload = compressed
		}
	}

	first, last, err = target.Append(messages)
	return idx, first, last, err
}

// Poll reads from a single, caller-identified partition index, decompressing
// each message's payload back to its original form before returning it.
func (t *Topic) Poll(partitionIdx uint32, req partition.PollRequest) ([]*message.Message, error) {
	t.mu.RLock()
	if partitionIdx >= uint32(len(t.partitions)) {
		t.mu.RUnlock()
		return nil, wire.New(wire.KindPartitionNotFound, "partition %d not found", partitionIdx)
	}
	p := t.partitions[partitionIdx]
	algorithm := t.cfg.CompressionDefault
	t.mu.RUnlock()

	msgs, err := p.Poll(req)
	if err != nil {
		return nil, err
	}
	if algorithm == CompressionNone {
		return msgs, nil
	}

	out := make([]*message.Message, len(msgs))
	for i, m := range msgs {
		payload, err := Decompress(algorithm, m.Payload)
		if err != nil {
			return nil, wire.New(wire.KindInvalidPayload, "decompress message payload: %v", err)
		}
		cp := *m
		cp.Payload = payload
		out[i] = &cp
	}
	return out, nil
}

// Purge removes every partition's stored messages by recreating each
// partition directory empty.
func (t *Topic) Purge() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.partitions {
		dir := partitionDir(t.dir, p.PartitionID)
		if err := os.RemoveAll(dir); err != nil {
			return wire.New(wire.KindIoError, "purge partition dir: %v", err)
		}
		fresh, err := partition.Open(dir, t.StreamID, t.ID, p.PartitionID, t.cfg.Partition, t.pool, t.quota)
		if err != nil {
			return err
		}
		t.partitions[i] = fresh
	}
	return nil
}

// StoreOffsetFor commits consumer's offset on a specific partition,
// used by the consumer-group coordinator to persist group-level progress.
func (t *Topic) StoreOffsetFor(partitionIdx uint32, consumer string, offset uint64) error {
	t.mu.RLock()
	if partitionIdx >= uint32(len(t.partitions)) {
		t.mu.RUnlock()
		return wire.New(wire.KindPartitionNotFound, "partition %d not found", partitionIdx)
	}
	p := t.partitions[partitionIdx]
	t.mu.RUnlock()
	return p.StoreOffset(consumer, offset)
}

// GetOffsetFor returns consumer's committed offset on a specific partition.
func (t *Topic) GetOffsetFor(partitionIdx uint32, consumer string) (uint64, bool, error) {
	t.mu.RLock()
	if partitionIdx >= uint32(len(t.partitions)) {
		t.mu.RUnlock()
		return 0, false, wire.New(wire.KindPartitionNotFound, "partition %d not found", partitionIdx)
	}
	p := t.partitions[partitionIdx]
	t.mu.RUnlock()
	offset, ok := p.GetOffset(consumer)
	return offset, ok, nil
}

// Config returns the topic's current configuration, used when persisting
// its info file after a mutation like a rename.
func (t *Topic) Config() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// GetDetails summarizes the topic's current state for the details command.
func (t *Topic) GetDetails() Details {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d := Details{ID: t.ID, Name: t.Name, PartitionsCount: uint32(len(t.partitions))}
	for _, p := range t.partitions {
		d.Messages += p.CurrentOffset() - p.EarliestOffset()
	}
	return d
}

// Sweep runs the retention sweep across every partition. It runs only when
// called: neither Send nor the broker daemon calls it, and no timer reads
// the configured retention sweep interval.
func (t *Topic) Sweep(now time.Time) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.partitions {
		if err := p.Sweep(now, t.cfg.MessageExpiry, t.cfg.MaxTopicSize); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCompression rejects a non-default compression choice when the
// topic's config does not allow overriding it
func (t *Topic) ValidateCompression(requested Compression) error {
	return ValidateCompressionChoice(requested, t.cfg.CompressionDefault, t.cfg.CompressionOverride)
}

func (t *Topic) String() string {
	return fmt.Sprintf("topic(id=%d,name=%s)", t.ID, t.Name)
}
