package stream

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/segment"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

// topicMeta is the on-disk shape of a topic's info file: a flattened,
// TOML-friendly projection of topic.Config where durations and optional
// fields become plain fields with a zero-value meaning "unset".
type topicMeta struct {
	Name                   string `toml:"name"`
	MessageExpirySeconds   int64  `toml:"message_expiry_seconds"`
	MaxTopicSizeBytes      uint64 `toml:"max_topic_size_bytes"`
	ReplicationFactor      uint8  `toml:"replication_factor"`
	CompressionDefault     string `toml:"compression_default"`
	CompressionOverride    bool   `toml:"allow_compression_override"`
	SegmentMaxSize         uint64 `toml:"segment_max_size_bytes"`
	SegmentIndexStride     uint32 `toml:"segment_index_stride"`
	SegmentCacheIndexes    bool   `toml:"segment_cache_indexes"`
	MessagesRequiredToSave uint64 `toml:"messages_required_to_save"`
	EnforceFsync           bool   `toml:"enforce_fsync"`
	CacheCapacity          int    `toml:"cache_capacity_messages"`
	DedupEnabled           bool   `toml:"dedup_enabled"`
	DedupMaxEntries        int    `toml:"dedup_max_entries"`
	DedupExpirySeconds     int64  `toml:"dedup_expiry_seconds"`
}

func (m topicMeta) Config() (topic.Config, error) {
	compression, err := topic.ParseCompression(m.CompressionDefault)
	if err != nil {
		return topic.Config{}, err
	}
	cfg := topic.Config{
		ReplicationFactor:   m.ReplicationFactor,
		CompressionDefault:  compression,
		CompressionOverride: m.CompressionOverride,
		Partition: partitionConfigFrom(m),
	}
	if m.MessageExpirySeconds > 0 {
		d := time.Duration(m.MessageExpirySeconds) * time.Second
		cfg.MessageExpiry = &d
	}
	if m.MaxTopicSizeBytes > 0 {
		v := m.MaxTopicSizeBytes
		cfg.MaxTopicSize = &v
	}
	return cfg, nil
}

func metaFromConfig(name string, cfg topic.Config) topicMeta {
	m := topicMeta{
		Name:                   name,
		ReplicationFactor:      cfg.ReplicationFactor,
		CompressionDefault:     cfg.CompressionDefault.String(),
		CompressionOverride:    cfg.CompressionOverride,
		SegmentMaxSize:         cfg.Partition.Segment.MaxSize,
		SegmentIndexStride:     cfg.Partition.Segment.IndexStride,
		SegmentCacheIndexes:    cfg.Partition.Segment.CacheIndexes,
		MessagesRequiredToSave: cfg.Partition.MessagesRequiredToSave,
		EnforceFsync:           cfg.Partition.EnforceFsync,
		CacheCapacity:          cfg.Partition.CacheCapacity,
		DedupEnabled:           cfg.Partition.DedupEnabled,
		DedupMaxEntries:        cfg.Partition.DedupMaxEntries,
		DedupExpirySeconds:     int64(cfg.Partition.DedupExpiry / time.Second),
	}
	if cfg.MessageExpiry != nil {
		m.MessageExpirySeconds = int64(*cfg.MessageExpiry / time.Second)
	}
	if cfg.MaxTopicSize != nil {
		m.MaxTopicSizeBytes = *cfg.MaxTopicSize
	}
	return m
}

// loadTopicMetaResult bundles what Open needs without exposing topicMeta
// outside the package.
type loadTopicMetaResult struct {
	Name   string
	Config topic.Config
}

func loadTopicMeta(dir string) (loadTopicMetaResult, error) {
	path := filepath.Join(dir, "topic.info")
	data, err := os.ReadFile(path)
	if err != nil {
		return loadTopicMetaResult{}, wire.New(wire.KindIoError, "read topic info: %v", err)
	}
	var m topicMeta
	if _, err := toml.Decode(string(data), &m); err != nil {
		return loadTopicMetaResult{}, wire.New(wire.KindIoError, "decode topic info: %v", err)
	}
	cfg, err := m.Config()
	if err != nil {
		return loadTopicMetaResult{}, err
	}
	return loadTopicMetaResult{Name: m.Name, Config: cfg}, nil
}

// writeTopicMeta persists the topic's definition before the in-memory map
// is updated's write-ahead rule. It writes to a temp
// file and renames into place so a crash never leaves a half-written info
// file behind.
func writeTopicMeta(dir string, m topicMeta) error {
	path := filepath.Join(dir, "topic.info")
	tmp := path + ".tmp"

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return wire.New(wire.KindIoError, "encode topic info: %v", err)
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o640); err != nil {
		return wire.New(wire.KindIoError, "write topic info: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return wire.New(wire.KindIoError, "rename topic info into place: %v", err)
	}
	return nil
}

func partitionConfigFrom(m topicMeta) partition.Config {
	return partition.Config{
		Segment: segment.Config{
			MaxSize:      m.SegmentMaxSize,
			IndexStride:  m.SegmentIndexStride,
			CacheIndexes: m.SegmentCacheIndexes,
		},
		MessagesRequiredToSave: m.MessagesRequiredToSave,
		EnforceFsync:           m.EnforceFsync,
		CacheCapacity:          m.CacheCapacity,
		DedupEnabled:           m.DedupEnabled,
		DedupMaxEntries:        m.DedupMaxEntries,
		DedupExpiry:            time.Duration(m.DedupExpirySeconds) * time.Second,
	}
}
