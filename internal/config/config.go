// Package config loads the broker's configuration from a TOML file plus
// STREAMKEG_* environment overrides.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/FairForge/streamkeg/internal/wire"
)

// Config is the broker's full configuration snapshot, taken once at boot.
type Config struct {
	Server ServerConfig  `toml:"server"`
	Data   DataConfig    `toml:"data"`
	Topic  TopicDefaults `toml:"topic_defaults"`
	Auth   AuthConfig    `toml:"auth"`
	Log    LogConfig     `toml:"log"`
}

type ServerConfig struct {
	ListenAddress  string `toml:"listen_address" default:"0.0.0.0:9000"`
	MetricsAddress string `toml:"metrics_address" default:"0.0.0.0:9001"`
}

// DataConfig controls the disk layout and I/O tunables shared by every
// partition unless a topic overrides them.
type DataConfig struct {
	Path                   string        `toml:"path" default:"./streamkeg-data"`
	SegmentMaxSizeBytes    uint64        `toml:"segment_max_size_bytes" default:"1073741824"`
	SegmentIndexStride     uint32        `toml:"segment_index_stride" default:"10"`
	SegmentCacheIndexes    bool          `toml:"segment_cache_indexes" default:"true"`
	MessagesRequiredToSave uint64        `toml:"messages_required_to_save" default:"1000"`
	EnforceFsync           bool          `toml:"enforce_fsync" default:"false"`
	CacheCapacityMessages  int           `toml:"cache_capacity_messages" default:"10000"`
	CacheQuotaBytes        int64         `toml:"cache_quota_bytes" default:"268435456"`
	DiskIOConcurrency      int           `toml:"disk_io_concurrency" default:"4"`
	RetentionSweepInterval time.Duration `toml:"retention_sweep_interval" default:"30s"`
}

// TopicDefaults are applied when a CreateTopic request leaves a field
// unset.
type TopicDefaults struct {
	CompressionAlgorithm     string        `toml:"compression_algorithm" default:"none"`
	AllowCompressionOverride bool          `toml:"allow_compression_override" default:"true"`
	DedupEnabled             bool          `toml:"dedup_enabled" default:"false"`
	DedupMaxEntries          int           `toml:"dedup_max_entries" default:"1000"`
	DedupExpiry              time.Duration `toml:"dedup_expiry" default:"60s"`
}

type AuthConfig struct {
	JWTSecret   string        `toml:"jwt_secret"`
	TokenTTL    time.Duration `toml:"token_ttl" default:"24h"`
	RequireAuth bool          `toml:"require_auth" default:"false"`
}

type LogConfig struct {
	Level string `toml:"level" default:"info"`
}

// Load starts from Default, decodes path over it if path is non-empty,
// then applies STREAMKEG_* environment overrides via LoadFromEnv.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, wire.New(wire.KindIoError, "decode config file %s: %v", path, err)
		}
	}
	LoadFromEnv(cfg)
	return cfg, nil
}

// Default returns a Config populated with every field's documented
// default, so the broker can boot with no config file at all.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddress: "0.0.0.0:9000", MetricsAddress: "0.0.0.0:9001"},
		Data: DataConfig{
			Path:                   "./streamkeg-data",
			SegmentMaxSizeBytes:    1 << 30,
			SegmentIndexStride:     10,
			SegmentCacheIndexes:    true,
			MessagesRequiredToSave: 1000,
			EnforceFsync:           false,
			CacheCapacityMessages:  10000,
			CacheQuotaBytes:        256 << 20,
			DiskIOConcurrency:      4,
			RetentionSweepInterval: 30 * time.Second,
		},
		Topic: TopicDefaults{
			CompressionAlgorithm:     "none",
			AllowCompressionOverride: true,
			DedupEnabled:             false,
			DedupMaxEntries:          1000,
			DedupExpiry:              60 * time.Second,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour, RequireAuth: false},
		Log:  LogConfig{Level: "info"},
	}
}
