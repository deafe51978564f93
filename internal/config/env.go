package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overrides cfg's fields from STREAMKEG_* environment
// variables, following the same "parse, fall back to existing value on
// error" pattern for every field.
func LoadFromEnv(cfg *Config) {
	if addr := os.Getenv("STREAMKEG_LISTEN_ADDRESS"); addr != "" {
		cfg.Server.ListenAddress = addr
	}
	if addr := os.Getenv("STREAMKEG_METRICS_ADDRESS"); addr != "" {
		cfg.Server.MetricsAddress = addr
	}

	if path := os.Getenv("STREAMKEG_DATA_PATH"); path != "" {
		cfg.Data.Path = path
	}
	if size := os.Getenv("STREAMKEG_SEGMENT_MAX_SIZE_BYTES"); size != "" {
		if v, err := strconv.ParseUint(size, 10, 64); err == nil {
			cfg.Data.SegmentMaxSizeBytes = v
		}
	}
	if stride := os.Getenv("STREAMKEG_SEGMENT_INDEX_STRIDE"); stride != "" {
		if v, err := strconv.ParseUint(stride, 10, 32); err == nil {
			cfg.Data.SegmentIndexStride = uint32(v)
		}
	}
	if fsync := os.Getenv("STREAMKEG_ENFORCE_FSYNC"); fsync != "" {
		if v, err := strconv.ParseBool(fsync); err == nil {
			cfg.Data.EnforceFsync = v
		}
	}
	if cap := os.Getenv("STREAMKEG_CACHE_CAPACITY_MESSAGES"); cap != "" {
		if v, err := strconv.Atoi(cap); err == nil {
			cfg.Data.CacheCapacityMessages = v
		}
	}
	if quota := os.Getenv("STREAMKEG_CACHE_QUOTA_BYTES"); quota != "" {
		if v, err := strconv.ParseInt(quota, 10, 64); err == nil {
			cfg.Data.CacheQuotaBytes = v
		}
	}
	if conc := os.Getenv("STREAMKEG_DISK_IO_CONCURRENCY"); conc != "" {
		if v, err := strconv.Atoi(conc); err == nil {
			cfg.Data.DiskIOConcurrency = v
		}
	}
	if interval := os.Getenv("STREAMKEG_RETENTION_SWEEP_INTERVAL"); interval != "" {
		if v, err := time.ParseDuration(interval); err == nil {
			cfg.Data.RetentionSweepInterval = v
		}
	}

	if alg := os.Getenv("STREAMKEG_COMPRESSION_ALGORITHM"); alg != "" {
		cfg.Topic.CompressionAlgorithm = alg
	}
	if dedup := os.Getenv("STREAMKEG_DEDUP_ENABLED"); dedup != "" {
		if v, err := strconv.ParseBool(dedup); err == nil {
			cfg.Topic.DedupEnabled = v
		}
	}

	if secret := os.Getenv("STREAMKEG_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if ttl := os.Getenv("STREAMKEG_TOKEN_TTL"); ttl != "" {
		if v, err := time.ParseDuration(ttl); err == nil {
			cfg.Auth.TokenTTL = v
		}
	}
	if require := os.Getenv("STREAMKEG_REQUIRE_AUTH"); require != "" {
		if v, err := strconv.ParseBool(require); err == nil {
			cfg.Auth.RequireAuth = v
		}
	}

	if logLevel := os.Getenv("STREAMKEG_LOG_LEVEL"); logLevel != "" {
		cfg.Log.Level = logLevel
	}
}

// GetEnvOrDefault returns the environment variable's value or defaultValue
// if it is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
