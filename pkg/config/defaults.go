package config

import "strings"

// ApplyDefaults fills unset fields of cfg with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "") are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyCacheDefaults sets cache pool defaults. The water marks default to
// a single block — a plugin host that doesn't configure them gets a pool
// of exactly one block, which is conservative rather than silently
// generous.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.BlockSize == "" {
		cfg.BlockSize = "512KiB"
	}
	if cfg.LowWaterBlocks == 0 {
		cfg.LowWaterBlocks = 1
	}
	if cfg.HighWaterBlocks == 0 {
		cfg.HighWaterBlocks = cfg.LowWaterBlocks
	}
	if cfg.HighWaterBlocks < cfg.LowWaterBlocks {
		cfg.HighWaterBlocks = cfg.LowWaterBlocks
	}
}
