// Package config defines the scheduler's configuration surface and decodes
// it from an arbitrary key/value map, the way a plugin receives its
// configuration in this system: a key/value map (with "logging" and
// "cache" sections) passed in at Init time, not a file path.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/dittofs/tapesched/internal/bytesize"
)

// LoggingConfig controls the package-level logger. Carried even though the
// scheduler's own spec is silent on logging, matching how every component
// in this codebase carries one.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// CacheConfig controls the cache block pool and the dual-partition
// placement policy.
type CacheConfig struct {
	// BlockSize is the size of one cache block, normally equal to the
	// tape device's native block size.
	BlockSize string `mapstructure:"block_size"`

	// LowWaterBlocks is the pool's initial_capacity: the number of
	// blocks created at Init and the floor below which Release never
	// shrinks the pool.
	LowWaterBlocks int `mapstructure:"low_water_blocks"`

	// HighWaterBlocks is the pool's max_capacity: the ceiling the pool
	// never grows past, and the size of the cache-waiters semaphore.
	HighWaterBlocks int `mapstructure:"high_water_blocks"`

	// MaxIPFileSize is the largest logical file size eligible for Index
	// Partition placement. A string so it accepts the same human units
	// as BlockSize (e.g. "1MiB"); zero/empty disables IP placement.
	MaxIPFileSize string `mapstructure:"max_ip_file_size"`
}

// Config is the full configuration accepted by this module's plugin Init
// entry point.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// Decode converts an arbitrary map (as received from the plugin host) into
// a Config, then fills in defaults for anything left unset.
func Decode(raw map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ResolvedCache is CacheConfig with its human-readable sizes parsed into
// byte counts, ready for the cachepool and scheduler packages to consume.
type ResolvedCache struct {
	BlockSize       bytesize.ByteSize
	LowWaterBlocks  int
	HighWaterBlocks int
	MaxIPFileSize   bytesize.ByteSize
}

// Resolve parses the human-readable size fields of CacheConfig.
func (c CacheConfig) Resolve() (ResolvedCache, error) {
	blockSize, err := bytesize.Parse(c.BlockSize)
	if err != nil {
		return ResolvedCache{}, fmt.Errorf("config: cache.block_size: %w", err)
	}

	var maxIP bytesize.ByteSize
	if c.MaxIPFileSize != "" {
		maxIP, err = bytesize.Parse(c.MaxIPFileSize)
		if err != nil {
			return ResolvedCache{}, fmt.Errorf("config: cache.max_ip_file_size: %w", err)
		}
	}

	return ResolvedCache{
		BlockSize:       blockSize,
		LowWaterBlocks:  c.LowWaterBlocks,
		HighWaterBlocks: c.HighWaterBlocks,
		MaxIPFileSize:   maxIP,
	}, nil
}
