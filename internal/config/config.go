// Package config loads and validates the option groups of spec.md §6.4
// (Engine, Interceptor, Coordinator) from YAML, applying defaults before
// validation — the flat-struct-plus-Validate() shape pebble's own
// options.go uses (DESIGN.md §J).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taosdata/incbitmap/internal/backup"
	"github.com/taosdata/incbitmap/internal/engine"
	"github.com/taosdata/incbitmap/internal/errs"
	"github.com/taosdata/incbitmap/internal/interceptor"
)

// EngineConfig is the YAML-facing mirror of engine.Config.
type EngineConfig struct {
	MaxBlocks              uint64        `yaml:"max_blocks"`
	MemoryLimitMB          uint64        `yaml:"memory_limit_mb"`
	PersistenceEnabled     bool          `yaml:"persistence_enabled"`
	PersistencePath        string        `yaml:"persistence_path"`
	LRUCleanupThresholdPct int           `yaml:"lru_cleanup_threshold_pct"`
	MemoryMonitorEnabled   bool          `yaml:"memory_monitor_enabled"`
	MemoryMonitorInterval  time.Duration `yaml:"memory_monitor_interval"`
}

// InterceptorConfig is the YAML-facing mirror of interceptor.Config.
type InterceptorConfig struct {
	QueueCapacity  int           `yaml:"event_buffer_size"`
	WorkerCount    int           `yaml:"callback_threads"`
	FlushPolicy    string        `yaml:"flush_policy"` // "clear" | "ignore"
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
}

// CoordinatorConfig is the YAML-facing mirror of backup.Config.
type CoordinatorConfig struct {
	MaxBlocksPerBatch  uint32 `yaml:"max_blocks_per_batch"`
	BatchTimeoutMS     uint32 `yaml:"batch_timeout_ms"`
	EnableCompression  bool   `yaml:"enable_compression"`
	CompressionLevel   uint8  `yaml:"compression_level"` // 1=fastest 2=balanced 3=best
	AvgBlockSizeBytes  uint64 `yaml:"avg_block_size_bytes"`
	ErrorRetryMax      uint32 `yaml:"error_retry_max"`
	ErrorRetryInterval uint32 `yaml:"error_retry_interval_secs"`
	ErrorStorePath     string `yaml:"error_store_path"`
	EnableErrorLogging bool   `yaml:"enable_error_logging"`
	BackupPath         string `yaml:"backup_path"`
	BackupMaxSizeBytes uint64 `yaml:"backup_max_size_bytes"`
}

// Config is the root of the option tree loaded from YAML.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Interceptor InterceptorConfig `yaml:"interceptor"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// Default returns a Config with every field set to this module's defaults.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			LRUCleanupThresholdPct: 90,
			MemoryMonitorInterval:  time.Second,
		},
		Interceptor: InterceptorConfig{
			QueueCapacity:  4096,
			WorkerCount:    4,
			FlushPolicy:    "clear",
			DequeueTimeout: 200 * time.Millisecond,
		},
		Coordinator: CoordinatorConfig{
			MaxBlocksPerBatch:  1000,
			BatchTimeoutMS:     5000,
			CompressionLevel:   2,
			AvgBlockSizeBytes:  1024,
			ErrorRetryMax:      10,
			ErrorRetryInterval: 5,
			BackupMaxSizeBytes: 1 << 30, // 1GiB
		},
	}
}

// Load reads a YAML config file at path, applying Default() for any zero
// fields left unset and then validating the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.FileIO, err, "config: reading %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.InvalidParam, err, "config: parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every option group for internally-consistent values.
func (c Config) Validate() error {
	if c.Engine.LRUCleanupThresholdPct < 0 || c.Engine.LRUCleanupThresholdPct > 100 {
		return errs.New(errs.InvalidParam, "config: engine.lru_cleanup_threshold_pct must be in [0,100]")
	}
	if c.Interceptor.QueueCapacity <= 0 {
		return errs.New(errs.InvalidParam, "config: interceptor.event_buffer_size must be positive")
	}
	if c.Interceptor.WorkerCount <= 0 {
		return errs.New(errs.InvalidParam, "config: interceptor.callback_threads must be positive")
	}
	if c.Interceptor.FlushPolicy != "clear" && c.Interceptor.FlushPolicy != "ignore" {
		return errs.New(errs.InvalidParam, "config: interceptor.flush_policy must be %q or %q", "clear", "ignore")
	}
	if c.Coordinator.MaxBlocksPerBatch == 0 {
		return errs.New(errs.InvalidParam, "config: coordinator.max_blocks_per_batch must be positive")
	}
	if c.Coordinator.AvgBlockSizeBytes == 0 {
		return errs.New(errs.InvalidParam, "config: coordinator.avg_block_size_bytes must be positive")
	}
	if c.Coordinator.CompressionLevel < 1 || c.Coordinator.CompressionLevel > 3 {
		return errs.New(errs.InvalidParam, "config: coordinator.compression_level must be 1, 2, or 3")
	}
	return nil
}

// ToEngineConfig converts the loaded option group into engine.Config.
func (c Config) ToEngineConfig() engine.Config {
	return engine.Config{
		MaxBlocks:              c.Engine.MaxBlocks,
		MemoryLimitMB:          c.Engine.MemoryLimitMB,
		PersistenceEnabled:     c.Engine.PersistenceEnabled,
		PersistencePath:        c.Engine.PersistencePath,
		LRUCleanupThresholdPct: c.Engine.LRUCleanupThresholdPct,
		MemoryMonitorEnabled:   c.Engine.MemoryMonitorEnabled,
		MemoryMonitorInterval:  c.Engine.MemoryMonitorInterval,
	}
}

// ToInterceptorConfig converts the loaded option group into
// interceptor.Config.
func (c Config) ToInterceptorConfig() interceptor.Config {
	policy := interceptor.FlushClear
	if c.Interceptor.FlushPolicy == "ignore" {
		policy = interceptor.FlushIgnore
	}
	return interceptor.Config{
		QueueCapacity:  c.Interceptor.QueueCapacity,
		WorkerCount:    c.Interceptor.WorkerCount,
		FlushPolicy:    policy,
		DequeueTimeout: c.Interceptor.DequeueTimeout,
	}
}

// ToBackupConfig converts the loaded option group into backup.Config.
func (c Config) ToBackupConfig() backup.Config {
	level := int(c.Coordinator.CompressionLevel)
	if !c.Coordinator.EnableCompression {
		level = 0
	}
	return backup.Config{
		MaxBlocksPerBatch:  c.Coordinator.MaxBlocksPerBatch,
		BatchTimeout:       time.Duration(c.Coordinator.BatchTimeoutMS) * time.Millisecond,
		CompressionLevel:   level,
		AvgBlockSizeBytes:  c.Coordinator.AvgBlockSizeBytes,
		ErrorRetryMax:      c.Coordinator.ErrorRetryMax,
		ErrorRetryInterval: time.Duration(c.Coordinator.ErrorRetryInterval) * time.Second,
		ErrorStorePath:     c.Coordinator.ErrorStorePath,
		EnableErrorLogging: c.Coordinator.EnableErrorLogging,
		BackupPath:         c.Coordinator.BackupPath,
		BackupMaxSizeBytes: c.Coordinator.BackupMaxSizeBytes,
	}
}
