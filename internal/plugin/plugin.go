// Package plugin exposes the incremental backup engine as a single
// process-wide facility, mirroring the taosX plugin surface of
// original_source/.../backup_coordinator.c's backup_plugin_* functions:
// Init wires a Bitmap Engine, an Event Interceptor and a Backup Coordinator
// together behind one guarded singleton, and every other method forwards to
// whichever of those three components owns the operation.
package plugin

import (
	"context"
	"sync"

	"github.com/taosdata/incbitmap/internal/backup"
	"github.com/taosdata/incbitmap/internal/config"
	"github.com/taosdata/incbitmap/internal/engine"
	"github.com/taosdata/incbitmap/internal/errs"
	"github.com/taosdata/incbitmap/internal/interceptor"
	"github.com/taosdata/incbitmap/internal/logging"
)

const (
	pluginName    = "incremental_bitmap_backup"
	pluginVersion = "1.0.0"
)

// Plugin is the wired-together engine/interceptor/coordinator triple. Callers
// normally use the package-level singleton via Init/Cleanup/Instance, which
// mirrors the C plugin's process-global g_backup_coordinator, but Plugin
// itself takes no locks of its own beyond what its components already hold,
// so tests can construct one directly.
type Plugin struct {
	Engine      *engine.Engine
	Interceptor *interceptor.Interceptor
	Coordinator *backup.Coordinator

	log logging.Logger
}

// PayloadFetcher supplies a block's raw bytes for backup reads. The bitmap
// engine only ever tracks state and metadata (spec §3), so wiring a plugin
// always requires the host to provide one of these.
type PayloadFetcher = backup.BlockPayloadFunc

var (
	mu       sync.Mutex
	instance *Plugin
)

// Name mirrors backup_plugin_name.
func Name() string { return pluginName }

// Version mirrors backup_plugin_version.
func Version() string { return pluginVersion }

// Init mirrors backup_plugin_init: constructs the engine/interceptor/
// coordinator triple from cfg, starts the interceptor's worker pool, and
// installs the result as the package singleton. Returns an errs.InvalidParam
// "already initialized" error if called twice without an intervening
// Cleanup.
func Init(cfg config.Config, payloadFor PayloadFetcher, log logging.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return errs.New(errs.InvalidParam, "plugin: already initialized")
	}
	if log == nil {
		log = logging.Nop()
	}

	eng := engine.New(cfg.ToEngineConfig())
	eng.StartMemoryMonitor(func(used, limit uint64) {
		log.Errorf("plugin: engine memory usage %d bytes approaching limit %d bytes", used, limit)
	})

	ic := interceptor.New(cfg.ToInterceptorConfig(), eng, log)
	if err := ic.Start(); err != nil {
		eng.StopMemoryMonitor()
		return errs.Wrap(errs.InvalidParam, err, "plugin: starting event interceptor")
	}

	coord := backup.New(cfg.ToBackupConfig(), eng, payloadFor, log)

	instance = &Plugin{Engine: eng, Interceptor: ic, Coordinator: coord, log: log}
	return nil
}

// Cleanup mirrors backup_plugin_cleanup: stops the interceptor and memory
// monitor and drops the singleton. Safe to call when not initialized.
func Cleanup() {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		return
	}
	instance.Interceptor.Stop()
	instance.Engine.StopMemoryMonitor()
	instance = nil
}

// Instance returns the current singleton, or nil if Init has not been
// called (or Cleanup has run since).
func Instance() *Plugin {
	mu.Lock()
	defer mu.Unlock()
	return instance
}

func current() (*Plugin, error) {
	p := Instance()
	if p == nil {
		return nil, errs.New(errs.NotInitialized, "plugin: not initialized")
	}
	return p, nil
}

// GetDirtyBlocks mirrors backup_plugin_get_dirty_blocks.
func GetDirtyBlocks(startWAL, endWAL uint64, maxCount int) ([]uint64, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return p.Coordinator.GetDirtyBlocks(startWAL, endWAL, maxCount), nil
}

// CreateIncrementalCursor mirrors backup_plugin_create_incremental_cursor.
func CreateIncrementalCursor(cursorType backup.CursorType, startTime, endTime int64, startWAL, endWAL uint64) (*backup.Cursor, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return p.Coordinator.CreateCursor(cursorType, startTime, endTime, startWAL, endWAL)
}

// DestroyCursor mirrors backup_plugin_destroy_cursor.
func DestroyCursor(cur *backup.Cursor) error {
	p, err := current()
	if err != nil {
		return err
	}
	p.Coordinator.DestroyCursor(cur)
	return nil
}

// GetNextBatch mirrors backup_plugin_get_next_batch.
func GetNextBatch(ctx context.Context, cur *backup.Cursor, maxCount int) ([]backup.Block, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return p.Coordinator.GetNextBatch(ctx, cur, maxCount)
}

// EstimateBackupSize mirrors backup_plugin_estimate_backup_size.
func EstimateBackupSize(startWAL, endWAL uint64) (blocks, size uint64, err error) {
	p, err := current()
	if err != nil {
		return 0, 0, err
	}
	return p.Coordinator.EstimateSize(startWAL, endWAL)
}

// GenerateMetadata mirrors backup_plugin_generate_metadata.
func GenerateMetadata(startWAL, endWAL uint64) (backup.Metadata, error) {
	p, err := current()
	if err != nil {
		return backup.Metadata{}, err
	}
	return p.Coordinator.GenerateMetadata(startWAL, endWAL), nil
}

// ValidateBackup mirrors backup_plugin_validate_backup.
func ValidateBackup(startWAL, endWAL uint64, blocks []backup.Block) error {
	p, err := current()
	if err != nil {
		return err
	}
	return p.Coordinator.ValidateBackup(startWAL, endWAL, blocks)
}

// GetStats mirrors backup_plugin_get_stats.
func GetStats() (backup.Stats, error) {
	p, err := current()
	if err != nil {
		return backup.Stats{}, err
	}
	return p.Coordinator.GetStats(), nil
}

// GetLastError mirrors backup_plugin_get_last_error.
func GetLastError() (string, error) {
	p, err := current()
	if err != nil {
		return "", err
	}
	return p.Coordinator.GetLastError(), nil
}

// GetErrorStats mirrors backup_plugin_get_error_stats.
func GetErrorStats() (backup.ErrorStats, error) {
	p, err := current()
	if err != nil {
		return backup.ErrorStats{}, err
	}
	return p.Coordinator.GetErrorStats(), nil
}

// ClearError mirrors backup_plugin_clear_error.
func ClearError() error {
	p, err := current()
	if err != nil {
		return err
	}
	p.Coordinator.ClearError()
	return nil
}

// EngineStats exposes the bitmap engine's own counters, used by the CLI and
// metrics exporter (spec §4.D get_stats, not part of the original taosX
// plugin surface but needed by anything observing engine health directly).
func EngineStats() (engine.Stats, error) {
	p, err := current()
	if err != nil {
		return engine.Stats{}, err
	}
	return p.Engine.GetStats(), nil
}

// InterceptorStats exposes the event interceptor's counters (spec §4.E).
func InterceptorStats() (interceptor.Stats, error) {
	p, err := current()
	if err != nil {
		return interceptor.Stats{}, err
	}
	return p.Interceptor.GetStats(), nil
}
