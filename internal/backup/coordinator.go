// Package backup implements the Backup Coordinator of spec.md §4.F:
// cursors over the Bitmap Engine's dirty set, batched incremental reads,
// size estimation, backup validation, and a retry policy with a persistent
// error log. Grounded on
// original_source/.../backup_coordinator.{c,h} for the cursor/config field
// layout, and on
// _examples/cockroachdb-pebble/cleaner.go's token-bucket-paced deletion
// loop for the "count attempts, back off, give up" retry shape and its use
// of tokenbucket to avoid starving concurrent work (DESIGN.md §F).
package backup

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/crlib/fifo"
	"github.com/cockroachdb/tokenbucket"

	"github.com/taosdata/incbitmap/internal/engine"
	"github.com/taosdata/incbitmap/internal/errs"
	"github.com/taosdata/incbitmap/internal/logging"
)

// Config holds the coordinator's tunables, mirroring
// SBackupCoordinatorConfig from original_source/.../backup_coordinator.h.
type Config struct {
	MaxBlocksPerBatch  uint32
	BatchTimeout       time.Duration
	CompressionLevel   int // 0 disables compression, else 1=fastest 2=balanced 3=best
	AvgBlockSizeBytes  uint64
	ErrorRetryMax      uint32
	ErrorRetryInterval time.Duration
	ErrorStorePath     string
	EnableErrorLogging bool
	BackupPath         string
	BackupMaxSizeBytes uint64
}

// DefaultConfig returns the coordinator defaults (matching backup_coordinator.h's
// documented C defaults: error_retry_max=10, error_retry_interval=5s).
func DefaultConfig() Config {
	return Config{
		MaxBlocksPerBatch:  1000,
		BatchTimeout:       5 * time.Second,
		CompressionLevel:   2,
		AvgBlockSizeBytes:  1024,
		ErrorRetryMax:      10,
		ErrorRetryInterval: 5 * time.Second,
		BackupMaxSizeBytes: 1 << 30,
	}
}

// Stats mirrors backup_coordinator_get_stats.
type Stats struct {
	TotalBackupBlocks uint64
	TotalBackupSize   uint64
	BackupDurationMS  uint64
}

// ErrorStats mirrors backup_get_error_stats.
type ErrorStats struct {
	ErrorCount uint64
	RetryCount uint64
}

// BlockSource is the subset of *engine.Engine the coordinator depends on,
// narrowed to an interface for testability.
type BlockSource interface {
	GetDirtyBlocksByTime(tLo, tHi int64, max int) []uint64
	GetDirtyBlocksByWAL(wLo, wHi uint64, max int) []uint64
	GetMetadata(id uint64) (engine.Metadata, bool)
	GetState(id uint64) engine.BlockState
}

// BlockPayloadFunc supplies the raw bytes of a block, since the engine
// itself only tracks state/metadata, not block contents (spec §3: block
// data lives in the storage engine, not the bitmap engine).
type BlockPayloadFunc func(blockID uint64) ([]byte, error)

// Coordinator drives incremental backup reads over a BlockSource.
type Coordinator struct {
	cfg        Config
	src        BlockSource
	payloadFor BlockPayloadFunc
	log        logging.Logger
	limiter    *tokenbucket.TokenBucket
	readSema   *fifo.Semaphore

	mu         sync.Mutex
	cursors    map[*Cursor]struct{}
	errLog     *errorLog
	retryCount uint64

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Coordinator. payloadFor supplies a block's raw bytes for
// batched reads; log may be nil.
func New(cfg Config, src BlockSource, payloadFor BlockPayloadFunc, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	c := &Coordinator{
		cfg:        cfg,
		src:        src,
		payloadFor: payloadFor,
		log:        log,
		cursors:    make(map[*Cursor]struct{}),
		errLog:     newErrorLog(cfg.ErrorStorePath, cfg.EnableErrorLogging),
		readSema:   fifo.NewSemaphore(batchReadConcurrency),
	}
	if cfg.BatchTimeout > 0 {
		rate := float64(cfg.MaxBlocksPerBatch) / cfg.BatchTimeout.Seconds()
		c.limiter = &tokenbucket.TokenBucket{}
		c.limiter.Init(tokenbucket.TokensPerSecond(rate), tokenbucket.Tokens(cfg.MaxBlocksPerBatch))
	}
	return c
}

// pace throttles batch reads to at most MaxBlocksPerBatch per BatchTimeout,
// so one long-running backup cannot starve the interceptor's workers for
// the engine's read lock (spec §5), grounded on cleaner.go's maybePace.
func (c *Coordinator) pace(ctx context.Context, n int) error {
	if c.limiter == nil || n == 0 {
		return nil
	}
	for {
		ok, d := c.limiter.TryToFulfill(tokenbucket.Tokens(n))
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

// GetDirtyBlocks mirrors backup_coordinator_get_dirty_blocks: dirty block
// ids in [startWAL, endWAL], up to maxCount.
func (c *Coordinator) GetDirtyBlocks(startWAL, endWAL uint64, maxCount int) []uint64 {
	return c.src.GetDirtyBlocksByWAL(startWAL, endWAL, maxCount)
}

// EstimateSize mirrors backup_coordinator_estimate_size. The bytes-per-block
// factor is Config.AvgBlockSizeBytes, never hardcoded (spec §9 open
// question).
func (c *Coordinator) EstimateSize(startWAL, endWAL uint64) (estimatedBlocks, estimatedSize uint64, err error) {
	if c.cfg.AvgBlockSizeBytes == 0 {
		return 0, 0, errs.New(errs.InvalidParam, "backup: avg_block_size_bytes must be positive")
	}
	blocks := c.src.GetDirtyBlocksByWAL(startWAL, endWAL, int(^uint32(0)>>1))
	n := uint64(len(blocks))
	return n, n * c.cfg.AvgBlockSizeBytes, nil
}

// ValidateBackup mirrors backup_coordinator_validate_backup: every block
// must currently exist with matching metadata and be in a backupable state
// (not CLEAN, since a CLEAN block was never dirty in this window).
func (c *Coordinator) ValidateBackup(startWAL, endWAL uint64, blocks []Block) error {
	for _, b := range blocks {
		md, ok := c.src.GetMetadata(b.BlockID)
		if !ok {
			return errs.New(errs.DataCorruption, "backup: block %d missing metadata at validation time", b.BlockID)
		}
		if md.WALOffset != b.WALOffset {
			return errs.New(errs.DataCorruption, "backup: block %d WAL offset mismatch: archive=%d engine=%d", b.BlockID, b.WALOffset, md.WALOffset)
		}
		if md.WALOffset < startWAL || md.WALOffset > endWAL {
			return errs.New(errs.DataCorruption, "backup: block %d WAL offset %d outside range [%d, %d]", b.BlockID, md.WALOffset, startWAL, endWAL)
		}
		if md.State == engine.Clean {
			return errs.New(errs.DataCorruption, "backup: block %d is CLEAN, should not appear in a dirty backup window", b.BlockID)
		}
	}
	return nil
}

// GenerateMetadata mirrors backup_coordinator_generate_metadata: a compact
// summary of the blocks covered by [startWAL, endWAL].
func (c *Coordinator) GenerateMetadata(startWAL, endWAL uint64) Metadata {
	ids := c.src.GetDirtyBlocksByWAL(startWAL, endWAL, int(^uint32(0)>>1))
	return Metadata{
		StartWAL:   startWAL,
		EndWAL:     endWAL,
		BlockCount: uint32(len(ids)),
		GeneratedAtUnixMS: time.Now().UnixMilli(),
	}
}

// GetStats mirrors backup_coordinator_get_stats.
func (c *Coordinator) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Coordinator) recordBatch(blockCount, byteCount uint64, durationMS uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.TotalBackupBlocks += blockCount
	c.stats.TotalBackupSize += byteCount
	c.stats.BackupDurationMS += durationMS
}

// GetErrorStats mirrors backup_get_error_stats.
func (c *Coordinator) GetErrorStats() ErrorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ErrorStats{ErrorCount: c.errLog.count(), RetryCount: c.retryCount}
}

// GetLastError mirrors backup_get_last_error.
func (c *Coordinator) GetLastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errLog.last()
}

// ClearError mirrors backup_clear_error.
func (c *Coordinator) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errLog.clear()
}
