// Package engine implements the Bitmap Engine of spec.md §4.D: the three
// state bitmaps, the block metadata map, the dual (time, WAL) ordered
// indices, and the single RWMutex that linearizes every mutation and read.
// Grounded directly on original_source/.../bitmap_engine.c (DESIGN.md §D).
package engine

import (
	"sync"
	"time"

	"github.com/taosdata/incbitmap/internal/bitmap"
	"github.com/taosdata/incbitmap/internal/errs"
	"github.com/taosdata/incbitmap/internal/skiplist"
)

// Config holds the engine-scoped options of spec §6.4.
type Config struct {
	MaxBlocks              uint64
	MemoryLimitMB           uint64
	PersistenceEnabled      bool
	PersistencePath         string
	LRUCleanupThresholdPct  int
	MemoryMonitorEnabled    bool
	MemoryMonitorInterval   time.Duration
}

// DefaultConfig returns the engine defaults. New uses its Config as given
// and does not substitute these for zero-valued fields.
func DefaultConfig() Config {
	return Config{
		MaxBlocks:             0, // 0 = unbounded
		MemoryLimitMB:         0, // 0 = unmonitored
		LRUCleanupThresholdPct: 90,
		MemoryMonitorInterval:  time.Second,
	}
}

// Stats mirrors get_stats() in spec §4.D.
type Stats struct {
	TotalBlocks uint64
	Dirty       uint64
	New         uint64
	Deleted     uint64
}

// MemoryWarningFunc is invoked by the background monitor when the engine's
// estimated footprint crosses the configured threshold.
type MemoryWarningFunc func(usedBytes, limitBytes uint64)

// Engine is the Bitmap Engine: the heart of the system (spec §4.D).
type Engine struct {
	cfg Config

	mu       sync.RWMutex
	dirty    *bitmap.Set
	newb     *bitmap.Set
	deleted  *bitmap.Set
	metadata map[uint64]Metadata
	timeIdx  *skiplist.List
	walIdx   *skiplist.List

	onMemoryWarning MemoryWarningFunc
	stopMonitor     chan struct{}
	monitorDone     chan struct{}
}

// New constructs an empty Engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		dirty:    bitmap.New(),
		newb:     bitmap.New(),
		deleted:  bitmap.New(),
		metadata: make(map[uint64]Metadata),
		timeIdx:  skiplist.New(),
		walIdx:   skiplist.New(),
	}
}

func (e *Engine) bitmapFor(s BlockState) *bitmap.Set {
	switch s {
	case Dirty:
		return e.dirty
	case NewState:
		return e.newb
	case Deleted:
		return e.deleted
	default:
		return nil
	}
}

// mark is the shared body of MarkDirty/MarkNew/MarkDeleted: validate the
// transition, update metadata and the three bitmaps atomically under the
// write lock, then post to both ordered indices. Old (wal, ts) postings
// from a prior mark are deliberately left in the indices (spec §9 "dual
// indexing without eager purge") — queries intersect with the current
// state bitmap to filter them out.
func (e *Engine) mark(id, wal uint64, ts int64, target BlockState) error {
	if target != Dirty && target != NewState && target != Deleted {
		return errs.New(errs.InvalidParam, "mark: invalid target state %s", target)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := Clean
	if md, ok := e.metadata[id]; ok {
		current = md.State
	}
	if !validTransition(current, target) {
		return errs.New(errs.InvalidStateTransition, "%s", transitionError(current, target))
	}

	if prevBM := e.bitmapFor(current); prevBM != nil {
		prevBM.Remove(id)
	}
	e.bitmapFor(target).Add(id)

	e.metadata[id] = Metadata{BlockID: id, WALOffset: wal, Timestamp: ts, State: target}
	e.timeIdx.GetOrCreate(ts).Add(id)
	e.walIdx.GetOrCreate(int64(wal)).Add(id)
	return nil
}

// MarkDirty records that block id was modified.
func (e *Engine) MarkDirty(id, wal uint64, ts int64) error { return e.mark(id, wal, ts, Dirty) }

// MarkNew records that block id was just created.
func (e *Engine) MarkNew(id, wal uint64, ts int64) error { return e.mark(id, wal, ts, NewState) }

// MarkDeleted records that block id was removed.
func (e *Engine) MarkDeleted(id, wal uint64, ts int64) error { return e.mark(id, wal, ts, Deleted) }

// ClearBlock purges id back to CLEAN, erasing its metadata. Not permitted
// from DELETED (spec §3).
func (e *Engine) ClearBlock(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	md, ok := e.metadata[id]
	if !ok {
		return errs.New(errs.BlockNotFound, "clear_block: block %d has no metadata", id)
	}
	if !validTransition(md.State, Clean) {
		return errs.New(errs.InvalidStateTransition, "%s", transitionError(md.State, Clean))
	}

	e.dirty.Remove(id)
	e.newb.Remove(id)
	e.deleted.Remove(id)
	delete(e.metadata, id)
	return nil
}

// GetMetadata returns a copy of block id's metadata, if any.
func (e *Engine) GetMetadata(id uint64) (Metadata, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	md, ok := e.metadata[id]
	return md, ok
}

// GetState returns id's current state, defaulting to Clean if untracked.
func (e *Engine) GetState(id uint64) BlockState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if md, ok := e.metadata[id]; ok {
		return md.State
	}
	return Clean
}

// rangeUnion unions every bitmap posted in idx over [lo, hi] into a fresh set.
func rangeUnion(idx *skiplist.List, lo, hi int64) *bitmap.Set {
	out := bitmap.New()
	idx.ForEach(lo, hi, false, func(_ int64, bm *bitmap.Set) {
		out.UnionInPlace(bm)
	})
	return out
}

// GetDirtyBlocksByTime fills out with up to max ascending block-ids whose
// time_index posting falls in [tLo, tHi] and whose current state is DIRTY.
func (e *Engine) GetDirtyBlocksByTime(tLo, tHi int64, max int) []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	union := rangeUnion(e.timeIdx, tLo, tHi)
	union.IntersectInPlace(e.dirty)
	return union.ToArray(max)
}

// GetDirtyBlocksByWAL is the WAL-offset symmetric counterpart.
func (e *Engine) GetDirtyBlocksByWAL(wLo, wHi uint64, max int) []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	union := rangeUnion(e.walIdx, int64(wLo), int64(wHi))
	union.IntersectInPlace(e.dirty)
	return union.ToArray(max)
}

// GetStats returns the counters of spec §4.D, consistent as of lock release.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		TotalBlocks: uint64(len(e.metadata)),
		Dirty:       e.dirty.Cardinality(),
		New:         e.newb.Cardinality(),
		Deleted:     e.deleted.Cardinality(),
	}
}

// MemoryBytes estimates the engine's current heap footprint.
func (e *Engine) MemoryBytes() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	total := e.dirty.MemoryBytes() + e.newb.MemoryBytes() + e.deleted.MemoryBytes()
	total += len(e.metadata) * 64 // map entry + Metadata struct, approximate
	return uint64(total)
}

// Checkpoint resets the engine to empty, as performed after a successful
// backup (spec §3 "Lifecycle": metadata is destroyed "by a successful
// backup checkpoint that resets the engine").
func (e *Engine) Checkpoint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty = bitmap.New()
	e.newb = bitmap.New()
	e.deleted = bitmap.New()
	e.metadata = make(map[uint64]Metadata)
	e.timeIdx = skiplist.New()
	e.walIdx = skiplist.New()
}
