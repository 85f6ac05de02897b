package backup

import (
	"sync"

	"github.com/taosdata/incbitmap/internal/engine"
	"github.com/taosdata/incbitmap/internal/errs"
)

// CursorType selects which of the engine's two ordered indices a Cursor
// walks (spec §4.F / original_source ECursorType).
type CursorType int8

const (
	CursorTime CursorType = iota
	CursorWAL
	CursorHybrid
)

// unboundedMax is the "no cap" sentinel passed to the engine's range
// queries when a cursor needs every matching id in its window, not a
// batch-sized slice of them.
const unboundedMax = int(^uint32(0) >> 1)

// Block is one incremental block read from a cursor batch (spec §3
// "Incremental block" / SIncrementalBlock).
type Block struct {
	BlockID   uint64
	WALOffset uint64
	Timestamp int64
	Data      []byte
	State     engine.BlockState
}

// Metadata summarizes a backup window (spec §4.F generate_metadata).
type Metadata struct {
	StartWAL          uint64
	EndWAL            uint64
	BlockCount        uint32
	GeneratedAtUnixMS int64
}

// Cursor tracks a backup window, not a snapshot of its contents: it holds
// no block-id list, only the window bounds and the last block id it
// handed out. Every GetNextBatch/BlockCount call re-queries the Bitmap
// Engine's live index (spec §3 "cursors do not take a snapshot"; §5
// "cursor reads see all mutations committed before the read's lock
// acquisition"), so blocks marked dirty after CreateCursor are still
// visible as long as the cursor hasn't already passed their id.
//
// Progress is tracked by the last emitted block id rather than by WAL
// offset or timestamp: GetDirtyBlocksByTime/GetDirtyBlocksByWAL return
// ids in ascending block-id order (engine.go's bitmap.Set.ToArray), not
// sorted by the range value being filtered on, so a WAL/time floor could
// skip or re-deliver blocks whose id order disagrees with their WAL/time
// order. Filtering on block id instead matches the engine's own emission
// order exactly.
type Cursor struct {
	mu sync.Mutex

	coord *Coordinator

	Type      CursorType
	StartTime int64
	EndTime   int64
	StartWAL  uint64
	EndWAL    uint64

	lastID  uint64 // highest block id handed out so far
	started bool   // distinguishes "nothing emitted yet" from lastID==0
	hasMore bool
}

// CreateCursor mirrors backup_coordinator_create_cursor, but unlike the
// original does not materialize or estimate a block count up front — the
// original's count was a hardcoded placeholder (backup_coordinator.c's
// "简化实现"/block_count=1000), not a real total, and a live-querying
// cursor has no fixed total to report anyway.
func (c *Coordinator) CreateCursor(cursorType CursorType, startTime, endTime int64, startWAL, endWAL uint64) (*Cursor, error) {
	switch cursorType {
	case CursorTime, CursorWAL, CursorHybrid:
	default:
		return nil, errs.New(errs.InvalidParam, "backup: unknown cursor type %d", cursorType)
	}

	cur := &Cursor{
		coord:     c,
		Type:      cursorType,
		StartTime: startTime,
		EndTime:   endTime,
		StartWAL:  startWAL,
		EndWAL:    endWAL,
		hasMore:   true,
	}
	c.mu.Lock()
	c.cursors[cur] = struct{}{}
	c.mu.Unlock()
	return cur, nil
}

// DestroyCursor mirrors backup_coordinator_destroy_cursor.
func (c *Coordinator) DestroyCursor(cur *Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, cur)
}

// HasMore reports whether the last GetNextBatch left unread blocks. It
// reflects the previous live query, not a fresh one — call BlockCount or
// GetNextBatch to observe the current index state.
func (cur *Cursor) HasMore() bool {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.hasMore
}

// BlockCount re-queries the live index for how many blocks in the
// cursor's window have not yet been emitted. It is a point-in-time
// observation, not a cached total: a concurrent writer can change it
// between this call and the next GetNextBatch.
func (cur *Cursor) BlockCount() int {
	cur.mu.Lock()
	lastID, started := cur.lastID, cur.started
	cur.mu.Unlock()

	ids := cur.matchingIDs()
	if !started {
		return len(ids)
	}
	n := 0
	for _, id := range ids {
		if id > lastID {
			n++
		}
	}
	return n
}

// matchingIDs issues a fresh query against the engine for every id
// currently in the cursor's window, ascending by block id.
func (cur *Cursor) matchingIDs() []uint64 {
	switch cur.Type {
	case CursorTime:
		return cur.coord.src.GetDirtyBlocksByTime(cur.StartTime, cur.EndTime, unboundedMax)
	case CursorWAL:
		return cur.coord.src.GetDirtyBlocksByWAL(cur.StartWAL, cur.EndWAL, unboundedMax)
	default: // CursorHybrid
		byTime := cur.coord.src.GetDirtyBlocksByTime(cur.StartTime, cur.EndTime, unboundedMax)
		byWAL := cur.coord.src.GetDirtyBlocksByWAL(cur.StartWAL, cur.EndWAL, unboundedMax)
		return intersectSorted(byTime, byWAL)
	}
}

func intersectSorted(a, b []uint64) []uint64 {
	out := make([]uint64, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
