package backup

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taosdata/incbitmap/internal/errs"
)

// batchReadConcurrency bounds how many blocks within one batch are read
// concurrently, so a large maxCount can't open unbounded simultaneous
// storage-engine reads. Admission is a *fifo.Semaphore (c.readSema), the
// same FIFO-fair admission primitive pebble uses for its LoadBlockSema
// bound on concurrent block reads (sstable/block/block.go's doRead),
// rather than the errgroup.Group's own unfair SetLimit — a fair queue
// keeps one slow block from letting later-submitted reads cut ahead of
// earlier ones indefinitely.
const batchReadConcurrency = 8

// GetNextBatch mirrors backup_coordinator_get_next_batch, but re-queries
// the engine's live index on every call instead of draining a snapshot
// taken at CreateCursor time (spec §3, §5; see cursor.go). Reads within
// the batch fan out over an errgroup (grounded on replay/replay.go's use
// of errgroup.Group for independent concurrent stages sharing one
// context), one goroutine per block rather than pipeline stages, since
// payload fetches are independent and I/O bound; each goroutine acquires
// c.readSema before reading so batchReadConcurrency bounds the actual
// concurrent reads, not just the goroutine count. Advances cur regardless
// of individual payload failures once the retry budget for that block is
// exhausted, so one bad block cannot wedge an entire backup run — the
// failure is instead captured in the coordinator's error log; group
// errors are never returned to the caller, only recorded, so one
// slow/failing read never cancels its siblings.
func (c *Coordinator) GetNextBatch(ctx context.Context, cur *Cursor, maxCount int) ([]Block, error) {
	if maxCount <= 0 {
		return nil, errs.New(errs.InvalidParam, "backup: max_count must be positive")
	}

	cur.mu.Lock()
	lastID, started := cur.lastID, cur.started
	cur.mu.Unlock()

	all := cur.matchingIDs()
	start := 0
	if started {
		for start < len(all) && all[start] <= lastID {
			start++
		}
	}
	end := start + maxCount
	if end > len(all) {
		end = len(all)
	}
	ids := append([]uint64(nil), all[start:end]...)

	cur.mu.Lock()
	if len(ids) > 0 {
		cur.lastID = ids[len(ids)-1]
		cur.started = true
	}
	cur.hasMore = end < len(all)
	cur.mu.Unlock()

	if err := c.pace(ctx, len(ids)); err != nil {
		return nil, err
	}

	readStart := time.Now()
	slots := make([]*Block, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := c.readSema.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer c.readSema.Release(1)

			md, ok := c.src.GetMetadata(id)
			if !ok {
				c.recordError(errs.New(errs.BlockNotFound, "backup: block %d vanished before batch read", id))
				return nil
			}
			payload, err := c.readPayloadWithRetry(gctx, id)
			if err != nil {
				c.recordError(err)
				return nil
			}
			slots[i] = &Block{
				BlockID:   id,
				WALOffset: md.WALOffset,
				Timestamp: md.Timestamp,
				Data:      payload,
				State:     md.State,
			}
			return nil
		})
	}
	_ = g.Wait() // closures never return non-nil; failures are recorded, not propagated

	blocks := make([]Block, 0, len(ids))
	var totalBytes uint64
	for _, s := range slots {
		if s == nil {
			continue
		}
		blocks = append(blocks, *s)
		totalBytes += uint64(len(s.Data))
	}

	c.recordBatch(uint64(len(blocks)), totalBytes, uint64(time.Since(readStart).Milliseconds()))
	return blocks, nil
}

// readPayloadWithRetry wraps c.payloadFor in the coordinator's retry policy
// (spec §4.F / original_source backup_execute_with_retry): retryable
// errors (per errs.Code.Retryable()) are retried up to ErrorRetryMax times,
// sleeping ErrorRetryInterval between attempts — an uninterruptible sleep
// by design (spec §9), except that ctx cancellation still aborts the wait.
func (c *Coordinator) readPayloadWithRetry(ctx context.Context, blockID uint64) ([]byte, error) {
	var lastErr error
	for attempt := uint32(0); attempt <= c.cfg.ErrorRetryMax; attempt++ {
		data, err := c.payloadFor(blockID)
		if err == nil {
			return data, nil
		}
		lastErr = err

		code, _ := errs.CodeOf(err)
		if !code.Retryable() || attempt == c.cfg.ErrorRetryMax {
			break
		}

		c.mu.Lock()
		c.retryCount++
		c.mu.Unlock()
		c.log.Infof("backup: retrying block %d after %v (attempt %d/%d)", blockID, err, attempt+1, c.cfg.ErrorRetryMax)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.ErrorRetryInterval):
		}
	}
	return nil, errs.Wrap(errs.RetryExhausted, lastErr, "backup: block %d failed after retries", blockID)
}

func (c *Coordinator) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errLog.record(err)
	c.log.Errorf("backup: %v", err)
}
