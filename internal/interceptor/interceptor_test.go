package interceptor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taosdata/incbitmap/internal/engine"
)

func newTestInterceptor(t *testing.T, cfg Config) (*Interceptor, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.DefaultConfig())
	ic := New(cfg, eng, nil)
	require.NoError(t, ic.Start())
	t.Cleanup(ic.Stop)
	return ic, eng
}

func TestCreateUpdateDeleteDispatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DequeueTimeout = 10 * time.Millisecond
	ic, eng := newTestInterceptor(t, cfg)

	require.NoError(t, ic.OnBlockCreate(1, 100, 1000))
	require.Eventually(t, func() bool {
		return eng.GetState(1) == engine.NewState
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ic.OnBlockUpdate(1, 110, 1010))
	require.Eventually(t, func() bool {
		return eng.GetState(1) == engine.Dirty
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ic.OnBlockDelete(1, 120, 1020))
	require.Eventually(t, func() bool {
		return eng.GetState(1) == engine.Deleted
	}, time.Second, 5*time.Millisecond)

	stats := ic.GetStats()
	require.Equal(t, uint64(3), stats.EventsProcessed)
}

func TestFlushPolicyClearVsIgnore(t *testing.T) {
	cfgClear := DefaultConfig()
	cfgClear.DequeueTimeout = 10 * time.Millisecond
	cfgClear.FlushPolicy = FlushClear
	ic, eng := newTestInterceptor(t, cfgClear)

	require.NoError(t, eng.MarkDirty(1, 0, 0))
	require.NoError(t, ic.OnBlockFlush(1, 0, 0))
	require.Eventually(t, func() bool {
		return eng.GetState(1) == engine.Clean
	}, time.Second, 5*time.Millisecond)

	cfgIgnore := DefaultConfig()
	cfgIgnore.DequeueTimeout = 10 * time.Millisecond
	cfgIgnore.FlushPolicy = FlushIgnore
	ic2, eng2 := newTestInterceptor(t, cfgIgnore)

	require.NoError(t, eng2.MarkDirty(2, 0, 0))
	require.NoError(t, ic2.OnBlockFlush(2, 0, 0))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, engine.Dirty, eng2.GetState(2))
}

func TestQueueOverflowDropsAndCounts(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	cfg := Config{QueueCapacity: 2, WorkerCount: 0, FlushPolicy: FlushClear, DequeueTimeout: time.Millisecond}
	ic := New(cfg, eng, nil)
	// No workers started: queue fills up and stays full, so submissions
	// beyond capacity are rejected with a dropped counter bump, never
	// blocking the caller.
	require.NoError(t, ic.submit(Event{Kind: Create, BlockID: 1}))
	require.NoError(t, ic.submit(Event{Kind: Create, BlockID: 2}))
	err := ic.submit(Event{Kind: Create, BlockID: 3})
	require.Error(t, err)
	require.Equal(t, uint64(1), ic.GetStats().EventsDropped)
}

func TestStopDrainsQueueBeforeReturning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkerCount = 1
	cfg.DequeueTimeout = 10 * time.Millisecond
	eng := engine.New(engine.DefaultConfig())
	ic := New(cfg, eng, nil)
	require.NoError(t, ic.Start())

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, ic.OnBlockCreate(i, 0, 0))
	}
	ic.Stop()

	stats := ic.GetStats()
	require.Equal(t, uint64(10), stats.EventsProcessed+stats.EventsRejected)
	require.Equal(t, 0, stats.QueueDepth)
}

func TestCallbackFiresBeforeEngineMutation(t *testing.T) {
	var seenState atomic.Value // engine.BlockState observed from inside the callback
	var calls atomic.Int32

	cfg := DefaultConfig()
	cfg.DequeueTimeout = 10 * time.Millisecond
	eng := engine.New(engine.DefaultConfig())
	cfg.Callback = func(ev Event) {
		calls.Add(1)
		// If dispatch held the engine's write lock here, this read lock
		// acquisition would deadlock instead of returning immediately.
		seenState.Store(eng.GetState(ev.BlockID))
	}
	ic := New(cfg, eng, nil)
	require.NoError(t, ic.Start())
	t.Cleanup(ic.Stop)

	require.NoError(t, ic.OnBlockCreate(1, 100, 1000))
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// The callback observed the block before mark_new applied, proving it
	// ran outside (and before) the engine's write lock, not interleaved
	// with it.
	require.Equal(t, engine.Clean, seenState.Load())
	require.Eventually(t, func() bool {
		return eng.GetState(1) == engine.NewState
	}, time.Second, 5*time.Millisecond)
}

func TestCallbackNilIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DequeueTimeout = 10 * time.Millisecond
	ic, eng := newTestInterceptor(t, cfg)

	require.NoError(t, ic.OnBlockCreate(1, 0, 0))
	require.Eventually(t, func() bool {
		return eng.GetState(1) == engine.NewState
	}, time.Second, 5*time.Millisecond)
}

func TestCallbackRunsForEveryDispatchedEvent(t *testing.T) {
	var mu sync.Mutex
	var kinds []EventKind

	cfg := DefaultConfig()
	cfg.DequeueTimeout = 10 * time.Millisecond
	cfg.Callback = func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}
	ic, _ := newTestInterceptor(t, cfg)

	require.NoError(t, ic.OnBlockCreate(1, 100, 1000))
	require.NoError(t, ic.OnBlockUpdate(1, 110, 1010))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRejectedEventCountedOnIllegalTransition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DequeueTimeout = 10 * time.Millisecond
	ic, eng := newTestInterceptor(t, cfg)

	require.NoError(t, eng.MarkDeleted(1, 0, 0))
	require.NoError(t, ic.OnBlockUpdate(1, 0, 0)) // DELETED -> DIRTY illegal

	require.Eventually(t, func() bool {
		return ic.GetStats().EventsRejected == 1
	}, time.Second, 5*time.Millisecond)
}
