package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taosdata/incbitmap/internal/backup"
	"github.com/taosdata/incbitmap/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Interceptor.WorkerCount = 2
	cfg.Coordinator.BatchTimeoutMS = 0 // disable pacing for fast tests
	return cfg
}

func TestInitTwiceFails(t *testing.T) {
	require.NoError(t, Init(testConfig(), func(uint64) ([]byte, error) { return []byte("x"), nil }, nil))
	defer Cleanup()

	err := Init(testConfig(), func(uint64) ([]byte, error) { return nil, nil }, nil)
	require.Error(t, err)
}

func TestOperationsFailBeforeInit(t *testing.T) {
	Cleanup() // ensure clean slate regardless of test order
	_, err := GetDirtyBlocks(0, 100, 10)
	require.Error(t, err)
}

func TestFullLifecycleThroughSingleton(t *testing.T) {
	require.NoError(t, Init(testConfig(), func(uint64) ([]byte, error) { return []byte("payload"), nil }, nil))
	defer Cleanup()

	p := Instance()
	require.NotNil(t, p)
	require.NoError(t, p.Engine.MarkNew(1, 10, 1000))
	require.NoError(t, p.Engine.MarkDirty(1, 20, 2000))

	ids, err := GetDirtyBlocks(0, 100, 10)
	require.NoError(t, err)
	require.Contains(t, ids, uint64(1))

	cur, err := CreateIncrementalCursor(backup.CursorWAL, 0, 0, 0, 100)
	require.NoError(t, err)
	require.Equal(t, 1, cur.BlockCount())

	batch, err := GetNextBatch(context.Background(), cur, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, DestroyCursor(cur))

	blocks, size, err := EstimateBackupSize(0, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1), blocks)
	require.Equal(t, testConfig().Coordinator.AvgBlockSizeBytes, size)

	md, err := GenerateMetadata(0, 100)
	require.NoError(t, err)
	require.Equal(t, uint32(1), md.BlockCount)

	stats, err := GetStats()
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.TotalBackupBlocks)

	_, err = GetLastError()
	require.NoError(t, err)
	errStats, err := GetErrorStats()
	require.NoError(t, err)
	require.Equal(t, uint64(0), errStats.ErrorCount)
	require.NoError(t, ClearError())

	engStats, err := EngineStats()
	require.NoError(t, err)
	require.Equal(t, uint64(1), engStats.Dirty)

	// Give the interceptor's worker pool a moment to drain, then check
	// its counters are reachable through the plugin surface too.
	time.Sleep(10 * time.Millisecond)
	icStats, err := InterceptorStats()
	require.NoError(t, err)
	require.GreaterOrEqual(t, icStats.EventsProcessed, uint64(0))
}

func TestCleanupIsIdempotent(t *testing.T) {
	require.NoError(t, Init(testConfig(), func(uint64) ([]byte, error) { return nil, nil }, nil))
	Cleanup()
	Cleanup() // must not panic
}
