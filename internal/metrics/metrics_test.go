package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/taosdata/incbitmap/internal/backup"
	"github.com/taosdata/incbitmap/internal/engine"
	"github.com/taosdata/incbitmap/internal/interceptor"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewMetricsWithNilRegistererIsNoOp(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	require.False(t, m.enabled)

	eng := engine.New(engine.DefaultConfig())
	m.SampleEngine(eng) // must not panic despite nil instruments
	m.ObserveBatch(3, 100, time.Millisecond)
}

func TestSampleEngineReflectsCurrentState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	eng := engine.New(engine.DefaultConfig())
	require.NoError(t, eng.MarkNew(1, 10, 100))
	require.NoError(t, eng.MarkDirty(2, 20, 200))

	m.SampleEngine(eng)
	require.Equal(t, float64(1), gaugeValue(t, m.blocksNew))
	require.Equal(t, float64(1), gaugeValue(t, m.blocksDirty))
	require.Equal(t, float64(2), gaugeValue(t, m.blocksTotal))
}

func TestSampleInterceptorComputesDeltas(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	eng := engine.New(engine.DefaultConfig())
	ic := interceptor.New(interceptor.DefaultConfig(), eng, nil)
	require.NoError(t, ic.Start())
	defer ic.Stop()

	ic.OnBlockCreate(1, 10, 100)
	time.Sleep(20 * time.Millisecond)

	sample := m.SampleInterceptor(ic, &interceptorSample{})
	require.GreaterOrEqual(t, sample.processed, uint64(1))
	require.Equal(t, float64(sample.processed), counterValue(t, m.eventsProcessed))
}

func TestObserveBatchAndErrorStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.ObserveBatch(5, 500, 2*time.Millisecond)
	require.Equal(t, float64(5), counterValue(t, m.backupBlocksTotal))
	require.Equal(t, float64(500), counterValue(t, m.backupBytesTotal))

	prev := m.ObserveErrorStats(backup.ErrorStats{ErrorCount: 2, RetryCount: 3}, backup.ErrorStats{})
	require.Equal(t, uint64(2), prev.ErrorCount)
	require.Equal(t, float64(2), counterValue(t, m.backupErrors))
	require.Equal(t, float64(3), counterValue(t, m.backupRetries))
}
