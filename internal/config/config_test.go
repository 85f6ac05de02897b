package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taosdata/incbitmap/internal/interceptor"
)

func TestDefaultPassesValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  max_blocks: 500000
interceptor:
  callback_threads: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(500000), cfg.Engine.MaxBlocks)
	require.Equal(t, 8, cfg.Interceptor.WorkerCount)
	// Fields left unset in the file keep Default()'s values.
	require.Equal(t, 90, cfg.Engine.LRUCleanupThresholdPct)
	require.Equal(t, 4096, cfg.Interceptor.QueueCapacity)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestValidateRejectsBadFlushPolicy(t *testing.T) {
	cfg := Default()
	cfg.Interceptor.FlushPolicy = "explode"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroQueueCapacity(t *testing.T) {
	cfg := Default()
	cfg.Interceptor.QueueCapacity = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCompressionLevel(t *testing.T) {
	cfg := Default()
	cfg.Coordinator.CompressionLevel = 4
	require.Error(t, cfg.Validate())
}

func TestToInterceptorConfigMapsFlushPolicy(t *testing.T) {
	cfg := Default()
	cfg.Interceptor.FlushPolicy = "ignore"
	ic := cfg.ToInterceptorConfig()
	require.Equal(t, interceptor.FlushIgnore, ic.FlushPolicy)
}

func TestToBackupConfigDisablesCompressionWhenNotEnabled(t *testing.T) {
	cfg := Default()
	cfg.Coordinator.EnableCompression = false
	cfg.Coordinator.CompressionLevel = 3
	bc := cfg.ToBackupConfig()
	require.Equal(t, 0, bc.CompressionLevel)
	require.Equal(t, 5*time.Second, bc.BatchTimeout)
}
