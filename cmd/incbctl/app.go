package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/taosdata/incbitmap/internal/config"
	"github.com/taosdata/incbitmap/internal/logging"
	"github.com/taosdata/incbitmap/internal/plugin"
)

var dataDir string

// loadConfig reads configPath if set, else returns the built-in defaults.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// filePayload reads a block's raw bytes from dataDir/<block_id>, the
// simplest possible BlockPayloadFunc for a CLI driven against a directory of
// already-extracted block files rather than a live storage engine process.
func filePayload(blockID uint64) ([]byte, error) {
	return os.ReadFile(filepath.Join(dataDir, fmt.Sprintf("%d", blockID)))
}

// bootstrap initializes the plugin singleton from the resolved config and
// returns a teardown func the caller should defer.
func bootstrap() (func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := plugin.Init(cfg, filePayload, logging.Default{}); err != nil {
		return nil, err
	}
	return plugin.Cleanup, nil
}
