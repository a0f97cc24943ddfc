// Package config loads fenrird's runtime configuration. The teacher repo
// carries no config package of its own (see DESIGN.md); this follows the
// lightest-weight idiom consistent with its size: a JSON file for the
// daemon, plain flags for the CLI client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is fenrird's full runtime configuration.
type Config struct {
	Address        string `json:"address"`
	Port           int    `json:"port"`
	Symbol         string `json:"symbol"`
	TickSize       int64  `json:"tick_size"`
	WorkerPoolSize int    `json:"worker_pool_size"`
	SnapshotDepth  int    `json:"snapshot_depth"`
}

// Default returns a usable configuration for local development.
func Default() Config {
	return Config{
		Address:        "0.0.0.0",
		Port:           9090,
		Symbol:         "FENRIR",
		TickSize:       1,
		WorkerPoolSize: 10,
		SnapshotDepth:  10,
	}
}

// Load reads and parses a JSON config file, filling unset fields from
// Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}
