// Package config loads engine-level overrides for the storage defaults in
// internal/storage/consts.go, in the same viper/YAML style as the teacher's
// internal/config.go.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/vexarch/framedb/internal/storage"
)

// EngineConfig holds the tunables a deployment may override; any field left
// at its zero value falls back to the storage package's built-in default.
type EngineConfig struct {
	Storage struct {
		Workdir       string        `mapstructure:"workdir"`
		RowsPerFrame  int           `mapstructure:"rows_per_frame"`
		CacheLifetime time.Duration `mapstructure:"cache_lifetime"`
	} `mapstructure:"storage"`

	CLI struct {
		HistoryFile string `mapstructure:"history_file"`
		Prompt      string `mapstructure:"prompt"`
	} `mapstructure:"cli"`
}

// Load reads path as YAML into an EngineConfig.
func Load(path string) (*EngineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("storage.workdir", ".")
	v.SetDefault("storage.rows_per_frame", 64)
	v.SetDefault("storage.cache_lifetime", "15s")
	v.SetDefault("cli.prompt", "rowtablectl> ")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %q: %w", path, err)
	}
	return &cfg, nil
}

// Apply pushes the storage overrides in c into the storage package's
// package-level defaults, affecting every table opened or created
// afterward.
func (c *EngineConfig) Apply() {
	if c.Storage.RowsPerFrame > 0 {
		storage.SetRowsPerFrame(c.Storage.RowsPerFrame)
	}
	if c.Storage.CacheLifetime > 0 {
		storage.SetCacheLifetime(c.Storage.CacheLifetime)
	}
}
