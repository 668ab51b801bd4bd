package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration. Unset fields fall back to the defaults
// written by createDefault.
type Config struct {
	RPCAddress          string `toml:"RPCAddress"`
	DataDir             string `toml:"DataDir"`
	Database            string `toml:"Database"`
	GenesisFile         string `toml:"GenesisFile"`
	NetworkName         string `toml:"NetworkName"`
	BlockIntervalMillis uint64 `toml:"BlockIntervalMillis"`

	LogEnvironment string `toml:"LogEnvironment"`
	LogFile        string `toml:"LogFile"`
	LogMaxSizeMB   int    `toml:"LogMaxSizeMB"`
	LogMaxBackups  int    `toml:"LogMaxBackups"`
	LogMaxAgeDays  int    `toml:"LogMaxAgeDays"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "capchain-local"
	}
	if strings.TrimSpace(cfg.Database) == "" {
		cfg.Database = "leveldb"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./capchain-data"
	}
	if cfg.BlockIntervalMillis == 0 {
		cfg.BlockIntervalMillis = 1000
	}
	if cfg.LogMaxSizeMB == 0 {
		cfg.LogMaxSizeMB = 100
	}
	if cfg.LogMaxBackups == 0 {
		cfg.LogMaxBackups = 5
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:          ":8080",
		DataDir:             "./capchain-data",
		Database:            "leveldb",
		GenesisFile:         "",
		NetworkName:         "capchain-local",
		BlockIntervalMillis: 1000,
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
