package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
Database = "bolt"
GenesisFile = "genesis.yaml"
NetworkName = "testnet"
BlockIntervalMillis = 250
LogEnvironment = "staging"
LogFile = "/var/log/capchaind.log"
LogMaxSizeMB = 25
LogMaxBackups = 3
LogMaxAgeDays = 14
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" {
		t.Fatalf("RPCAddress = %q", cfg.RPCAddress)
	}
	if cfg.Database != "bolt" {
		t.Fatalf("Database = %q", cfg.Database)
	}
	if cfg.GenesisFile != "genesis.yaml" {
		t.Fatalf("GenesisFile = %q", cfg.GenesisFile)
	}
	if cfg.BlockIntervalMillis != 250 {
		t.Fatalf("BlockIntervalMillis = %d", cfg.BlockIntervalMillis)
	}
	if cfg.LogMaxSizeMB != 25 || cfg.LogMaxBackups != 3 || cfg.LogMaxAgeDays != 14 {
		t.Fatalf("log rotation = %d/%d/%d", cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays)
	}
}

func TestLoadWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "leveldb" {
		t.Fatalf("default Database = %q, want leveldb", cfg.Database)
	}
	if cfg.BlockIntervalMillis != 1000 {
		t.Fatalf("default BlockIntervalMillis = %d, want 1000", cfg.BlockIntervalMillis)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// A second load reads the file just written.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *again != *cfg {
		t.Fatalf("reload = %+v, want %+v", again, cfg)
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`RPCAddress = ":9090"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9090" {
		t.Fatalf("RPCAddress = %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "capchain-local" || cfg.Database != "leveldb" || cfg.DataDir == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		return &Config{
			RPCAddress:          ":8080",
			DataDir:             "./data",
			Database:            "leveldb",
			BlockIntervalMillis: 1000,
		}
	}

	if err := ValidateConfig(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Database = "redis" }, "database:"},
		{"missing datadir", func(c *Config) { c.DataDir = "" }, "datadir:"},
		{"zero interval", func(c *Config) { c.BlockIntervalMillis = 0 }, "blocks:"},
		{"huge interval", func(c *Config) { c.BlockIntervalMillis = MaxBlockIntervalMillis + 1 }, "blocks:"},
		{"missing rpc", func(c *Config) { c.RPCAddress = "" }, "rpc:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want prefix %q", err, tc.want)
			}
		})
	}

	// The memory backend needs no data directory.
	cfg := base()
	cfg.Database = "memory"
	cfg.DataDir = ""
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("memory backend rejected: %v", err)
	}
}
