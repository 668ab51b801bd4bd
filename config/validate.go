package config

import "fmt"

// MaxBlockIntervalMillis bounds the tick so a misconfigured node never stalls
// the due queues for hours.
var MaxBlockIntervalMillis = uint64(60_000)

func ValidateConfig(cfg *Config) error {
	switch cfg.Database {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("database: unsupported backend %q", cfg.Database)
	}
	if cfg.Database != "memory" && cfg.DataDir == "" {
		return fmt.Errorf("datadir: must not be empty for backend %q", cfg.Database)
	}
	if cfg.BlockIntervalMillis == 0 {
		return fmt.Errorf("blocks: interval must be positive")
	}
	if cfg.BlockIntervalMillis > MaxBlockIntervalMillis {
		return fmt.Errorf("blocks: interval %dms above maximum %dms", cfg.BlockIntervalMillis, MaxBlockIntervalMillis)
	}
	if cfg.RPCAddress == "" {
		return fmt.Errorf("rpc: address must not be empty")
	}
	return nil
}
