package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"capchain/config"
	"capchain/core"
	"capchain/observability/logging"
	"capchain/observability/metrics"
	"capchain/rpc"
	"capchain/storage"
)

const genesisPathEnv = "CAPCHAIN_GENESIS"

func main() {
	configFile := flag.String("config", "./capchain.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides CAPCHAIN_GENESIS and config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CAPCHAIN_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := config.ValidateConfig(cfg); err != nil {
		panic(fmt.Sprintf("Invalid config: %v", err))
	}

	var logOutput io.Writer
	if cfg.LogFile != "" {
		logOutput = logging.RotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays)
	}
	logger := logging.Setup("capchaind", firstNonEmpty(env, cfg.LogEnvironment), logOutput)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ledger, err := core.NewLedger(db)
	if err != nil {
		logger.Error("Failed to initialize ledger", slog.Any("error", err))
		os.Exit(1)
	}

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile)
	if genesisPath != "" {
		if err := applyGenesis(ledger, genesisPath, logger); err != nil {
			logger.Error("Failed to apply genesis", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The ledger is single-threaded. Queries and the block loop share one lock.
	var ledgerMu sync.Mutex
	queries := rpc.NewServer(ledger, &ledgerMu)

	server := startHTTP(cfg.RPCAddress, ledger, queries, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("Node started",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("height", ledger.Height()),
		slog.String("rpc", cfg.RPCAddress),
	)

	runBlockLoop(ctx, ledger, &ledgerMu, cfg.BlockIntervalMillis, logger)
	logger.Info("Node stopped", slog.Uint64("height", ledger.Height()))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Database {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "capchain.db"))
	default:
		return storage.NewLevelDB(cfg.DataDir)
	}
}

func resolveGenesisPath(flagValue, configValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(genesisPathEnv)); v != "" {
		return v
	}
	return strings.TrimSpace(configValue)
}

func applyGenesis(ledger *core.Ledger, path string, logger *slog.Logger) error {
	doc, err := core.LoadGenesis(path)
	if err != nil {
		return err
	}
	root, err := ledger.ApplyGenesis(doc)
	if errors.Is(err, core.ErrGenesisNotEmpty) {
		logger.Info("Genesis skipped, store already initialized", slog.Uint64("height", ledger.Height()))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Genesis applied",
		slog.String("chain", doc.ChainID),
		slog.String("root", hex.EncodeToString(root[:])),
	)
	return nil
}

// runBlockLoop drives the ledger on a fixed tick. Every tick begins a block,
// drains the due queues and commits.
func runBlockLoop(ctx context.Context, ledger *core.Ledger, mu *sync.Mutex, intervalMillis uint64, logger *slog.Logger) {
	ticker := time.NewTicker(time.Duration(intervalMillis) * time.Millisecond)
	defer ticker.Stop()
	observe := metrics.Ledger()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			mu.Lock()
			height := ledger.Height() + 1
			started := time.Now()
			if err := ledger.BeginBlock(height, uint64(tick.UnixMilli())); err != nil {
				mu.Unlock()
				observe.ObserveBlockFailure()
				logger.Error("Begin block failed", slog.Uint64("height", height), slog.Any("error", err))
				continue
			}
			root, emitted, err := ledger.EndBlock()
			mu.Unlock()
			if err != nil {
				observe.ObserveBlockFailure()
				logger.Error("End block failed", slog.Uint64("height", height), slog.Any("error", err))
				continue
			}
			observe.ObserveBlock(height, time.Since(started).Seconds())
			for _, event := range emitted {
				observe.ObserveEvent(event.Type)
			}
			if len(emitted) > 0 {
				logger.Info("Block committed",
					slog.Uint64("height", height),
					slog.String("root", hex.EncodeToString(root[:])),
					slog.Int("events", len(emitted)),
				)
			}
		}
	}
}

func startHTTP(addr string, ledger *core.Ledger, queries *rpc.Server, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/", queries.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		root := ledger.State().Root()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"height": ledger.Height(),
			"root":   hex.EncodeToString(root[:]),
		})
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()
	return server
}
