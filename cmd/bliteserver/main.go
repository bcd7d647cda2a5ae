// Command bliteserver is the BLite Server process root (spec.md §1's
// "two parallel surfaces" over one shared domain layer): it wires the
// engine registry, identity store, access guard, query cache, query
// executor, transaction coordinator, and metrics once, then starts the
// HTTP/JSON surface and the binary RPC surface on their own bind
// addresses, grounded on the teacher's cmd/gateway/main.go graceful
// listen/shutdown shape.
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
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blite-io/blite-server/internal/access"
	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/config"
	"github.com/blite-io/blite-server/internal/embedding"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/engine/memengine"
	"github.com/blite-io/blite-server/internal/httpapi"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/metrics"
	"github.com/blite-io/blite-server/internal/queryexec"
	"github.com/blite-io/blite-server/internal/rpcsurface"
	"github.com/blite-io/blite-server/internal/txn"
)

func main() {
	configPath := flag.String("config", "", "path to a bliteserver.yaml config file (defaults to config/bliteserver.yaml, falling back to built-in defaults)")
	flag.Parse()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.LoadFromPath(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bliteserver: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	} else {
		cfg = *config.LoadOrDefault("config/bliteserver.yaml")
	}

	log := logging.New("bliteserver", cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := engine.NewRegistry(memengine.Factory)
	if err != nil {
		log.WithError(err).Fatal("bliteserver: opening system engine")
	}

	idStore, err := identity.NewStore(ctx, registry.System())
	if err != nil {
		log.WithError(err).Fatal("bliteserver: opening identity store")
	}
	rawKey, recoveryPassphrase, err := idStore.Bootstrap(ctx)
	if err != nil {
		log.WithError(err).Fatal("bliteserver: bootstrapping root user")
	}
	if rawKey != "" {
		// Printed once, to stdout rather than the structured logger, so an
		// operator piping logs to a collector still gets the plaintext key
		// on their terminal (spec.md §3: it is never recoverable again).
		fmt.Printf("bliteserver: root API key (save this, it will not be shown again): %s\n", rawKey)
		fmt.Printf("bliteserver: root recovery passphrase: %s\n", recoveryPassphrase)
	}

	guard := access.New()
	queryCache := cache.New(cache.Config{
		Enabled:            cfg.QueryCache.Enabled,
		SlidingExpiration:  time.Duration(cfg.QueryCache.SlidingExpirationSeconds) * time.Second,
		AbsoluteExpiration: time.Duration(cfg.QueryCache.AbsoluteExpirationSeconds) * time.Second,
		MaxResultSetSize:   cfg.QueryCache.MaxResultSetSize,
	})
	executor := queryexec.New()
	coord := txn.New(registry, queryCache, log, txn.Config{
		IdleThreshold:     time.Duration(cfg.Transactions.TimeoutSeconds) * time.Second,
		SweepCronSchedule: "@every 10s",
	})
	defer coord.Stop()

	m := metrics.New()

	embedder := embedding.NewHashEmbedder(cfg.Embedding.MaxTokens)
	embQueue, err := embedding.NewQueue(ctx, registry.System(), time.Duration(cfg.EmbeddingWorker.StaleTimeoutMinutes)*time.Minute)
	if err != nil {
		log.WithError(err).Fatal("bliteserver: opening embedding queue")
	}
	populator := embedding.NewPopulator(registry, embQueue, log)
	if err := populator.Start(ctx); err != nil {
		log.WithError(err).Warn("bliteserver: starting embedding populator")
	}
	defer populator.Stop()

	worker := embedding.NewWorker(registry, embQueue, embedder, log, m, embedding.WorkerConfig{
		Enabled:   cfg.EmbeddingWorker.Enabled,
		Interval:  time.Duration(cfg.EmbeddingWorker.IntervalSeconds) * time.Second,
		BatchSize: cfg.EmbeddingWorker.BatchSize,
	})
	go worker.Run(ctx)
	defer worker.Stop()

	httpServer := httpapi.New(registry, idStore, guard, queryCache, executor, coord, log, m, httpapi.DefaultConfig())
	rpcServer := rpcsurface.New(registry, idStore, guard, queryCache, executor, coord, log, m)

	adminMux := http.NewServeMux()
	adminMux.Handle("/", httpServer.Router())
	adminMux.Handle("/metrics", promhttp.Handler())

	httpListener := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rpcListener := &http.Server{
		Addr:              cfg.Server.RPCAddr,
		Handler:           rpcServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infof("bliteserver: HTTP surface listening on %s", cfg.Server.HTTPAddr)
		if err := httpListener.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http surface: %w", err)
		}
	}()
	go func() {
		log.Infof("bliteserver: RPC surface listening on %s", cfg.Server.RPCAddr)
		if err := rpcListener.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc surface: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("bliteserver: shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("bliteserver: listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpListener.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("bliteserver: http surface shutdown")
	}
	if err := rpcListener.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("bliteserver: rpc surface shutdown")
	}
}
