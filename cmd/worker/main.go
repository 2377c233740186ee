// Package main is the entry point for the shopmirror sync worker. It runs
// the reconciliation sweep and housekeeping tickers; the API server handles
// interactive pushes and webhooks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopmirror/internal/config"
	"shopmirror/internal/domain/catalog"
	"shopmirror/internal/domain/customer"
	"shopmirror/internal/domain/inventory"
	"shopmirror/internal/domain/subscription"
	"shopmirror/internal/infrastructure/storage/postgres"
	"shopmirror/internal/infrastructure/storage/postgres/record_repo"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := "info"
	if cfg.IsLocalDevelopment() {
		level = "debug"
	}
	log, err := logger.New(logger.Config{
		Level:       level,
		Development: cfg.IsLocalDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting shopmirror sync worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)

	audit, err := postgres.NewSyncLogWriter(txm)
	if err != nil {
		log.Fatalw("failed to initialize sync log writer", "error", err)
	}
	dedupe := postgres.NewDedupeStore(txm)

	limiter := platform.NewLimiter()
	rest := platform.NewRestClient(platform.RestConfig{
		BaseURL:     cfg.Platform.RestBaseURL,
		AccessToken: cfg.Platform.AccessToken,
		Timeout:     cfg.Platform.HTTPTimeout,
	}, limiter)
	graph := platform.NewGraphClient(platform.GraphConfig{
		Endpoint:    cfg.Platform.GraphEndpoint,
		AccessToken: cfg.Platform.AccessToken,
		Timeout:     cfg.Platform.HTTPTimeout,
	}, limiter)

	retryCfg := platform.DefaultRetryConfig()
	if cfg.Sync.MaxPushAttempts > 0 {
		retryCfg.MaxAttempts = uint64(cfg.Sync.MaxPushAttempts)
	}
	exchange := platform.NewExchange(rest, graph, limiter, platform.NewRetryPolicy(retryCfg, limiter))

	customerRepo := record_repo.NewCustomerRepo(txm)
	addressRepo := record_repo.NewAddressRepo(txm)
	productRepo := record_repo.NewProductRepo(txm)
	inventoryRepo := record_repo.NewInventoryRepo(txm)
	contractRepo := record_repo.NewContractRepo(txm)
	planRepo := record_repo.NewPlanRepo(txm)

	customerStore := record_repo.NewCustomerStore(customerRepo)
	addressStore := record_repo.NewAddressStore(addressRepo, customerRepo)
	productStore := record_repo.NewProductStore(productRepo)
	inventoryStore := record_repo.NewInventoryStore(inventoryRepo)
	contractStore := record_repo.NewContractStore(contractRepo, customerRepo)
	planStore := record_repo.NewPlanStore(planRepo)

	registry := enginesync.NewRegistry()
	registry.Register(enginesync.Registration{Adapter: customer.NewAdapter(exchange), Store: customerStore})
	registry.Register(enginesync.Registration{
		Adapter:      customer.NewAddressAdapter(exchange, customerRepo, addressRepo),
		Store:        addressStore,
		DeletePolicy: enginesync.DeleteHard,
	})
	registry.Register(enginesync.Registration{
		Adapter: catalog.NewAdapter(exchange, productStore, audit),
		Store:   productStore,
	})
	registry.Register(enginesync.Registration{
		Adapter:      inventory.NewAdapter(exchange),
		Store:        inventoryStore,
		DeletePolicy: enginesync.DeleteHard,
	})
	registry.Register(enginesync.Registration{
		Adapter: subscription.NewAdapter(exchange, record_repo.NewCustomerDirectory(customerRepo), contractStore, audit),
		Store:   contractStore,
	})
	registry.Register(enginesync.Registration{Adapter: subscription.NewPlanAdapter(exchange), Store: planStore})

	dispatcher := dispatch.New(registry, limiter, audit, dispatch.Config{
		InteractiveTimeout: 0, // sweeps take as long as they take
		ValidationHold:     cfg.Sync.ValidationHold,
		SweepWorkers:       cfg.Sync.SweepWorkers,
		SweepBatch:         cfg.Sync.SweepBatch,
	})

	sweepTicker := time.NewTicker(cfg.Sync.SweepInterval)
	defer sweepTicker.Stop()
	purgeTicker := time.NewTicker(time.Hour)
	defer purgeTicker.Stop()
	statsTicker := time.NewTicker(5 * time.Minute)
	defer statsTicker.Stop()

	log.Infow("worker running",
		"sweep_interval", cfg.Sync.SweepInterval,
		"sweep_workers", cfg.Sync.SweepWorkers,
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return
		case <-sweepTicker.C:
			stats, err := dispatcher.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Errorw("sweep failed", "error", err)
				continue
			}
			if stats.Examined > 0 {
				log.Infow("sweep completed",
					"examined", stats.Examined,
					"pushed", stats.Pushed,
					"failed", stats.Failed,
					"skipped", stats.Skipped,
				)
			}
		case <-purgeTicker.C:
			cutoff := time.Now().UTC().Add(-cfg.Sync.DedupeTTL)
			purged, err := dedupe.PurgeOlderThan(ctx, cutoff)
			if err != nil {
				log.Errorw("dedupe purge failed", "error", err)
				continue
			}
			if purged > 0 {
				log.Infow("dedupe entries purged", "count", purged)
			}
		case <-statsTicker.C:
			pool.LogStats(ctx)
		}
	}
}
