// Package main is the entry point for the shopmirror API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shopmirror/internal/config"
	"shopmirror/internal/domain/catalog"
	"shopmirror/internal/domain/customer"
	"shopmirror/internal/domain/inventory"
	"shopmirror/internal/domain/subscription"
	v1 "shopmirror/internal/infrastructure/http/v1"
	"shopmirror/internal/infrastructure/http/v1/handlers"
	"shopmirror/internal/infrastructure/storage/postgres"
	"shopmirror/internal/infrastructure/storage/postgres/record_repo"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/tracker"
	"shopmirror/internal/sync/webhook"
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
	log.Info("starting shopmirror server")

	if cfg.Database.MigrateOnUp {
		if err := postgres.Migrate(ctx, cfg.Database.URL, cfg.Database.MigrationDir); err != nil {
			log.Fatalw("migrations failed", "error", err)
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	audit, err := postgres.NewSyncLogWriter(txm)
	if err != nil {
		log.Fatalw("failed to initialize sync log writer", "error", err)
	}
	dedupe := postgres.NewDedupeStore(txm)

	// --- Remote platform clients ---
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

	// --- Repositories and engine stores ---
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

	// --- Adapters ---
	customerAdapter := customer.NewAdapter(exchange)
	addressAdapter := customer.NewAddressAdapter(exchange, customerRepo, addressRepo)
	productAdapter := catalog.NewAdapter(exchange, productStore, audit)
	inventoryAdapter := inventory.NewAdapter(exchange)
	contractAdapter := subscription.NewAdapter(
		exchange,
		record_repo.NewCustomerDirectory(customerRepo),
		contractStore,
		audit,
	)
	planAdapter := subscription.NewPlanAdapter(exchange)

	// --- Engine registry ---
	registry := enginesync.NewRegistry()
	registry.Register(enginesync.Registration{Adapter: customerAdapter, Store: customerStore})
	registry.Register(enginesync.Registration{
		Adapter:      addressAdapter,
		Store:        addressStore,
		DeletePolicy: enginesync.DeleteHard,
	})
	registry.Register(enginesync.Registration{Adapter: productAdapter, Store: productStore})
	registry.Register(enginesync.Registration{
		Adapter:      inventoryAdapter,
		Store:        inventoryStore,
		DeletePolicy: enginesync.DeleteHard,
	})
	registry.Register(enginesync.Registration{Adapter: contractAdapter, Store: contractStore})
	registry.Register(enginesync.Registration{Adapter: planAdapter, Store: planStore})

	trk := tracker.New()
	dispatcher := dispatch.New(registry, limiter, audit, dispatch.Config{
		InteractiveTimeout: cfg.Sync.InteractiveTimeout,
		ValidationHold:     cfg.Sync.ValidationHold,
		SweepWorkers:       cfg.Sync.SweepWorkers,
		SweepBatch:         cfg.Sync.SweepBatch,
	})
	gateway := webhook.New(cfg.Platform.WebhookSecret, dedupe, registry, trk, audit, nil)

	// --- Domain services ---
	customerService := customer.NewService(customerRepo, addressRepo, customerAdapter, addressAdapter, trk, dispatcher)
	catalogService := catalog.NewService(productRepo, productAdapter, trk, dispatcher)
	inventoryService := inventory.NewService(inventoryRepo, inventoryAdapter, trk, dispatcher)
	subscriptionService := subscription.NewService(contractRepo, planRepo, contractAdapter, planAdapter, trk, dispatcher)

	router := v1.NewRouter(v1.RouterConfig{
		Pool:          pool,
		Logger:        log,
		Customers:     customerService,
		Catalog:       catalogService,
		Inventory:     inventoryService,
		Subscriptions: subscriptionService,
		Registry:      registry,
		Dispatcher:    dispatcher,
		Gateway:       gateway,
		Limiter:       limiter,
		Failed: map[enginesync.Kind]handlers.FailedLister{
			enginesync.KindCustomer:     customerStore,
			enginesync.KindAddress:      addressStore,
			enginesync.KindProduct:      productStore,
			enginesync.KindInventory:    inventoryStore,
			enginesync.KindSubscription: contractStore,
			enginesync.KindSellingPlan:  planStore,
		},
		History: audit,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infow("http server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
