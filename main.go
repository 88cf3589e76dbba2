// Copyright (c) 2024 cblomart
// Licensed under the MIT License

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finfeed/internal/api"
	"finfeed/internal/cache"
	"finfeed/internal/config"
	"finfeed/internal/enrich"
	"finfeed/internal/feeds"
	"finfeed/internal/ingest"
	"finfeed/internal/poller"
	"finfeed/internal/query"
	"finfeed/internal/storage"
	"finfeed/internal/sync"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Initialize cache for hot query results
	cacheManager := cache.NewManager(cfg.CacheTTL, cfg.CacheEnabled)

	// Initialize persistent storage (buffer and search stores)
	store, err := storage.NewSQLiteStorage(cfg.DataDir, cfg)
	if err != nil {
		log.Fatal("Failed to initialize storage: ", err)
	}
	defer store.Close()

	// Clean up old articles based on retention policy
	log.Printf("Cleaning up articles older than %v", cfg.MaxArticleAge)
	if err := store.CleanupOldArticles(cfg.MaxArticleAge); err != nil {
		log.Printf("Warning: failed to cleanup old articles: %v", err)
	}

	// Create a context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic storage maintenance (retention + optimization)
	go runMaintenance(ctx, store, cfg)

	// Initialize ingestion pipeline
	sources := feeds.FromConfig(cfg)
	log.Printf("Configured %d article sources", len(sources))

	ingester := ingest.New(store, cfg)
	backgroundPoller := poller.New(sources, ingester, cfg)
	backgroundPoller.Start()

	// Initialize AI enrichment worker
	enricher := enrich.NewWorker(store, cfg)
	enricher.Start()

	// Initialize the query service over the search store
	queryService := query.New(cacheManager, store, cfg.CacheTTL)

	// Initialize buffer-to-search sync and cache warming
	syncer := sync.New(store, queryService, cfg)
	syncer.Start()

	warmer := sync.NewWarmer(queryService, store, cfg)
	warmer.Start()

	// Initialize API server
	server := api.NewServer(api.Deps{
		Query:    queryService,
		Ingester: ingester,
		Poller:   backgroundPoller,
		Syncer:   syncer,
		Warmer:   warmer,
		Enricher: enricher,
		Storage:  store,
	}, cfg)

	log.Printf("Starting finfeed server on port %d", cfg.Port)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Cache TTL: %v", cfg.CacheTTL)
	log.Printf("Article retention: %v", cfg.MaxArticleAge)
	log.Printf("Background polling interval: %v", cfg.PollInterval)
	log.Printf("Sync interval: %v", cfg.Sync.Interval)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping services...")
		warmer.Stop()
		syncer.Stop()
		enricher.Stop()
		backgroundPoller.Stop()
		cancel() // Cancel the context to stop the server
	}()

	// Start the server with context for graceful shutdown
	if err := server.StartWithContext(ctx); err != nil && err != context.Canceled {
		log.Fatal("Failed to start server: ", err)
	}
}

// runMaintenance applies the retention policy and optimizes the database on
// a fixed schedule until ctx is cancelled
func runMaintenance(ctx context.Context, store storage.Storage, cfg *config.Config) {
	if cfg.MaintenanceInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Println("Running storage maintenance...")
			if err := store.CleanupOldArticles(cfg.MaxArticleAge); err != nil {
				log.Printf("Warning: failed to cleanup old articles: %v", err)
			}
			if err := store.OptimizeDatabase(); err != nil {
				log.Printf("Warning: failed to optimize database: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
