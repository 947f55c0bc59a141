// Package main runs the mindmap service: it consumes connection-map
// snapshots over WebSocket, filters and projects them into the bounded
// token/KOL graph, enriches token nodes with display metadata and serves
// the latest graph over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/ingestion"
	"github.com/blok-hamster/kol-play-core/internal/metadata"
	"github.com/blok-hamster/kol-play-core/internal/mindmap"
	"github.com/blok-hamster/kol-play-core/internal/observability"
	"github.com/blok-hamster/kol-play-core/internal/storage"
	chstore "github.com/blok-hamster/kol-play-core/internal/storage/clickhouse"
	"github.com/blok-hamster/kol-play-core/internal/storage/memory"
	"github.com/blok-hamster/kol-play-core/internal/storage/migrations"
	pgstore "github.com/blok-hamster/kol-play-core/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("KOL_WS_ENDPOINT"), "Connection-update stream WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	listenAddr := flag.String("listen-addr", ":8080", "API HTTP address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	cacheTTL := flag.Duration("cache-ttl", metadata.DefaultTTL, "Token metadata cache TTL")
	mobile := flag.Bool("mobile", false, "Use mobile-tier graph size limits")
	onlySubscribed := flag.Bool("only-subscribed", false, "Restrict KOLs to the subscribed set")
	subscribedWallets := flag.String("subscribed-wallets", os.Getenv("SUBSCRIBED_WALLETS"), "Comma-separated subscribed KOL wallets")
	trendingMints := flag.String("trending-mints", os.Getenv("TRENDING_MINTS"), "Comma-separated trending token mints")
	dexScreenerURL := flag.String("dexscreener-url", "", "Override DexScreener base URL")
	jupiterURL := flag.String("jupiter-url", "", "Override Jupiter base URL")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required unless --use-memory is set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metadataStore, snapshotStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Metadata cache over DexScreener with Jupiter fallback
	var dexOpts []metadata.DexScreenerOption
	if *dexScreenerURL != "" {
		dexOpts = append(dexOpts, metadata.WithDexScreenerBaseURL(*dexScreenerURL))
	}
	var jupOpts []metadata.JupiterOption
	if *jupiterURL != "" {
		jupOpts = append(jupOpts, metadata.WithJupiterBaseURL(*jupiterURL))
	}
	cache := metadata.NewCache(
		metadata.NewDexScreenerClient(dexOpts...),
		metadata.NewJupiterClient(jupOpts...),
		metadata.WithTTL(*cacheTTL),
	)

	limits := domain.DesktopLimits()
	if *mobile {
		limits = domain.MobileLimits()
	}

	subscribed := commaSet(*subscribedWallets)
	manager := ingestion.NewManager(ingestion.ManagerOptions{
		Filter:             mindmap.NewFilter(mindmap.DefaultThresholds()),
		Cache:              cache,
		SnapshotStore:      snapshotStore,
		MetadataStore:      metadataStore,
		Limits:             limits,
		OnlyShowSubscribed: *onlySubscribed,
		IsSubscribed:       func(wallet string) bool { return subscribed[wallet] },
		Trending:           commaSet(*trendingMints),
	})

	source, err := ingestion.NewWSSnapshotSource(ctx, *wsEndpoint, nil)
	if err != nil {
		logger.Fatalf("Failed to connect to stream: %v", err)
	}
	defer source.Close()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Shutdown timeout exceeded, forcing exit")
			os.Exit(1)
		}
	}()

	// Metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		logger.Printf("Starting metrics server on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Printf("Metrics server error: %v", err)
		}
	}()

	// API server
	go serveAPI(ctx, *listenAddr, manager, logger)

	logger.Printf("Consuming snapshots from %s", *wsEndpoint)
	if err := manager.Run(ctx, source); err != nil && err != context.Canceled {
		logger.Fatalf("Manager error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores builds the metadata and snapshot stores, applying migrations
// for the real backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.TokenMetadataStore, storage.SnapshotStore, func(), error) {
	if useMemory {
		return memory.NewTokenMetadataStore(), memory.NewSnapshotStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return pgstore.NewTokenMetadataStore(pool), chstore.NewSnapshotStore(chConn), cleanup, nil
}

// serveAPI exposes the latest graph and a health probe.
func serveAPI(ctx context.Context, addr string, manager *ingestion.Manager, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/mindmap", func(w http.ResponseWriter, r *http.Request) {
		graph := manager.Latest()
		if graph == nil {
			http.Error(w, "no graph computed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(graph); err != nil {
			logger.Printf("encode graph: %v", err)
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("Starting API server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("API server error: %v", err)
	}
}

// commaSet parses a comma-separated list into a membership set.
func commaSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out[part] = true
		}
	}
	return out
}
