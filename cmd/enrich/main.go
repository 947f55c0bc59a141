// Package main is a batch metadata backfill tool. It resolves display
// metadata for a list of token mints through the coalescing cache and
// prints the result, optionally persisting rows to PostgreSQL.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/blok-hamster/kol-play-core/internal/metadata"
	"github.com/blok-hamster/kol-play-core/internal/mints"
	"github.com/blok-hamster/kol-play-core/internal/storage"
	"github.com/blok-hamster/kol-play-core/internal/storage/migrations"
	pgstore "github.com/blok-hamster/kol-play-core/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	mintsFile := flag.String("mints-file", "", "File with one mint per line (args are used otherwise)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Persist resolved rows to this PostgreSQL instance (empty to skip)")
	cacheTTL := flag.Duration("cache-ttl", metadata.DefaultTTL, "Token metadata cache TTL")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall resolution timeout")
	skipMalformed := flag.Bool("skip-malformed", true, "Drop mints that are not well-formed base58 addresses")
	onCurveOnly := flag.Bool("on-curve-only", false, "Drop mints whose address is not on the ed25519 curve (excludes PDA mints)")

	flag.Parse()

	logger := log.New(os.Stdout, "[enrich] ", log.LstdFlags|log.Lshortfile)

	list, err := collectMints(*mintsFile, flag.Args())
	if err != nil {
		logger.Fatalf("Failed to read mints: %v", err)
	}
	if len(list) == 0 {
		logger.Fatal("No mints given. Pass them as args or via --mints-file")
	}

	if *skipMalformed {
		kept := list[:0]
		for _, mint := range list {
			if !mints.IsWellFormed(mint) {
				logger.Printf("Skipping malformed mint %q", mint)
				continue
			}
			kept = append(kept, mint)
		}
		list = kept
	}
	if *onCurveOnly {
		kept := list[:0]
		for _, mint := range list {
			if !mints.OnCurve(mint) {
				logger.Printf("Skipping off-curve mint %s", mint)
				continue
			}
			kept = append(kept, mint)
		}
		list = kept
	}
	if len(list) == 0 {
		logger.Fatal("No well-formed mints left to resolve")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cache := metadata.NewCache(
		metadata.NewDexScreenerClient(),
		metadata.NewJupiterClient(),
		metadata.WithTTL(*cacheTTL),
	)

	logger.Printf("Resolving %d mints...", len(list))
	resolved := cache.GetMultipleTokenMetadata(ctx, list)

	fmt.Printf("%-46s %-12s %12s %14s %14s\n", "MINT", "SYMBOL", "PRICE USD", "LIQUIDITY USD", "MARKET CAP")
	for _, mint := range list {
		meta := resolved[mint]
		if meta == nil {
			fmt.Printf("%-46s %-12s %12s %14s %14s\n", mint, "-", "-", "-", "-")
			continue
		}
		fmt.Printf("%-46s %-12s %12.6f %14.2f %14.2f\n",
			mint, meta.Symbol, meta.PriceUSD, meta.LiquidityUSD, meta.MarketCap)
	}
	logger.Printf("Resolved %d/%d mints", len(resolved), len(list))

	if *postgresDSN == "" {
		return
	}

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to apply migrations: %v", err)
	}

	store := pgstore.NewTokenMetadataStore(pool)
	inserted := 0
	for _, mint := range list {
		meta := resolved[mint]
		if meta == nil {
			continue
		}
		err := store.Insert(ctx, meta)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			logger.Fatalf("Failed to persist %s: %v", mint, err)
		}
		inserted++
	}
	logger.Printf("Persisted %d rows", inserted)
}

// collectMints merges the file and args into one list, in order.
func collectMints(path string, args []string) ([]string, error) {
	var out []string

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			out = append(out, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	out = append(out, args...)
	return out, nil
}
