// Command catalog-ingest loads products and initial inventory from gzipped
// JSONL catalog files into the database.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vietct/orderflow/internal/storage/postgres"
)

const progressEvery = 10_000

// catalogEntry is one line of a catalog file.
type catalogEntry struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
	Stock    int    `json:"stock"`
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog*.jsonl.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "catalog*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob catalog files")
	}
	if len(files) == 0 {
		return errors.Errorf("no catalog*.jsonl.gz files in %s", dataDir)
	}

	slog.Info("parsing catalog files", slog.Int("files", len(files)))

	// Parse all files concurrently.
	var (
		mu      sync.Mutex
		entries []catalogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, file := range files {
		g.Go(func() error {
			parsed, err := parseFile(gctx, file)
			if err != nil {
				return errors.Wrapf(err, "parse %s", file)
			}
			mu.Lock()
			entries = append(entries, parsed...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("catalog entries parsed", slog.Int("count", len(entries)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeEntries(ctx, postgres.NewDB(pool), entries)
}

func parseFile(ctx context.Context, path string) ([]catalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "open gzip stream")
	}
	defer gz.Close()

	var (
		entries []catalogEntry
		lines   int
	)
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e catalogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, errors.Wrapf(err, "line %d", lines+1)
		}
		entries = append(entries, e)

		lines++
		if lines%progressEvery == 0 {
			slog.Info("parsing progress", slog.String("file", path), slog.Int("lines", lines))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	return entries, nil
}

func writeEntries(ctx context.Context, db *postgres.DB, entries []catalogEntry) error {
	products := postgres.NewProductRepository(db)
	inv := postgres.NewInventoryStore(db)

	return db.InTx(ctx, func(ctx context.Context) error {
		categories := make(map[string]uuid.UUID)

		for _, e := range entries {
			price, err := decimal.NewFromString(e.Price)
			if err != nil {
				return errors.Wrapf(err, "price for %q", e.Name)
			}

			categoryID, ok := categories[e.Category]
			if !ok {
				categoryID, err = products.EnsureCategory(ctx, e.Category)
				if err != nil {
					return err
				}
				categories[e.Category] = categoryID
			}

			productID := uuid.New()
			if e.ID != "" {
				productID, err = uuid.Parse(e.ID)
				if err != nil {
					return errors.Wrapf(err, "id for %q", e.Name)
				}
			}

			if err := products.Upsert(ctx, productID, e.Name, price, categoryID); err != nil {
				return err
			}
			if err := inv.Upsert(ctx, productID, e.Stock); err != nil {
				return err
			}
		}
		return nil
	})
}
