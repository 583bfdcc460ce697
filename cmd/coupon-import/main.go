package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/repository"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzip CSV coupon feeds")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob of feed files inside data-dir")
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

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, glob, databaseURL string) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "list feed files")
	}
	if len(files) == 0 {
		slog.Info("no feed files found", slog.String("glob", glob))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	imp := &importer{store: repository.NewCouponRepository(pool)}
	stats, err := imp.Import(ctx, files)
	if err != nil {
		return err
	}

	slog.Info("import finished",
		slog.Int("files", len(files)),
		slog.Int("read", stats.Read),
		slog.Int("inserted", stats.Inserted),
		slog.Int("skipped", stats.Skipped),
		slog.Int("invalid", stats.Invalid),
	)
	return nil
}
