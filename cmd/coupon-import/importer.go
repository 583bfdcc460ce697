package main

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	bloomFPR      = 0.001
	bloomHeadroom = 1_000_000
	progressEvery = 100_000
)

// couponStore is the slice of the coupon repository the import needs.
type couponStore interface {
	ExistingCodes(ctx context.Context) ([]string, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Upsert(ctx context.Context, rule *coupon.Rule) error
}

// Stats counts what happened to the rows of all feeds.
type Stats struct {
	Read     int
	Inserted int
	Skipped  int
	Invalid  int
}

// importer reads feeds concurrently and writes new codes from a single
// goroutine. A bloom filter over the stored codes answers most "is it new"
// questions without touching the database; positives are confirmed by an
// exact lookup.
type importer struct {
	store couponStore
}

type parsed struct {
	rule *coupon.Rule
	err  error
}

// Import reads every file and inserts codes that are not stored yet.
func (imp *importer) Import(ctx context.Context, files []string) (Stats, error) {
	var stats Stats

	existing, err := imp.store.ExistingCodes(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "load existing codes")
	}
	filter := bloom.NewWithEstimates(uint(len(existing)+bloomHeadroom), bloomFPR)
	for _, code := range existing {
		filter.AddString(code)
	}
	slog.Info("bloom filter ready", slog.Int("existing", len(existing)))

	rows := make(chan parsed, 1024)
	g, gctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(gctx)
	for i, path := range files {
		readers.Go(func() error {
			return streamFeed(rctx, path, func(p parsed) error {
				select {
				case rows <- p:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
		})
		slog.Info("reading feed", slog.Int("file", i+1), slog.String("path", path))
	}
	g.Go(func() error {
		defer close(rows)
		return readers.Wait()
	})

	g.Go(func() error {
		for p := range rows {
			stats.Read++
			if stats.Read%progressEvery == 0 {
				slog.Info("import progress", slog.Int("read", stats.Read), slog.Int("inserted", stats.Inserted))
			}
			if p.err != nil {
				stats.Invalid++
				slog.Warn("skipping invalid row", slog.String("error", p.err.Error()))
				continue
			}

			code := p.rule.Code
			if filter.TestString(code) {
				exists, err := imp.store.CodeExists(gctx, code)
				if err != nil {
					return errors.Wrapf(err, "check code %s", code)
				}
				if exists {
					stats.Skipped++
					continue
				}
			}
			if err := imp.store.Upsert(gctx, p.rule); err != nil {
				return errors.Wrapf(err, "upsert coupon %s", code)
			}
			filter.AddString(code)
			stats.Inserted++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// streamFeed opens a gzip-compressed CSV feed and calls fn for each data
// row. The header row, when present, is skipped.
func streamFeed(ctx context.Context, path string, fn func(parsed) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}

		rule, err := parseRecord(rec)
		if err != nil {
			err = errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(parsed{rule: rule, err: err}); err != nil {
			return err
		}
	}
}

// parseRecord converts code,type,value,min_order,usage_limit into an active
// rule. The last two columns are optional.
func parseRecord(rec []string) (*coupon.Rule, error) {
	if len(rec) < 3 {
		return nil, errors.Errorf("want at least 3 columns, got %d", len(rec))
	}
	field := func(i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rule := &coupon.Rule{
		Code:         field(0),
		DiscountType: coupon.DiscountType(strings.ToLower(field(1))),
		Active:       true,
		Description:  "Imported coupon",
	}

	var err error
	if rule.Value, err = decimal.NewFromString(field(2)); err != nil {
		return nil, errors.Wrap(err, "parse value")
	}
	if v := field(3); v != "" {
		if rule.MinOrderAmount, err = decimal.NewFromString(v); err != nil {
			return nil, errors.Wrap(err, "parse min_order")
		}
	}
	if v := field(4); v != "" {
		if rule.UsageLimitGlobal, err = strconv.Atoi(v); err != nil {
			return nil, errors.Wrap(err, "parse usage_limit")
		}
	}
	if err := rule.Check(); err != nil {
		return nil, err
	}
	return rule, nil
}
