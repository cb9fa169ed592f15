// Command coupon-ingest bulk-loads promotional coupon codes into the
// coupons table. Candidate codes arrive as large gzip-compressed text files
// (one code per line); a code is considered valid only when it appears in at
// least two of the files.
//
// The files are far too large to hold in memory as sets, so ingestion runs
// in two passes: pass 1 builds a bloom filter per file, pass 2 re-streams
// each file and keeps codes that another file's filter also contains.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shopcore/internal/storage/postgres"
)

const (
	bloomCapacity = 100_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	minCodeLen    = 8
	maxCodeLen    = 10
	insertBatch   = 5_000
)

// Ingested codes all carry the same promotional rule.
const insertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_order_amount, max_uses, active)
	VALUES ($1, 'percentage', 10, 0, 1000, TRUE)
	ON CONFLICT (code) DO NOTHING`

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
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
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
		if _, err := os.Stat(files[i]); err != nil {
			return errors.Wrapf(err, "check file %s", files[i])
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))
	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes present in 2+ files")
	codes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	return insertCoupons(ctx, pool, codes)
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			err := streamCodes(gctx, path, func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "stream %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findValidCodes re-streams each file and keeps codes that some OTHER
// file's bloom filter also contains. Duplicates across files are collapsed.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	seen := make(map[string]struct{})
	var codes []string

	for i, path := range files {
		err := streamCodes(ctx, path, func(code string) {
			if _, ok := seen[code]; ok {
				return
			}
			for j, filter := range filters {
				if j == i {
					continue
				}
				if filter.TestString(code) {
					seen[code] = struct{}{}
					codes = append(codes, code)
					return
				}
			}
		})
		if err != nil {
			return nil, errors.Wrapf(err, "stream %s", path)
		}
	}
	return codes, nil
}

// streamCodes reads a gzip-compressed file line by line, forwarding every
// well-formed code to fn. Malformed lines are skipped.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	var line int
	for scanner.Scan() {
		line++
		// Check for cancellation periodically, not per line.
		if line%1_000_000 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		code := scanner.Text()
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
	}
	return scanner.Err()
}

// insertCoupons writes the codes in batches.
func insertCoupons(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	for start := 0; start < len(codes); start += insertBatch {
		end := min(start+insertBatch, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			batch.Queue(insertCouponSQL, code)
		}

		results := pool.SendBatch(ctx, batch)
		for range codes[start:end] {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return errors.Wrap(err, "insert coupons")
			}
		}
		if err := results.Close(); err != nil {
			return errors.Wrap(err, "close batch")
		}

		slog.Info("inserted batch", slog.Int("done", end), slog.Int("total", len(codes)))
	}
	return nil
}
