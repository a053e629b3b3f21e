package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/scansafe/internal/scanner"
)

var (
	batchFile   string
	batchRegion string
)

var batchCmd = &cobra.Command{
	Use:   "batch [barcodes...]",
	Short: "Scan many barcodes concurrently",
	Long:  "Scans the given barcodes (or one per line from --file) with bounded concurrency and logs each outcome.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		barcodes := args
		if batchFile != "" {
			fromFile, err := readBarcodeFile(batchFile)
			if err != nil {
				return err
			}
			barcodes = append(barcodes, fromFile...)
		}
		if len(barcodes) == 0 {
			return eris.New("no barcodes given: pass arguments or --file")
		}

		env, err := initScanEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		return processBatch(ctx, env.Scanner, barcodes, batchRegion, cfg.Batch.MaxConcurrentScans)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one barcode per line")
	batchCmd.Flags().StringVar(&batchRegion, "region", "", "region code applied to every scan")
	rootCmd.AddCommand(batchCmd)
}

// readBarcodeFile reads one barcode per line, skipping blanks and
// #-comments.
func readBarcodeFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close()

	var barcodes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		barcodes = append(barcodes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	return barcodes, nil
}

// processBatch scans the barcodes concurrently. Individual failures are
// logged and counted without aborting the batch.
func processBatch(ctx context.Context, sc *scanner.Scanner, barcodes []string, regionCode string, concurrency int) error {
	zap.L().Info("processing batch",
		zap.Int("barcodes", len(barcodes)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var found, missing, failed atomic.Int64

	for _, code := range barcodes {
		g.Go(func() error {
			log := zap.L().With(zap.String("barcode", code))

			result, err := sc.Scan(gctx, code, scanner.ScanContext{Region: regionCode})
			if err != nil {
				failed.Add(1)
				log.Error("scan failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			if result.NotFound() {
				missing.Add(1)
				log.Warn("product not found")
				return nil
			}

			found.Add(1)
			fields := []zap.Field{
				zap.String("product", result.Product.ProductName),
				zap.String("source", string(result.Product.Source)),
			}
			if result.Product.SafetyScore != nil {
				fields = append(fields, zap.Float64("safety_score", *result.Product.SafetyScore))
			}
			log.Info("scan complete", fields...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("found", found.Load()),
		zap.Int64("not_found", missing.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
