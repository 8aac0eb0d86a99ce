package main

import (
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/address-cli/internal/importer"
)

var (
	importSheet       string
	importConcurrency int
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-normalize addresses from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path := args[0]

		var records []importer.Record
		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			records, err = importer.ReadCSV(path)
		case ".xlsx":
			records, err = importer.ReadXLSX(path, importer.XLSXOptions{SheetName: importSheet})
		default:
			return eris.Errorf("unsupported file type: %s", filepath.Ext(path))
		}
		if err != nil {
			return eris.Wrap(err, "read input file")
		}
		if len(records) == 0 {
			zap.L().Info("no address rows found", zap.String("file", path))
			return nil
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := importConcurrency
		if concurrency == 0 {
			concurrency = cfg.Import.Concurrency
		}

		jobID := uuid.NewString()
		log := zap.L().With(zap.String("job_id", jobID))
		log.Info("starting import",
			zap.String("file", path),
			zap.Int("rows", len(records)),
			zap.Int("concurrency", concurrency),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var succeeded, failed atomic.Int64

		for _, rec := range records {
			g.Go(func() error {
				addr, err := env.Canon.Normalize(gctx, rec.Components)
				if err != nil {
					failed.Add(1)
					log.Error("row failed",
						zap.Int("line", rec.Line),
						zap.Error(err),
					)
					return nil // don't abort the import on individual rows
				}
				if addr == nil {
					return nil
				}
				succeeded.Add(1)
				log.Debug("row imported",
					zap.Int("line", rec.Line),
					zap.Int64("address_id", addr.ID),
				)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "import processing")
		}

		log.Info("import complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 0, "concurrent rows (default from config)")
	rootCmd.AddCommand(importCmd)
}
