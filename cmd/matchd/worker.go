package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matrimony/backend/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued match requests and run the nightly fan-out",
	RunE: func(cmd *cobra.Command, _ []string) error {
		nightly, _ := cmd.Flags().GetBool("nightly")
		return runWorker(nightly)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Bool("nightly", true, "schedule the standard fan-out at worker.nightly-at (UTC)")
}

func runWorker(nightly bool) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if a.inMemory {
		return errors.New("the worker needs a shared queue: set MONGO_URI, or use serve for a single-process setup")
	}

	pool := a.pool()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(ctx)
	})

	if nightly {
		hour, minute, err := cfg.Worker.NightlyClock()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return worker.Nightly(ctx, hour, minute, nil, log.Named("nightly"), func(ctx context.Context) error {
				_, err := a.fanout.Run(ctx)
				return err
			})
		})
	}

	log.Info("matchd worker running",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Bool("nightly", nightly),
		zap.String("nightly_at", cfg.Worker.NightlyAt),
	)
	return g.Wait()
}
