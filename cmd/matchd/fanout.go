package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fanoutCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Enqueue today's standard match requests once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		drain, _ := cmd.Flags().GetBool("drain")
		return fanout(drain)
	},
}

func init() {
	rootCmd.AddCommand(fanoutCmd)

	fanoutCmd.Flags().Bool("drain", false, "process the queue in this process after enqueueing (implied without mongo)")
}

func fanout(drain bool) error {
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

	report, err := a.fanout.Run(ctx)
	if err != nil {
		return err
	}

	if drain || a.inMemory {
		n, err := a.pool().Drain(ctx)
		if err != nil {
			return err
		}
		log.Info("queue drained", zap.Int("processed", n), zap.Int("enqueued", report.Enqueued))
	}
	return nil
}
