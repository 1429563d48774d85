package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matrimony/backend/internal/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		withWorker, _ := cmd.Flags().GetBool("with-worker")
		return serve(withWorker)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("with-worker", false, "also run a worker pool in this process (always on without mongo)")
}

func serve(withWorker bool) error {
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

	h := handlers.NewMatchingHandler(a.dispatcher, a.requests, a.matches, a.fanout, handlers.Options{
		PriorityWait: cfg.Matching.PriorityWait,
		Logger:       log.Named("api"),
	})
	srv := &http.Server{
		Addr: cfg.ServerAddress,
		Handler: handlers.NewRouter(h, handlers.RouterConfig{
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigins: cfg.AllowedOrigins,
			Ping:           a.ping,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("matchd API server starting", zap.String("address", cfg.ServerAddress), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if withWorker || a.inMemory {
		pool := a.pool()
		g.Go(func() error {
			return pool.Run(ctx)
		})
	}

	return g.Wait()
}
