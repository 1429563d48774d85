package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/services"
	"github.com/matrimony/backend/internal/storage"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load profiles.json and accounts.json from the data dir into mongo",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return seed()
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seed() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.UseMongo() {
		return errors.New("seed writes to mongo: set MONGO_URI (without it serve reads the data dir directly)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := services.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())
	db := client.Database(cfg.Mongo.Database)

	profileFile, err := storage.NewJSONStore(cfg.DataDir, "profiles.json")
	if err != nil {
		return err
	}
	accountFile, err := storage.NewJSONStore(cfg.DataDir, "accounts.json")
	if err != nil {
		return err
	}

	nProfiles, err := services.SeedProfiles(ctx, profileFile, services.NewMongoProfileService(ctx, db))
	if err != nil {
		return err
	}
	nAccounts, err := services.SeedAccounts(ctx, accountFile, services.NewMongoAccountService(ctx, db))
	if err != nil {
		return err
	}

	log.Info("seeded mongo",
		zap.String("database", cfg.Mongo.Database),
		zap.Int("profiles", nProfiles),
		zap.Int("accounts", nAccounts),
	)
	return nil
}
