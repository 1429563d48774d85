package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/candidates"
	"github.com/matrimony/backend/internal/config"
	"github.com/matrimony/backend/internal/handlers"
	"github.com/matrimony/backend/internal/matching"
	"github.com/matrimony/backend/internal/services"
	"github.com/matrimony/backend/internal/storage"
	"github.com/matrimony/backend/internal/worker"
)

type profileStore interface {
	matching.ProfileReader
	worker.SubmittedLister
}

type matchStore interface {
	matching.MatchStore
	handlers.MatchService
}

type requestStore interface {
	worker.Queue
	handlers.RequestStore
}

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	profiles profileStore
	accounts worker.AccountDirectory
	matches  matchStore
	requests requestStore

	engine     *matching.Engine
	dispatcher *worker.Dispatcher
	fanout     *worker.FanOut

	// inMemory is set when no document store is configured; the queue then
	// lives in this process and needs an embedded worker pool.
	inMemory bool
	ping     func(ctx context.Context) error
	close    func(ctx context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	var primary, fallback candidates.CandidateSource
	if cfg.UseMongo() {
		client, err := services.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.Database)

		profiles := services.NewMongoProfileService(ctx, db)
		a.profiles = profiles
		a.accounts = services.NewMongoAccountService(ctx, db)
		a.matches = services.NewMongoMatchService(ctx, db)
		a.requests = services.NewMongoMatchRequestService(ctx, db)

		if cfg.Search.Enabled {
			primary = candidates.NewSearchSource(profiles.Collection(), cfg.Search.Index, cfg.Search.Limit)
		}
		fallback = candidates.NewScanSource(profiles.Collection(), cfg.Search.ScanLimit)

		a.ping = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
		a.close = client.Disconnect
		log.Info("using mongo stores", zap.String("database", cfg.Mongo.Database), zap.Bool("search", cfg.Search.Enabled))
	} else {
		profiles, err := a.openMemoryStores()
		if err != nil {
			return nil, err
		}
		fallback = candidates.NewMemorySource(profiles, cfg.Search.Limit)
		a.inMemory = true
		a.close = func(context.Context) error { return nil }
	}

	retriever := candidates.NewRetriever(primary, fallback, a.accounts, candidates.Options{
		HealthCheck: cfg.Search.HealthCheck,
		Logger:      log.Named("candidates"),
	})

	vip, err := matching.NewVIPFilter(cfg.Matching.VIPRules)
	if err != nil {
		return nil, fmt.Errorf("vip rules: %w", err)
	}
	a.engine, err = matching.NewEngine(a.profiles, retriever, a.matches, matching.Options{
		StandardTTL: cfg.Matching.StandardTTL,
		PriorityTTL: cfg.Matching.PriorityTTL,
		VIP:         vip,
		Logger:      log.Named("engine"),
	})
	if err != nil {
		return nil, err
	}

	a.dispatcher = worker.NewDispatcher(a.requests, 0, nil, log.Named("dispatcher"))
	a.fanout = worker.NewFanOut(a.profiles, a.accounts, a.dispatcher, nil, log.Named("fanout"))
	return a, nil
}

// openMemoryStores seeds in-memory stores from DataDir. Matches are written
// back so they survive restarts; requests do not.
func (a *app) openMemoryStores() (*services.MemoryProfileService, error) {
	dir := a.cfg.DataDir

	profileFile, err := storage.NewJSONStore(dir, "profiles.json")
	if err != nil {
		return nil, err
	}
	accountFile, err := storage.NewJSONStore(dir, "accounts.json")
	if err != nil {
		return nil, err
	}
	matchFile, err := storage.NewJSONStore(dir, "matches.json")
	if err != nil {
		return nil, err
	}

	profiles := services.NewMemoryProfileService()
	nProfiles, err := profiles.LoadFrom(profileFile)
	if err != nil {
		return nil, err
	}
	accounts := services.NewMemoryAccountService()
	nAccounts, err := accounts.LoadFrom(accountFile)
	if err != nil {
		return nil, err
	}
	matches := services.NewMemoryMatchService(nil)
	if err := matches.Persist(matchFile); err != nil {
		return nil, err
	}

	a.profiles = profiles
	a.accounts = accounts
	a.matches = matches
	a.requests = services.NewMemoryMatchRequestService()

	a.logger.Info("using in-memory stores",
		zap.String("data_dir", filepath.Clean(dir)),
		zap.Int("profiles", nProfiles),
		zap.Int("accounts", nAccounts),
	)
	return profiles, nil
}

func (a *app) pool() *worker.Pool {
	w := a.cfg.Worker
	return worker.NewPool(a.requests, a.engine, worker.Options{
		Concurrency:  w.Concurrency,
		PollInterval: w.PollInterval,
		Lease:        w.Lease,
		JobTimeout:   w.JobTimeout,
		RetryDelay:   w.RetryDelay,
		Logger:       a.logger.Named("worker"),
	})
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.close(ctx); err != nil {
		a.logger.Warn("closing stores", zap.Error(err))
	}
	a.logger.Sync()
}
