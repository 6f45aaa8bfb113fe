package indexer

import (
	"context"
	"time"

	"github.com/cloaklabs/attestx/pkg/db"
	"github.com/cloaklabs/attestx/pkg/indexer"
	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/cloaklabs/attestx/pkg/logging"
	"github.com/cloaklabs/attestx/pkg/redis"
	"github.com/cloaklabs/attestx/pkg/utils"
	"go.uber.org/zap"
)

type App struct {
	Indexer *indexer.Indexer
	Store   *db.DB
	Redis   *redis.Client
	Logger  *zap.Logger
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	store, err := db.NewRecordsDB(ctx, logger, utils.Env("RECORDS_DB", "attestx"))
	if err != nil {
		logger.Fatal("Unable to initialize record store", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to Redis", zap.Error(err))
	}

	client := ledger.NewWSClient(logger,
		utils.Env("LEDGER_ENDPOINT", "http://localhost:3000"),
		utils.EnvDuration("LEDGER_TIMEOUT", 15*time.Second))

	cfg := indexer.Config{
		BackfillWindow: utils.EnvUint64("BACKFILL_WINDOW", indexer.DefaultConfig().BackfillWindow),
		RescanSchedule: utils.Env("RESCAN_SCHEDULE", indexer.DefaultConfig().RescanSchedule),
	}

	idx := indexer.New(logger, client, store,
		&indexer.RedisDeadLetter{Client: redisClient},
		redisClient,
		cfg)

	return &App{
		Indexer: idx,
		Store:   store,
		Redis:   redisClient,
		Logger:  logger,
	}
}

// Start runs the indexer and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	if err := a.Indexer.Start(ctx); err != nil {
		a.Logger.Fatal("Unable to start indexer", zap.Error(err))
	}
	<-ctx.Done()
	a.Stop()
}

// Stop stops the indexer and closes its connections.
func (a *App) Stop() {
	a.Indexer.Stop()
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close record store", zap.Error(err))
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Error("Failed to close Redis connection", zap.Error(err))
	}
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
