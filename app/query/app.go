package query

import (
	"context"

	"github.com/cloaklabs/attestx/app/query/types"
	"github.com/cloaklabs/attestx/pkg/aggregator"
	"github.com/cloaklabs/attestx/pkg/contentstore"
	"github.com/cloaklabs/attestx/pkg/db"
	"github.com/cloaklabs/attestx/pkg/engine"
	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/cloaklabs/attestx/pkg/logging"
	"github.com/cloaklabs/attestx/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	store, err := db.NewRecordsDB(ctx, logger, utils.Env("RECORDS_DB", "attestx"))
	if err != nil {
		logger.Fatal("Unable to initialize record store", zap.Error(err))
	}

	ledgerEndpoint := utils.Env("LEDGER_ENDPOINT", "http://localhost:3000")
	submitter := ledger.NewRemoteSubmitter(logger, ledgerEndpoint)

	agg := aggregator.New(logger,
		contentstore.NewFromEnv(logger),
		engine.NewFromEnv(logger))

	return &types.App{
		Store:      store,
		Ledger:     submitter,
		Aggregator: agg,
		Logger:     logger,
	}
}
